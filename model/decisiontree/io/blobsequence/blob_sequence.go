/*
 * Copyright 2022 Google LLC.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package blobsequence implement node reading and writing in blob sequence files.
//
// A blob sequence file starts with the magic "BS", a uint16 version and a uint32 reserved
// field. It is followed by records, each one prefixed by its uint32 length. All the integers
// are little endian. Each record is a msgpack encoded node.
package blobsequence

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	nodeIO "github.com/autotabular/tabular/model/decisiontree/io"
	"github.com/autotabular/tabular/model/decisiontree/node"

	// External dependencies, pls keep in this position in file.
	"github.com/autotabular/tabular/utils/file"
	"github.com/vmihailenco/msgpack/v5"
	// End of external dependencies.//
	//
)

// ModelKey is the unique identifier of the blob sequence based node format.
const ModelKey = "BLOB_SEQUENCE"

const version = 0

func init() {
	// Register the format.
	nodeIO.RegisteredFormats[ModelKey] = newReader
	nodeIO.RegisteredWriters[ModelKey] = newWriter
}

// blobSequenceIONodeReader is a single file reader on Blog Sequence format.
type blobSequenceIONodeReader struct {
	fileIO     io.ReadCloser
	bufferedIO *bufio.Reader
	version    uint16
	// "serializedNodeBuffer" is a buffer of bytes used to parse the node.
	// The buffer is reused in between "Next" calls.
	serializedNodeBuffer []byte
}

func (r *blobSequenceIONodeReader) Next() (*node.RawNode, error) {

	// Serialized size of the serialized node
	var length uint32
	err := binary.Read(r.bufferedIO, binary.LittleEndian, &length)
	if err == io.EOF {
		// End of sequence
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Resize the read buffer if necessary.
	if len(r.serializedNodeBuffer) < int(length) {
		r.serializedNodeBuffer = make([]byte, length)
	}

	if _, err = io.ReadFull(r.bufferedIO, r.serializedNodeBuffer[:length]); err != nil {
		return nil, err
	}

	n := &node.RawNode{}
	if err := msgpack.Unmarshal(r.serializedNodeBuffer[:length], n); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *blobSequenceIONodeReader) Close() error {
	if r.fileIO != nil {
		return r.fileIO.Close()
	}
	return nil
}

// newReader creates a node reader for a blog sequence file.
func newReader(path string) (nodeIO.Reader, error) {
	ctx := context.Background()
	fileHandle, err := file.OpenRead(ctx, path)
	if err != nil {
		return nil, err
	}
	fileIO := fileHandle.IO(ctx)
	bufferedIO := bufio.NewReader(fileIO)

	// Magic number.
	// The first two bytes should be "BS" in ascii (for "blob sequence").
	var magic [2]byte
	if _, err = io.ReadFull(bufferedIO, magic[:]); err != nil {
		fileIO.Close()
		return nil, err
	}
	if magic[0] != 'B' || magic[1] != 'S' {
		fileIO.Close()
		return nil, fmt.Errorf("Invalid header")
	}

	var fileVersion uint16
	if err = binary.Read(bufferedIO, binary.LittleEndian, &fileVersion); err != nil {
		fileIO.Close()
		return nil, err
	}
	if fileVersion != version {
		fileIO.Close()
		return nil, fmt.Errorf("Non supported file version %d", fileVersion)
	}

	// Reserved
	var reserved uint32
	if err = binary.Read(bufferedIO, binary.LittleEndian, &reserved); err != nil {
		fileIO.Close()
		return nil, err
	}

	return &blobSequenceIONodeReader{
		fileIO:               fileIO,
		bufferedIO:           bufferedIO,
		version:              fileVersion,
		serializedNodeBuffer: make([]byte, 512),
	}, nil
}

// blobSequenceIONodeWriter is a single file writer on Blog Sequence format.
type blobSequenceIONodeWriter struct {
	fileIO     io.WriteCloser
	bufferedIO *bufio.Writer
}

func (w *blobSequenceIONodeWriter) Write(n *node.RawNode) error {
	serialized, err := msgpack.Marshal(n)
	if err != nil {
		return err
	}
	if err := binary.Write(w.bufferedIO, binary.LittleEndian, uint32(len(serialized))); err != nil {
		return err
	}
	_, err = w.bufferedIO.Write(serialized)
	return err
}

func (w *blobSequenceIONodeWriter) Close() error {
	if err := w.bufferedIO.Flush(); err != nil {
		w.fileIO.Close()
		return err
	}
	return w.fileIO.Close()
}

// newWriter creates a blob sequence file and writes its header.
func newWriter(path string) (nodeIO.Writer, error) {
	ctx := context.Background()
	fileHandle, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	fileIO := fileHandle.Writer(ctx)
	bufferedIO := bufio.NewWriter(fileIO)

	header := []byte{'B', 'S'}
	header = binary.LittleEndian.AppendUint16(header, version)
	header = binary.LittleEndian.AppendUint32(header, 0)
	if _, err := bufferedIO.Write(header); err != nil {
		fileIO.Close()
		return nil, err
	}
	return &blobSequenceIONodeWriter{fileIO: fileIO, bufferedIO: bufferedIO}, nil
}
