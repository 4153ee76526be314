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

// Package io contains utilities to load/save decision trees
package io

import (
	"fmt"
	"sort"

	"github.com/autotabular/tabular/model/decisiontree/node"
)

// Reader is a stream of nodes.
type Reader interface {

	// Next returns the next raw node from the stream. Returns nil at the end of the
	// stream. "Close" should be called once the reading is done (even if file reaches end).
	Next() (*node.RawNode, error)
	Close() error
}

// Writer is a sink of nodes.
type Writer interface {
	Write(n *node.RawNode) error
	Close() error
}

// RegisteredFormats is the list of format readers.
var RegisteredFormats = make(map[string]func(path string) (Reader, error))

// RegisteredWriters is the list of format writers.
var RegisteredWriters = make(map[string]func(path string) (Writer, error))

// ShardPath is the path of a shard of a sharded node file.
func ShardPath(path string, shard, numShards int) string {
	return fmt.Sprintf("%s-%05d-of-%05d", path, shard, numShards)
}

func formats() []string {
	keys := make([]string, 0, len(RegisteredFormats))
	for key := range RegisteredFormats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewNodeReader creates a new node reader from a sharded set of files.
func NewNodeReader(path string, numShards int, format string) (Reader, error) {
	builder, hasBuilder := RegisteredFormats[format]
	if !hasBuilder {
		return nil, fmt.Errorf("Unknown node format %q. The available node formats are: %v)", format, formats())
	}
	return &shardedNodeReader{path: path, numShards: numShards,
		createSubReader: builder}, nil
}

// NewNodeWriter creates a node writer into a single shard.
func NewNodeWriter(path string, format string) (Writer, error) {
	builder, hasBuilder := RegisteredWriters[format]
	if !hasBuilder {
		return nil, fmt.Errorf("Unknown node format %q. The available node formats are: %v)", format, formats())
	}
	return builder(ShardPath(path, 0, 1))
}

// shardedNodeReader is a wrapper for sharded files.
type shardedNodeReader struct {
	path            string
	numShards       int
	nextShard       int
	createSubReader func(path string) (Reader, error)
	currentReader   Reader
}

func (s *shardedNodeReader) Next() (*node.RawNode, error) {

	for {
		// Ensure one shard is being read
		if s.currentReader == nil {
			// The previous shard (if any) is done being read
			if s.nextShard == s.numShards {
				// No more nodes available
				return nil, nil
			}

			var err error
			s.currentReader, err = s.createSubReader(ShardPath(s.path, s.nextShard, s.numShards))
			if err != nil {
				return nil, err
			}
			s.nextShard++
		}

		n, err := s.currentReader.Next()
		if err != nil {
			return nil, err
		}
		if n != nil {
			return n, nil
		}

		// End of this shard.
		if err := s.currentReader.Close(); err != nil {
			return nil, err
		}
		s.currentReader = nil
	}
}

func (s *shardedNodeReader) Close() error {
	if s.currentReader != nil {
		return s.currentReader.Close()
	}
	return nil
}
