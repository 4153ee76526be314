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

package dataset

import (
	"context"
	"encoding/csv"
	"fmt"

	"github.com/autotabular/tabular/utils/file"
)

// ReadCSV reads all the records of a csv file. The first record is the header.
func ReadCSV(ctx context.Context, path string) (header []string, rows [][]string, err error) {
	fileHandle, err := file.OpenRead(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	fileIO := fileHandle.IO(ctx)
	defer fileIO.Close()

	reader := csv.NewReader(fileIO)
	reader.ReuseRecord = false
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv file %q is empty", path)
	}
	return records[0], records[1:], nil
}

// LoadCSV loads a csv file and infers its dataspec.
func LoadCSV(ctx context.Context, path string, opts InferOptions) (*Dataset, error) {
	header, rows, err := ReadCSV(ctx, path)
	if err != nil {
		return nil, err
	}
	return FromRecords(header, rows, opts)
}

// LoadCSVWithSpec loads a csv file with an existing dataspec.
func LoadCSVWithSpec(ctx context.Context, path string, spec *DataSpec) (*Dataset, error) {
	header, rows, err := ReadCSV(ctx, path)
	if err != nil {
		return nil, err
	}
	return FromRecordsWithSpec(spec, header, rows)
}

// WriteCSV writes a dataset to a csv file.
func WriteCSV(ctx context.Context, path string, ds *Dataset) error {
	fileHandle, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w := fileHandle.Writer(ctx)
	writer := csv.NewWriter(w)

	header := make([]string, len(ds.Spec.Columns))
	for i, c := range ds.Spec.Columns {
		header[i] = c.Name
	}
	if err := writer.Write(header); err != nil {
		w.Close()
		return err
	}
	record := make([]string, len(header))
	for r := 0; r < ds.NumRows(); r++ {
		for c := range record {
			record[c] = ds.Value(r, c)
		}
		if err := writer.Write(record); err != nil {
			w.Close()
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
