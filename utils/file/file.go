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

// Package file is a slim portability layer on top of the "os" package. All the functions take a
// context so that remote file systems can be plugged in later without changing the callers.
package file

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File for providing the shim layer
type File struct {
	file *os.File
}

// Stat holds information about a file.
type Stat struct {
	// Path to the file.
	Path string
	// Size in bytes. Only set if requested with StatSize.
	Size int64
}

// StatMask specifies what fields should be returned.
type StatMask int

// Known values for StatMask.
const (
	StatNone StatMask = 0
	StatSize StatMask = 1
)

// Create a file
func Create(ctx context.Context, name string) (File, error) {
	file, err := os.Create(name)
	return File{file: file}, err
}

// IO is a convenience interface.
type IO io.ReadCloser

// IO to get the os.File member
func (f *File) IO(ctx context.Context) IO {
	return f.file
}

// Writer returns the writable side of a file created with Create.
func (f *File) Writer(ctx context.Context) io.WriteCloser {
	return f.file
}

// ReadFile returns the entire contents of the named file.
func ReadFile(ctx context.Context, name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to a file named by filename. The parent directory is created if needed.
func WriteFile(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	return os.WriteFile(name, data, 0644)
}

// MkdirOptions for creating directories. Unused for now.
type MkdirOptions struct{}

// MkdirAll is documented in the package-level MkdirAll function.
func MkdirAll(ctx context.Context, name string, perm *MkdirOptions) error {
	return os.MkdirAll(name, 0755)
}

// OpenRead opens the file for reading.
func OpenRead(ctx context.Context, name string) (File, error) {
	file, err := os.Open(name)
	return File{file: file}, err
}

// Exists tests if a file or directory exists.
func Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// MkdirTemp creates a new temporary directory. See os.MkdirTemp for "pattern".
func MkdirTemp(ctx context.Context, pattern string) (string, error) {
	return os.MkdirTemp("", pattern)
}

// RemoveAll removes a path and any children it contains.
func RemoveAll(ctx context.Context, name string) error {
	return os.RemoveAll(name)
}

// Match returns information about all files matching pattern, sorted by path.
func Match(ctx context.Context, pattern string, mask StatMask) ([]Stat, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	stats := make([]Stat, 0, len(files))
	for _, f := range files {
		stat := Stat{Path: f}
		if mask&StatSize != 0 {
			info, err := os.Stat(f)
			if err != nil {
				return nil, err
			}
			stat.Size = info.Size()
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
