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

package model

import (
	"context"
	"fmt"
	"path/filepath"

	// External dependencies, pls keep in this position in file.
	"github.com/autotabular/tabular/utils/file"
	"github.com/vmihailenco/msgpack/v5"
	// End of external dependencies.
)

// SaveBody serializes a model specific value in "<modelPath>/<prefix><filename>".
func SaveBody(modelPath, prefix, filename string, v any) error {
	serialized, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot serialize %q: %w", filename, err)
	}
	return file.WriteFile(context.Background(), filepath.Join(modelPath, prefix+filename), serialized)
}

// LoadBody deserializes a value saved with SaveBody.
func LoadBody(modelPath, prefix, filename string, v any) error {
	serialized, err := file.ReadFile(context.Background(), filepath.Join(modelPath, prefix+filename))
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(serialized, v); err != nil {
		return fmt.Errorf("cannot parse %q: %w", filename, err)
	}
	return nil
}
