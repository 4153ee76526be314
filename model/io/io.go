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

// Package io contains utilities to save and load models. It doesn't include any actual model
// type support by default. Consider using instead the subpackage `canonical` that includes
// the canonical (standard) model types support.
//
// A model directory contains the generic header ("header.pb") and the dataspec
// ("data_spec.pb"), both serialized as protobuf `Struct` messages, plus the model specific
// files written by the model implementation.
package io

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/autotabular/tabular/dataset"

	// External dependencies, pls keep in this position in file.
	"github.com/autotabular/tabular/utils/file"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	// End of external dependencies.

	"github.com/autotabular/tabular/model"
)

// Specific model filenames.
const modelHeaderFileName = "header.pb"
const modelDataSpecFileName = "data_spec.pb"

// LoadModel loads a model from disk.
func LoadModel(modelPath string) (model.Model, error) {
	prefix, err := DetectFilePrefix(modelPath)
	if err != nil {
		return nil, err
	}
	return LoadModelWithPrefix(modelPath, prefix)
}

func readStruct(path string) (*structpb.Struct, error) {
	serialized, err := file.ReadFile(context.Background(), path)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(serialized, s); err != nil {
		return nil, fmt.Errorf("cannot parse %q: %w", path, err)
	}
	return s, nil
}

func writeStruct(path string, s *structpb.Struct) error {
	serialized, err := proto.Marshal(s)
	if err != nil {
		return err
	}
	return file.WriteFile(context.Background(), path, serialized)
}

func registeredKeys() []string {
	keys := make([]string, 0, len(model.RegisteredBuilders))
	for key := range model.RegisteredBuilders {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// LoadModelWithPrefix loads a model with a prefix from disk.
//
// The "prefix" is a string append to the name of all the files in the model. Using a prefix make
// it possible to store multiple models in the same directory without sub-directories.
func LoadModelWithPrefix(modelPath string, prefix string) (model.Model, error) {
	// Read the generic header.
	headerStruct, err := readStruct(filepath.Join(modelPath, prefix+modelHeaderFileName))
	if err != nil {
		return nil, err
	}
	header, err := headerFromStruct(headerStruct)
	if err != nil {
		return nil, err
	}

	// Read the dataspec.
	dataspecStruct, err := readStruct(filepath.Join(modelPath, prefix+modelDataSpecFileName))
	if err != nil {
		return nil, err
	}
	dataspec, err := dataspecFromStruct(dataspecStruct)
	if err != nil {
		return nil, err
	}

	// Instantiate the model object.
	builder, hasBuilder := model.RegisteredBuilders[header.Key]
	if !hasBuilder {
		return nil, fmt.Errorf(
			"unknown model %q. The available models are: %v. This may be because this type of model "+
				"was not imported -- directly or through the \"canonical\" package that automatically "+
				"imports all implemented models",
			header.Key, registeredKeys())
	}

	// Load the model specific content.
	m := builder(header, dataspec)
	if err = m.LoadSpecific(modelPath, prefix); err != nil {
		return nil, err
	}

	return m, nil
}

// SaveModel saves a trained model in a directory. The directory is created if necessary.
func SaveModel(modelPath string, m model.Implementation) error {
	return SaveModelWithPrefix(modelPath, "", m)
}

// SaveModelWithPrefix saves a trained model with a prefix in a directory.
func SaveModelWithPrefix(modelPath string, prefix string, m model.Implementation) error {
	if err := file.MkdirAll(context.Background(), modelPath, nil); err != nil {
		return err
	}
	headerStruct, err := headerToStruct(m.Header())
	if err != nil {
		return fmt.Errorf("cannot serialize the header of %s: %w", m.Name(), err)
	}
	if err := writeStruct(filepath.Join(modelPath, prefix+modelHeaderFileName), headerStruct); err != nil {
		return err
	}
	dataspecStruct, err := dataspecToStruct(m.Dataspec())
	if err != nil {
		return fmt.Errorf("cannot serialize the dataspec of %s: %w", m.Name(), err)
	}
	if err := writeStruct(filepath.Join(modelPath, prefix+modelDataSpecFileName), dataspecStruct); err != nil {
		return err
	}
	return m.SaveSpecific(modelPath, prefix)
}

// DetectFilePrefix detect the prefix of the model.
func DetectFilePrefix(modelPath string) (string, error) {
	files, err := file.Match(context.Background(), filepath.Join(modelPath, "*"+modelDataSpecFileName), file.StatNone)
	if err != nil {
		return "", err
	}
	if len(files) != 1 {
		return "", fmt.Errorf("file prefix cannot be autodetected: %v models exist in %v. A model directory should contain a filename finishing by \"data_spec.pb\"",
			len(files), modelPath)
	}
	dataspecFilename := filepath.Base(files[0].Path)
	return dataspecFilename[:len(dataspecFilename)-len(modelDataSpecFileName)], nil
}

// Dataspec loads the dataspec of a model without loading the model.
func Dataspec(modelPath string) (*dataset.DataSpec, error) {
	prefix, err := DetectFilePrefix(modelPath)
	if err != nil {
		return nil, err
	}
	s, err := readStruct(filepath.Join(modelPath, prefix+modelDataSpecFileName))
	if err != nil {
		return nil, err
	}
	return dataspecFromStruct(s)
}
