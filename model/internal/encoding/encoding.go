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

// Package encoding converts the columns of a dataset into the dense numerical matrices and the
// categorical index matrices consumed by the non-tree models.
package encoding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/autotabular/tabular/dataset"
)

// Options selects which columns are encoded, and how.
type Options struct {
	// Numerical features are standardized. Missing values are replaced by the mean.
	Numerical bool
	// OneHot encodes the categorical features with at most MaxOneHot values.
	OneHot    bool
	MaxOneHot int
	// Embedding exports the categorical features as indices (see Encoder.Categories) instead of
	// one-hot vectors.
	Embedding bool
	// TextBuckets > 0 encodes text columns as hashed, L2 normalized, token counts.
	TextBuckets int
	// TextBigrams adds word bigrams to the text tokens.
	TextBigrams bool
	// ImageSize > 0 encodes image columns as ImageSize x ImageSize grayscale pixels.
	ImageSize int
}

// NumericalEncoding is the standardization of a numerical column.
type NumericalEncoding struct {
	Col  int     `msgpack:"col"`
	Mean float64 `msgpack:"mean"`
	Std  float64 `msgpack:"std"`
}

// CategoricalEncoding is the encoding of a categorical column.
type CategoricalEncoding struct {
	Col       int `msgpack:"col"`
	NumValues int `msgpack:"num_values"`
}

// ImageEncoding is the encoding of an image column. Once fitted, each pixel is standardized
// with the statistics of the training images.
type ImageEncoding struct {
	Col  int       `msgpack:"col"`
	Mean []float64 `msgpack:"mean"`
	Std  []float64 `msgpack:"std"`
}

// Encoder converts datasets into dense matrices.
type Encoder struct {
	Numerical   []NumericalEncoding   `msgpack:"numerical"`
	OneHot      []CategoricalEncoding `msgpack:"one_hot"`
	Embedded    []CategoricalEncoding `msgpack:"embedded"`
	Text        []int                 `msgpack:"text"`
	Images      []ImageEncoding       `msgpack:"images"`
	TextBuckets int                   `msgpack:"text_buckets"`
	TextBigrams bool                  `msgpack:"text_bigrams"`
	ImageSize   int                   `msgpack:"image_size"`
	// Width is the number of dense features.
	Width int `msgpack:"width"`
}

// New creates an encoder for the given features of a dataspec.
func New(spec *dataset.DataSpec, features []int, opts Options) *Encoder {
	if opts.MaxOneHot <= 0 {
		opts.MaxOneHot = 64
	}
	e := &Encoder{TextBuckets: opts.TextBuckets, TextBigrams: opts.TextBigrams, ImageSize: opts.ImageSize}
	for _, col := range features {
		column := &spec.Columns[col]
		switch column.Type {
		case dataset.Numerical:
			if opts.Numerical {
				std := column.Numerical.Std
				if std == 0 {
					std = 1
				}
				e.Numerical = append(e.Numerical, NumericalEncoding{Col: col, Mean: column.Numerical.Mean, Std: std})
				e.Width++
			}
		case dataset.Categorical:
			numValues := column.Categorical.NumValues()
			if numValues <= 1 {
				continue
			}
			enc := CategoricalEncoding{Col: col, NumValues: numValues}
			switch {
			case opts.Embedding:
				e.Embedded = append(e.Embedded, enc)
			case opts.OneHot && numValues <= opts.MaxOneHot:
				e.OneHot = append(e.OneHot, enc)
				e.Width += numValues
			}
		case dataset.Text:
			if opts.TextBuckets > 0 {
				e.Text = append(e.Text, col)
			}
		case dataset.Image:
			if opts.ImageSize > 0 {
				e.Images = append(e.Images, ImageEncoding{Col: col})
			}
		}
	}
	if len(e.Text) > 0 {
		e.Width += e.TextBuckets
	}
	e.Width += len(e.Images) * e.ImageSize * e.ImageSize
	return e
}

// Empty tests if the encoder does not produce any feature.
func (e *Encoder) Empty() bool {
	return e.Width == 0 && len(e.Embedded) == 0
}

// EmbeddingSizes returns the dictionary size of each embedded column.
func (e *Encoder) EmbeddingSizes() []int {
	sizes := make([]int, len(e.Embedded))
	for i, c := range e.Embedded {
		sizes[i] = c.NumValues
	}
	return sizes
}

// Dense encodes a dataset into a row major matrix with Width columns.
func (e *Encoder) Dense(ds *dataset.Dataset) ([][]float64, error) {
	numRows := ds.NumRows()
	buffer := make([]float64, numRows*e.Width)
	rows := make([][]float64, numRows)
	for r := range rows {
		rows[r] = buffer[r*e.Width : (r+1)*e.Width]
	}

	offset := 0
	for _, enc := range e.Numerical {
		values := ds.Numerical(enc.Col)
		for r, v := range values {
			if math.IsNaN(v) {
				continue
			}
			rows[r][offset] = clip((v-enc.Mean)/enc.Std, 10)
		}
		offset++
	}
	for _, enc := range e.OneHot {
		values := ds.Categorical(enc.Col)
		for r, v := range values {
			if int(v) < enc.NumValues {
				rows[r][offset+int(v)] = 1
			}
		}
		offset += enc.NumValues
	}
	if len(e.Text) > 0 {
		for r := 0; r < numRows; r++ {
			var text strings.Builder
			for _, col := range e.Text {
				text.WriteString(ds.Strings(col)[r])
				text.WriteByte(' ')
			}
			e.hashText(text.String(), rows[r][offset:offset+e.TextBuckets])
		}
		offset += e.TextBuckets
	}
	images := newImageLoader(e.ImageSize)
	for _, enc := range e.Images {
		size := e.ImageSize * e.ImageSize
		standardize := len(enc.Mean) == size && len(enc.Std) == size
		for r, path := range ds.Strings(enc.Col) {
			if path == "" {
				continue
			}
			pixels, err := images.load(path)
			if err != nil {
				return nil, err
			}
			dst := rows[r][offset : offset+size]
			if !standardize {
				copy(dst, pixels)
				continue
			}
			for i, p := range pixels {
				dst[i] = clip((p-enc.Mean[i])/enc.Std[i], 10)
			}
		}
		offset += size
	}
	return rows, nil
}

// FitImages computes the per-pixel mean and standard deviation of the image columns on a
// training dataset. Missing images are ignored, and encoded as the mean image.
func (e *Encoder) FitImages(ds *dataset.Dataset) error {
	size := e.ImageSize * e.ImageSize
	images := newImageLoader(e.ImageSize)
	for i := range e.Images {
		enc := &e.Images[i]
		sum := make([]float64, size)
		sumSq := make([]float64, size)
		n := 0
		for _, path := range ds.Strings(enc.Col) {
			if path == "" {
				continue
			}
			pixels, err := images.load(path)
			if err != nil {
				return err
			}
			for j, p := range pixels {
				sum[j] += p
				sumSq[j] += p * p
			}
			n++
		}
		enc.Mean = make([]float64, size)
		enc.Std = make([]float64, size)
		for j := range enc.Std {
			enc.Std[j] = 1
			if n == 0 {
				continue
			}
			mean := sum[j] / float64(n)
			enc.Mean[j] = mean
			if variance := sumSq[j]/float64(n) - mean*mean; variance > 1e-6 {
				enc.Std[j] = math.Sqrt(variance)
			}
		}
	}
	return nil
}

// Categories returns, for each row, the dictionary index of each embedded column.
func (e *Encoder) Categories(ds *dataset.Dataset) [][]int32 {
	numRows := ds.NumRows()
	width := len(e.Embedded)
	buffer := make([]int32, numRows*width)
	rows := make([][]int32, numRows)
	for r := range rows {
		rows[r] = buffer[r*width : (r+1)*width]
	}
	for i, enc := range e.Embedded {
		for r, v := range ds.Categorical(enc.Col) {
			rows[r][i] = v
		}
	}
	return rows
}

func (e *Encoder) hashText(text string, dst []float64) {
	tokens := Tokenize(text)
	for _, token := range tokens {
		dst[Hash(token, len(dst))]++
	}
	if e.TextBigrams {
		for i := 1; i < len(tokens); i++ {
			dst[Hash(tokens[i-1]+" "+tokens[i], len(dst))]++
		}
	}
	norm := 0.0
	for _, v := range dst {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range dst {
			dst[i] /= norm
		}
	}
}

// Tokenize splits a text into lower case words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Hash maps a token to a bucket in [0, numBuckets).
func Hash(token string, numBuckets int) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int(h.Sum32() % uint32(numBuckets))
}

func clip(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
