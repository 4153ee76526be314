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

package encoding

import (
	"fmt"
	"image"
	"os"

	// Image decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageLoader decodes and downsamples images. Each path is decoded at most once during the
// lifetime of the loader.
type imageLoader struct {
	size  int
	cache map[string][]float64
}

func newImageLoader(size int) *imageLoader {
	return &imageLoader{size: size, cache: map[string][]float64{}}
}

// load returns the size x size grayscale values in [0, 1] of an image, using box filtering.
func (l *imageLoader) load(path string) ([]float64, error) {
	if pixels, ok := l.cache[path]; ok {
		return pixels, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %q: %w", path, err)
	}
	pixels := Downsample(img, l.size)
	l.cache[path] = pixels
	return pixels, nil
}

// Downsample converts an image to size x size grayscale values in [0, 1].
func Downsample(img image.Image, size int) []float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	sums := make([]float64, size*size)
	counts := make([]float64, size*size)
	for y := 0; y < h; y++ {
		cy := y * size / h
		for x := 0; x < w; x++ {
			cx := x * size / w
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R 601 luma on 16 bits channels.
			luma := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535
			sums[cy*size+cx] += luma
			counts[cy*size+cx]++
		}
	}
	for i := range sums {
		if counts[i] > 0 {
			sums[i] /= counts[i]
		}
	}
	return sums
}
