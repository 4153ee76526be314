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

package modeltest

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autotabular/tabular/dataset"
)

var (
	positiveWords = []string{"great", "excellent", "loved", "wonderful", "amazing", "superb", "fun"}
	negativeWords = []string{"terrible", "boring", "awful", "waste", "poor", "dull", "bad"}
	neutralWords  = []string{"movie", "plot", "actor", "scene", "story", "film", "ending", "music"}
)

func splitThree(t testing.TB, all *dataset.Dataset) (train, valid, test *dataset.Dataset) {
	t.Helper()
	rest, test, err := all.Split(0.25, 1)
	if err != nil {
		t.Fatal(err)
	}
	train, valid, err = rest.Split(0.2, 2)
	if err != nil {
		t.Fatal(err)
	}
	return train, valid, test
}

// Text generates a binary sentiment dataset with a text column and a numerical column.
func Text(t testing.TB, numRows int) (train, valid, test *dataset.Dataset) {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	header := []string{"review", "length", "sentiment"}
	rows := make([][]string, numRows)
	for i := range rows {
		positive := rng.Intn(2) == 1
		words := []string{}
		for j := 0; j < 6; j++ {
			switch {
			case rng.Float64() < 0.5:
				words = append(words, neutralWords[rng.Intn(len(neutralWords))])
			case positive:
				words = append(words, positiveWords[rng.Intn(len(positiveWords))])
			default:
				words = append(words, negativeWords[rng.Intn(len(negativeWords))])
			}
		}
		words = append(words, fmt.Sprintf("id%d", i))
		label := "neg"
		if positive {
			label = "pos"
		}
		rows[i] = []string{strings.Join(words, " "), fmt.Sprint(rng.Intn(100)), label}
	}
	all, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "sentiment"})
	if err != nil {
		t.Fatal(err)
	}
	if all.Spec.Columns[0].Type != dataset.Text {
		t.Fatalf("the review column is %v", all.Spec.Columns[0].Type)
	}
	return splitThree(t, all)
}

// Images generates a binary dataset of bright and dark PNG images written in a temporary
// directory.
func Images(t testing.TB, numRows int) (train, valid, test *dataset.Dataset) {
	t.Helper()
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(4))
	header := []string{"image", "label"}
	rows := make([][]string, numRows)
	for i := range rows {
		bright := rng.Intn(2) == 1
		img := image.NewGray(image.Rect(0, 0, 24, 24))
		for y := 0; y < 24; y++ {
			for x := 0; x < 24; x++ {
				v := 40 + rng.Intn(60)
				if bright {
					v += 120
				}
				img.SetGray(x, y, color.Gray{Y: uint8(v)})
			}
		}
		path := filepath.Join(dir, fmt.Sprintf("img_%d.png", i))
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
		label := "dark"
		if bright {
			label = "bright"
		}
		rows[i] = []string{path, label}
	}
	all, err := dataset.FromRecords(header, rows, dataset.InferOptions{Label: "label"})
	if err != nil {
		t.Fatal(err)
	}
	if all.Spec.Columns[0].Type != dataset.Image {
		t.Fatalf("the image column is %v", all.Spec.Columns[0].Type)
	}
	return splitThree(t, all)
}
