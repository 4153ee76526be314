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

// Package test contains small helpers shared by the tests of the module.
package test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// CheckEq fails the test if "got" and "want" differ. "msg" is printed along the diff.
func CheckEq(t testing.TB, got, want any, msg string) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s: unexpected value (-want +got):\n%s", msg, diff)
	}
}

// CheckNear fails the test if "got" and "want" differ by more than "margin".
func CheckNear(t testing.TB, got, want, margin float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > margin {
		t.Errorf("%s: got %v, want %v (+/- %v)", msg, got, want, margin)
	}
}

// CheckSlicesNear compares two matrices of floats with an absolute tolerance.
func CheckSlicesNear(t testing.TB, got, want [][]float64, margin float64, msg string) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, margin), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("%s: unexpected value (-want +got):\n%s", msg, diff)
	}
}
