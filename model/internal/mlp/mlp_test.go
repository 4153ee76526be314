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

package mlp

import (
	"testing"

	"github.com/autotabular/tabular/utils/test"
)

func TestBatchSize(t *testing.T) {
	test.CheckEq(t, batchSize(0, 10000), 128, "default")
	test.CheckEq(t, batchSize(64, 10000), 64, "")
	test.CheckEq(t, batchSize(128, 72), 16, "small dataset")
	test.CheckEq(t, batchSize(128, 400), 50, "")
	test.CheckEq(t, batchSize(8, 72), 8, "")
}
