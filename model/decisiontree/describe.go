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

package decisiontree

import (
	"fmt"
	"strings"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model/decisiontree/node"
)

// DescribeCondition gives a human readable description of a condition, or of its negation.
func DescribeCondition(spec *dataset.DataSpec, c *node.Condition, negated bool) string {
	name := spec.Columns[c.Feature].Name
	switch c.Type {
	case node.NumericalHigher:
		if negated {
			return fmt.Sprintf("%s < %g", name, c.Threshold)
		}
		return fmt.Sprintf("%s >= %g", name, c.Threshold)
	case node.CategoricalIn:
		var values []string
		if categorical := spec.Columns[c.Feature].Categorical; categorical != nil {
			for i, item := range categorical.Items {
				if node.HasBit(c.Positive, int32(i)) != negated {
					values = append(values, item)
				}
			}
		}
		return fmt.Sprintf("%s in {%s}", name, strings.Join(values, ", "))
	}
	return fmt.Sprintf("%s ?", name)
}
