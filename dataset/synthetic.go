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
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// The datasets below are synthetic stand-ins generated when the real files are not available
// locally. They keep the schema, the problem type and the difficulty order of magnitude of the
// original datasets.

func init() {
	Register(Info{
		Name:      "adult",
		Label:     "class",
		Problem:   Binary,
		Generate:  generateAdult,
		TrainRows: 2000,
		TestRows:  500,
	})
	Register(Info{
		Name:      "covertype_small",
		Label:     "Cover_Type",
		Problem:   Multiclass,
		Generate:  generateCovertype,
		TrainRows: 2000,
		TestRows:  500,
	})
}

func pick(rng *rand.Rand, values []string, weights []float64) (int, string) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	x := rng.Float64() * total
	for i, w := range weights {
		x -= w
		if x <= 0 {
			return i, values[i]
		}
	}
	return len(values) - 1, values[len(values)-1]
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func formatInt(v float64) string {
	return strconv.Itoa(int(math.Round(v)))
}

var (
	adultWorkclass    = []string{"Private", "Self-emp-not-inc", "Local-gov", "State-gov", "Self-emp-inc", "Federal-gov", "Without-pay"}
	adultWorkclassW   = []float64{70, 8, 6, 4, 3.5, 3, 0.5}
	adultEducation    = []string{"HS-grad", "Some-college", "Bachelors", "Masters", "Assoc-voc", "11th", "Assoc-acdm", "10th", "Prof-school", "Doctorate"}
	adultEducationW   = []float64{32, 22, 16, 5, 4, 4, 3, 3, 2, 1.5}
	adultEducationNum = []float64{9, 10, 13, 14, 11, 7, 12, 6, 15, 16}
	adultMarital      = []string{"Married-civ-spouse", "Never-married", "Divorced", "Separated", "Widowed"}
	adultMaritalW     = []float64{46, 33, 14, 3, 3}
	adultOccupation   = []string{"Prof-specialty", "Craft-repair", "Exec-managerial", "Adm-clerical", "Sales", "Other-service", "Machine-op-inspct", "Transport-moving", "Handlers-cleaners", "Tech-support"}
	adultOccupationW  = []float64{13, 13, 12, 12, 11, 10, 6, 5, 4, 3}
	adultRace         = []string{"White", "Black", "Asian-Pac-Islander", "Amer-Indian-Eskimo", "Other"}
	adultRaceW        = []float64{85, 10, 3, 1, 1}
	adultCountry      = []string{"United-States", "Mexico", "Philippines", "Germany", "Canada", "India"}
	adultCountryW     = []float64{90, 2, 1, 1, 1, 1}
)

// generateAdult generates records with the schema of the UCI "adult" census dataset.
func generateAdult(numRows int, seed int64) ([]string, [][]string) {
	header := []string{"age", "workclass", "fnlwgt", "education", "education-num", "marital-status",
		"occupation", "relationship", "race", "sex", "capital-gain", "capital-loss", "hours-per-week",
		"native-country", "class"}
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]string, 0, numRows)
	for i := 0; i < numRows; i++ {
		age := math.Max(17, math.Min(90, 38+13*rng.NormFloat64()))
		_, workclass := pick(rng, adultWorkclass, adultWorkclassW)
		fnlwgt := math.Max(12000, 190000+100000*rng.NormFloat64())
		eduIdx, education := pick(rng, adultEducation, adultEducationW)
		eduNum := adultEducationNum[eduIdx]
		maritalIdx, marital := pick(rng, adultMarital, adultMaritalW)
		occIdx, occupation := pick(rng, adultOccupation, adultOccupationW)
		_, race := pick(rng, adultRace, adultRaceW)
		sex := "Male"
		if rng.Float64() < 0.33 {
			sex = "Female"
		}
		relationship := "Not-in-family"
		switch {
		case maritalIdx == 0 && sex == "Male":
			relationship = "Husband"
		case maritalIdx == 0:
			relationship = "Wife"
		case age < 25:
			relationship = "Own-child"
		case rng.Float64() < 0.3:
			relationship = "Unmarried"
		}
		capitalGain := 0.0
		if rng.Float64() < 0.08 {
			capitalGain = math.Exp(7 + 2*rng.Float64())
		}
		capitalLoss := 0.0
		if rng.Float64() < 0.05 {
			capitalLoss = 1500 + 500*rng.Float64()
		}
		hours := math.Max(1, math.Min(99, 40+12*rng.NormFloat64()))
		_, country := pick(rng, adultCountry, adultCountryW)

		z := -8.5 + 0.04*age + 0.38*eduNum + 0.03*hours
		if maritalIdx == 0 {
			z += 1.9
		}
		if sex == "Male" {
			z += 0.3
		}
		if occIdx == 0 || occIdx == 2 {
			z += 0.8
		}
		if capitalGain > 5000 {
			z += 3
		}
		if capitalLoss > 1800 {
			z += 1
		}
		class := "<=50K"
		if rng.Float64() < sigmoid(z) {
			class = ">50K"
		}

		// Missing values, as in the original dataset.
		if rng.Float64() < 0.05 {
			workclass = "?"
			occupation = "?"
		}

		rows = append(rows, []string{
			formatInt(age), workclass, formatInt(fnlwgt), education, formatInt(eduNum), marital,
			occupation, relationship, race, sex, formatInt(capitalGain), formatInt(capitalLoss),
			formatInt(hours), country, class,
		})
	}
	return header, rows
}

// generateCovertype generates records with the schema of the "covertype" forest cover dataset
// (seven classes, cartographic features, wilderness area and soil type).
func generateCovertype(numRows int, seed int64) ([]string, [][]string) {
	header := []string{"Elevation", "Aspect", "Slope", "Horizontal_Distance_To_Hydrology",
		"Vertical_Distance_To_Hydrology", "Horizontal_Distance_To_Roadways", "Hillshade_9am",
		"Hillshade_Noon", "Hillshade_3pm", "Horizontal_Distance_To_Fire_Points", "Wilderness_Area",
		"Soil_Type", "Cover_Type"}
	classes := []string{"1", "2", "3", "4", "5", "6", "7"}
	classW := []float64{36, 49, 6, 1, 2, 3, 3}
	elevation := []float64{3130, 2920, 2390, 2220, 2790, 2420, 3360}
	slope := []float64{13, 13, 20, 18, 16, 19, 14}
	roadways := []float64{2600, 2400, 950, 900, 1350, 1050, 2700}
	fire := []float64{2000, 2400, 900, 850, 1570, 1050, 2100}
	wilderness := [][]float64{
		{45, 5, 45, 5}, {50, 5, 40, 5}, {0, 0, 35, 65}, {0, 0, 0, 100},
		{60, 0, 40, 0}, {0, 0, 55, 45}, {30, 10, 60, 0},
	}

	rng := rand.New(rand.NewSource(seed))
	rows := make([][]string, 0, numRows)
	for i := 0; i < numRows; i++ {
		c, class := pick(rng, classes, classW)
		elev := elevation[c] + 150*rng.NormFloat64()
		aspect := math.Mod(math.Abs(155+110*rng.NormFloat64()), 360)
		sl := math.Max(0, slope[c]+7*rng.NormFloat64())
		hHydro := math.Max(0, 270+210*rng.NormFloat64())
		vHydro := 45 + 58*rng.NormFloat64()
		road := math.Max(0, roadways[c]+900*rng.NormFloat64())
		hill9 := math.Max(0, math.Min(254, 212+27*rng.NormFloat64()))
		hillNoon := math.Max(0, math.Min(254, 223+20*rng.NormFloat64()))
		hill3 := math.Max(0, math.Min(254, 142+38*rng.NormFloat64()))
		fp := math.Max(0, fire[c]+800*rng.NormFloat64())
		area, _ := pick(rng, []string{"1", "2", "3", "4"}, wilderness[c])
		soil := 1 + (c*5+rng.Intn(12))%40
		if rng.Float64() < 0.2 {
			soil = 1 + rng.Intn(40)
		}
		rows = append(rows, []string{
			formatInt(elev), formatInt(aspect), formatInt(sl), formatInt(hHydro), formatInt(vHydro),
			formatInt(road), formatInt(hill9), formatInt(hillNoon), formatInt(hill3), formatInt(fp),
			fmt.Sprintf("area_%d", area+1), fmt.Sprintf("soil_%d", soil), class,
		})
	}
	return header, rows
}
