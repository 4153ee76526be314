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

package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/hyperparameter"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/model/canonical"
	"github.com/autotabular/tabular/predictor"
	"github.com/autotabular/tabular/serving/rest"
)

func newServer(t *testing.T, name string, keys ...string) (*gin.Engine, *predictor.Predictor, *dataset.Dataset) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	train, testDs, err := dataset.Load(ctx, name, "")
	require.NoError(t, err)
	hp, err := hyperparameter.FromKeys(canonical.Register, keys...)
	require.NoError(t, err)
	p, err := predictor.Fit(ctx, train.Subsample(500, 1), predictor.Options{Hyperparameters: hp})
	require.NoError(t, err)
	s, err := rest.New(p, canonical.Register)
	require.NoError(t, err)
	return s.Router(ctxlog.Discard()), p, testDs.Subsample(20, 1)
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func rowsOf(ds *dataset.Dataset) []map[string]any {
	rows := make([]map[string]any, ds.NumRows())
	for r := range rows {
		rows[r] = map[string]any{}
		for c, column := range ds.Spec.Columns {
			if c == ds.Spec.Label {
				continue
			}
			rows[r][column.Name] = ds.Value(r, c)
		}
	}
	return rows
}

func TestModels(t *testing.T) {
	router, _, _ := newServer(t, "adult", "DUMMY")

	w := do(t, router, http.MethodGet, "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Models []rest.ModelInfo `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Models, canonical.Register.Len())

	w = do(t, router, http.MethodGet, "/models?where=Key+in+%5B%27GBM%27%2C+%27RF%27%5D", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 2)
	assert.ElementsMatch(t, []string{"GBM", "RF"}, []string{resp.Models[0].Key, resp.Models[1].Key})

	w = do(t, router, http.MethodGet, "/models?where=Key+%2B", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaderboard(t *testing.T) {
	router, p, _ := newServer(t, "adult", "DUMMY", "LR", "TABPFN")

	w := do(t, router, http.MethodGet, "/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Metric      string                `json:"metric"`
		Best        string                `json:"best"`
		Leaderboard []rest.LeaderboardRow `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, p.Metric(), resp.Metric)
	assert.Equal(t, p.BestName(), resp.Best)
	require.Len(t, resp.Leaderboard, len(p.Leaderboard()))
	for i, row := range p.Leaderboard() {
		assert.Equal(t, row.Name, resp.Leaderboard[i].Name)
		assert.Equal(t, row.Status, resp.Leaderboard[i].Status)
		if row.Status != "fitted" {
			assert.Nil(t, resp.Leaderboard[i].ValScore, row.Name)
			continue
		}
		require.NotNil(t, resp.Leaderboard[i].ValScore)
		assert.InDelta(t, row.ValScore, *resp.Leaderboard[i].ValScore, 1e-9)
	}
}

func TestPredictBinary(t *testing.T) {
	router, p, testDs := newServer(t, "adult", "GBM")
	expected, err := p.Predict(context.Background(), testDs)
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/predict", rest.PredictRequest{Rows: rowsOf(testDs)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp rest.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, p.BestName(), resp.Model)
	require.Len(t, resp.Predictions, testDs.NumRows())

	numSame := 0
	for i, pred := range resp.Predictions {
		require.Len(t, pred.Probabilities, 2)
		assert.InDelta(t, 1.0, pred.Probabilities["<=50K"]+pred.Probabilities[">50K"], 1e-5)
		if pred.Label == expected[i] {
			numSame++
		}
	}
	assert.GreaterOrEqual(t, numSame, testDs.NumRows()-1)
}

func TestPredictMulticlass(t *testing.T) {
	router, p, testDs := newServer(t, "covertype_small", "LR")
	expected, err := p.Predict(context.Background(), testDs)
	require.NoError(t, err)

	w := do(t, router, http.MethodPost, "/predict", rest.PredictRequest{Rows: rowsOf(testDs)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp rest.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	numSame := 0
	for i, pred := range resp.Predictions {
		if pred.Label == expected[i] {
			numSame++
		}
		sum := 0.0
		for _, v := range pred.Probabilities {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
		assert.Nil(t, pred.Value)
	}
	assert.GreaterOrEqual(t, numSame, testDs.NumRows()-1)
}

func TestPredictMissingAndNumbers(t *testing.T) {
	router, _, _ := newServer(t, "adult", "GBM")

	// Numbers can be sent as JSON numbers, and columns can be missing or null.
	rows := []map[string]any{{"age": 39, "workclass": nil}, {}}
	w := do(t, router, http.MethodPost, "/predict", rest.PredictRequest{Rows: rows})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp rest.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Predictions, 2)
	for _, pred := range resp.Predictions {
		for _, v := range pred.Probabilities {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestPredictErrors(t *testing.T) {
	router, _, _ := newServer(t, "adult", "DUMMY")

	w := do(t, router, http.MethodPost, "/predict", map[string]any{"foo": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/predict", rest.PredictRequest{Rows: []map[string]any{{"age": "old"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "age")
}

func TestHealth(t *testing.T) {
	router, p, _ := newServer(t, "adult", "DUMMY")
	w := do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), p.BestName())
}
