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

// Package remote implements the models trained and served by an external model service.
//
// The service speaks JSON over HTTP:
//
//	POST /v1/fit     {model_key, problem_type, hyperparameters, columns, rows, labels}
//	              -> {model_id}
//	POST /v1/predict {model_id, rows}
//	              -> {probabilities}
//
// Without a configured endpoint, the models report model.ErrDependencyUnavailable and are
// skipped by the trainer.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/model"
)

// DefaultTimeout bounds the requests when the backend does not specify a timeout.
const DefaultTimeout = 5 * time.Minute

const bodyFilename = "remote.msgpack"

// Column describes a column sent to the service.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FitRequest is the payload of /v1/fit.
type FitRequest struct {
	ModelKey        string                `json:"model_key"`
	ProblemType     dataset.ProblemType   `json:"problem_type"`
	Hyperparameters model.Hyperparameters `json:"hyperparameters"`
	Columns         []Column              `json:"columns"`
	Rows            [][]any               `json:"rows"`
	// Labels are class indices for classification and target values for regression.
	Labels     []float64 `json:"labels"`
	NumClasses int       `json:"num_classes,omitempty"`
}

// FitResponse is the answer of /v1/fit.
type FitResponse struct {
	ModelID string `json:"model_id"`
}

// PredictRequest is the payload of /v1/predict.
type PredictRequest struct {
	ModelID string  `json:"model_id"`
	Rows    [][]any `json:"rows"`
}

// PredictResponse is the answer of /v1/predict.
type PredictResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
}

// ErrorResponse is returned by the service on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client calls the model service.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client. Returns model.ErrDependencyUnavailable if the endpoint is not
// configured.
func NewClient(backend model.ExternalBackend) (*Client, error) {
	if backend.Endpoint == "" {
		return nil, fmt.Errorf("no external model endpoint configured: %w", model.ErrDependencyUnavailable)
	}
	timeout := backend.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(backend.Endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, e.Error, httpResp.StatusCode)
		}
		return fmt.Errorf("%s: status %d", path, httpResp.StatusCode)
	}
	if err := json.Unmarshal(body, resp); err != nil {
		return fmt.Errorf("%s: invalid response: %w", path, err)
	}
	return nil
}

// Fit trains a model on the service.
func (c *Client) Fit(ctx context.Context, req *FitRequest) (*FitResponse, error) {
	resp := &FitResponse{}
	if err := c.post(ctx, "/v1/fit", req, resp); err != nil {
		return nil, err
	}
	if resp.ModelID == "" {
		return nil, fmt.Errorf("/v1/fit: empty model id")
	}
	return resp, nil
}

// Predict computes predictions with a model trained on the service.
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error) {
	resp := &PredictResponse{}
	if err := c.post(ctx, "/v1/predict", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Columns describes the given columns of a dataspec.
func Columns(spec *dataset.DataSpec, cols []int) []Column {
	columns := make([]Column, len(cols))
	for i, col := range cols {
		columns[i] = Column{Name: spec.Columns[col].Name, Type: spec.Columns[col].Type.String()}
	}
	return columns
}

// Rows converts the given columns of a dataset into JSON values: numbers for numerical
// columns, strings otherwise and null for missing values.
func Rows(ds *dataset.Dataset, cols []int) [][]any {
	rows := make([][]any, ds.NumRows())
	for r := range rows {
		row := make([]any, len(cols))
		for i, col := range cols {
			if ds.Spec.Columns[col].Type == dataset.Numerical {
				if v := ds.Numerical(col)[r]; !math.IsNaN(v) {
					row[i] = v
				}
				continue
			}
			if v := ds.Value(r, col); v != "" {
				row[i] = v
			}
		}
		rows[r] = row
	}
	return rows
}

// Labels converts the label of a dataset into JSON values.
func Labels(ds *dataset.Dataset) []float64 {
	if ds.Spec.Problem.IsClassification() {
		labels := ds.Labels()
		out := make([]float64, len(labels))
		for i, l := range labels {
			out[i] = float64(l)
		}
		return out
	}
	return ds.Targets()
}
