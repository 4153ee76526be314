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

// Package rest exposes a trained predictor over HTTP with gin.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/autotabular/tabular/dataset"
	"github.com/autotabular/tabular/internal/ctxlog"
	"github.com/autotabular/tabular/metric"
	"github.com/autotabular/tabular/model/register"
	"github.com/autotabular/tabular/predictor"
	"github.com/autotabular/tabular/serving"
	"github.com/autotabular/tabular/serving/engine"

	// External dependencies, pls keep in this position in file.
	"github.com/gin-gonic/gin"
	// End of external dependencies.//
	//
)

// MaxRowsPerRequest is the maximum number of rows of a prediction request.
const MaxRowsPerRequest = 10000

// Server serves the predictions of a predictor.
type Server struct {
	predictor *predictor.Predictor
	register  *register.Register
	engine    engine.Engine
}

// New creates a server. The best model of the predictor is compiled into an engine.
func New(p *predictor.Predictor, reg *register.Register) (*Server, error) {
	e, err := serving.NewEngine(p.Best())
	if err != nil {
		return nil, fmt.Errorf("creating the engine of %s: %w", p.BestName(), err)
	}
	return &Server{predictor: p, register: reg, engine: e}, nil
}

// ModelInfo describes a registered model type.
type ModelInfo struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
	Problems []string `json:"problems"`
	Tags     []string `json:"tags"`
}

// PredictRequest is the body of a prediction request. Each row maps column names to values.
// Missing columns and null values are missing values.
type PredictRequest struct {
	Rows []map[string]any `json:"rows" binding:"required"`
}

// Prediction is the prediction of a single row. Classification predictions have a label and
// the class probabilities. Regression predictions have a value.
type Prediction struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Value         *float64           `json:"value,omitempty"`
}

// PredictResponse is the response of a prediction request.
type PredictResponse struct {
	Model       string       `json:"model"`
	Predictions []Prediction `json:"predictions"`
}

// LeaderboardRow is a leaderboard row. The score is null for the models that were not fitted.
type LeaderboardRow struct {
	Name       string   `json:"name"`
	Key        string   `json:"key"`
	Level      int      `json:"level"`
	Status     string   `json:"status"`
	ValScore   *float64 `json:"val_score"`
	FitSeconds float64  `json:"fit_seconds"`
	Error      string   `json:"error,omitempty"`
}

// Router creates the gin router of the server.
func (s *Server) Router(logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.GET("/healthz", s.Health)
	router.GET("/models", s.ListModels)
	router.GET("/leaderboard", s.Leaderboard)
	router.POST("/predict", s.Predict)
	return router
}

// Run serves on "addr" until the context is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	logger := ctxlog.FromContext(ctx)
	srv := &http.Server{Addr: addr, Handler: s.Router(logger), ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", addr, "model", s.predictor.BestName())
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{"error": err.Error()})
}

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.predictor.BestName()})
}

// ListModels handles GET /models. The optional "where" query parameter filters the model
// types with a register expression e.g. "'tree' in Tags".
func (s *Server) ListModels(c *gin.Context) {
	specs := s.register.Specs()
	if where := c.Query("where"); where != "" {
		var err error
		if specs, err = s.register.Select(where); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
	}
	infos := make([]ModelInfo, len(specs))
	for i, spec := range specs {
		infos[i] = ModelInfo{
			Key:      spec.Key,
			Name:     spec.Name,
			Priority: spec.Priority,
			Tags:     append([]string{}, spec.Tags...),
		}
		for _, p := range spec.Problems {
			infos[i].Problems = append(infos[i].Problems, string(p))
		}
	}
	c.JSON(http.StatusOK, gin.H{"models": infos})
}

// Leaderboard handles GET /leaderboard.
func (s *Server) Leaderboard(c *gin.Context) {
	rows := s.predictor.Leaderboard()
	leaderboard := make([]LeaderboardRow, len(rows))
	for i, row := range rows {
		leaderboard[i] = LeaderboardRow{
			Name:       row.Name,
			Key:        row.Key,
			Level:      row.Level,
			Status:     row.Status,
			FitSeconds: row.FitSeconds,
			Error:      row.Error,
		}
		if !math.IsNaN(row.ValScore) && !math.IsInf(row.ValScore, 0) {
			score := row.ValScore
			leaderboard[i].ValScore = &score
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"metric":      s.predictor.Metric(),
		"best":        s.predictor.BestName(),
		"leaderboard": leaderboard,
	})
}

// Predict handles POST /predict.
func (s *Server) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Rows) > MaxRowsPerRequest {
		respondError(c, http.StatusBadRequest,
			fmt.Errorf("%d rows in the request, the maximum is %d", len(req.Rows), MaxRowsPerRequest))
		return
	}

	numRows := len(req.Rows)
	batch := s.engine.AllocateExamples(numRows)
	batch.FillMissing()
	for i, row := range req.Rows {
		values := make(map[string]string, len(row))
		for key, v := range row {
			values[key] = formatValue(v)
		}
		if err := batch.SetFromMap(i, values); err != nil {
			respondError(c, http.StatusBadRequest, fmt.Errorf("row %d: %w", i, err))
			return
		}
	}
	outputs := s.engine.AllocatePredictions(numRows)
	if err := s.engine.Predict(batch, numRows, outputs); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, PredictResponse{
		Model:       s.predictor.BestName(),
		Predictions: s.toPredictions(outputs, numRows),
	})
}

// toPredictions converts the engine outputs into predictions.
func (s *Server) toPredictions(outputs []float32, numRows int) []Prediction {
	header := s.predictor.Best().Header()
	outputDim := s.engine.OutputDim()
	predictions := make([]Prediction, numRows)
	for i := range predictions {
		raw := outputs[i*outputDim : (i+1)*outputDim]
		if header.Problem == dataset.Regression {
			value := float64(raw[0])
			predictions[i] = Prediction{Label: strconv.FormatFloat(value, 'g', -1, 64), Value: &value}
			continue
		}
		probas := make([]float64, len(header.Classes))
		if header.Problem == dataset.Binary {
			probas[0], probas[1] = 1-float64(raw[0]), float64(raw[0])
		} else {
			for k := range probas {
				probas[k] = float64(raw[k])
			}
		}
		predictions[i].Label = header.Classes[metric.Argmax(probas)]
		predictions[i].Probabilities = make(map[string]float64, len(probas))
		for k, class := range header.Classes {
			predictions[i].Probabilities[class] = probas[k]
		}
	}
	return predictions
}

// formatValue converts a JSON value into the raw string representation of a cell.
func formatValue(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	}
	return fmt.Sprint(v)
}
