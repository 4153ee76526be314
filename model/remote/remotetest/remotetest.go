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

// Package remotetest implements an in-process model service for the tests of the remote
// models. Its models predict the label prior of their training data.
package remotetest

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/autotabular/tabular/model/remote"

	// External dependencies, pls keep in this position in file.
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	// End of external dependencies.//
	//
)

// Service is a fake model service.
type Service struct {
	mu     sync.Mutex
	models map[string][]float64
	// Fits are the received training requests.
	Fits []remote.FitRequest
}

// NewServer starts a fake model service. The server is closed at the end of the test.
func NewServer(t interface{ Cleanup(func()) }) (*Service, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	s := &Service{models: map[string][]float64{}}
	r := gin.New()
	r.POST("/v1/fit", s.fit)
	r.POST("/v1/predict", s.predict)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return s, server
}

func (s *Service) fit(c *gin.Context) {
	var req remote.FitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, remote.ErrorResponse{Error: err.Error()})
		return
	}
	if len(req.Rows) == 0 || len(req.Rows) != len(req.Labels) {
		c.JSON(http.StatusBadRequest, remote.ErrorResponse{Error: "rows and labels do not match"})
		return
	}
	var prior []float64
	if req.NumClasses > 0 {
		prior = make([]float64, req.NumClasses)
		for _, l := range req.Labels {
			prior[int(l)]++
		}
	} else {
		prior = []float64{0}
		for _, l := range req.Labels {
			prior[0] += l
		}
	}
	for i := range prior {
		prior[i] /= float64(len(req.Labels))
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.models[id] = prior
	s.Fits = append(s.Fits, req)
	s.mu.Unlock()
	c.JSON(http.StatusOK, remote.FitResponse{ModelID: id})
}

func (s *Service) predict(c *gin.Context) {
	var req remote.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, remote.ErrorResponse{Error: err.Error()})
		return
	}
	s.mu.Lock()
	prior, ok := s.models[req.ModelID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, remote.ErrorResponse{Error: "unknown model " + req.ModelID})
		return
	}
	probs := make([][]float64, len(req.Rows))
	for i := range probs {
		probs[i] = prior
	}
	c.JSON(http.StatusOK, remote.PredictResponse{Probabilities: probs})
}

// LastFit returns the last training request.
func (s *Service) LastFit() remote.FitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Fits[len(s.Fits)-1]
}
