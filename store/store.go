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

// Package store records the training runs and their leaderboards in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	// External dependencies, pls keep in this position in file.
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	// End of external dependencies.
	//
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is a training run.
type Run struct {
	ID          string
	Dataset     string
	ProblemType string
	StartedAt   time.Time
	Duration    time.Duration
	BestModel   string
	// Results are the models of the run, in leaderboard order. Only set by RecordRun and Run.
	Results []ModelResult
}

// ModelResult is the outcome of the training of one model.
type ModelResult struct {
	ModelKey  string
	ModelName string
	Status    string
	// ValScore is NaN if the model was not fitted.
	ValScore   float64
	FitSeconds float64
	Error      string
}

// Store is a run store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a store and applies the schema migrations. Use ":memory:" for a
// temporary store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %q: %w", path, err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// runMigrations applies the embedded up migrations. The migrate instance is not closed since
// closing it would close "db".
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return err
	}
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullScore(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// RecordRun saves a run and its model results. A new id is assigned if the run has none.
// Returns the id of the run.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
	INSERT INTO fit_runs(id, dataset, problem_type, started_at, duration, best_model)
	VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, run.Dataset, run.ProblemType, run.StartedAt.UTC(), run.Duration.Seconds(), run.BestModel); err != nil {
			return err
		}
		for i, r := range run.Results {
			if _, err := tx.ExecContext(ctx, `
	INSERT INTO model_results(run_id, position, model_key, model_name, status, val_score, fit_seconds, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, r.ModelKey, r.ModelName, r.Status, nullScore(r.ValScore), r.FitSeconds, r.Error); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, dataset, problem_type, started_at, duration, best_model`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var seconds float64
	if err := row.Scan(&r.ID, &r.Dataset, &r.ProblemType, &r.StartedAt, &seconds, &r.BestModel); err != nil {
		return Run{}, err
	}
	r.Duration = time.Duration(seconds * float64(time.Second))
	return r, nil
}

// ListRuns returns the runs, most recent first. The model results are not loaded.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM fit_runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run returns a run with its model results.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM fit_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	if r.Results, err = s.ModelResults(ctx, id); err != nil {
		return Run{}, err
	}
	return r, nil
}

// ModelResults returns the model results of a run in leaderboard order.
func (s *Store) ModelResults(ctx context.Context, runID string) ([]ModelResult, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT model_key, model_name, status, val_score, fit_seconds, error
	FROM model_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModelResult
	for rows.Next() {
		var r ModelResult
		var score sql.NullFloat64
		if err := rows.Scan(&r.ModelKey, &r.ModelName, &r.Status, &score, &r.FitSeconds, &r.Error); err != nil {
			return nil, err
		}
		r.ValScore = math.NaN()
		if score.Valid {
			r.ValScore = score.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its model results.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fit_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%q: %w", id, ErrRunNotFound)
	}
	return nil
}
