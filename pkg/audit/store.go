// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit persists guarded run outcomes in SQLite for later review.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	rgerrors "github.com/railguard-ai/railguard/pkg/errors"
	"github.com/railguard-ai/railguard/pkg/guardrails"
)

// Store persists guarded runs and their per-check results.
type Store struct {
	db *sql.DB
}

// RunRecord is one persisted guarded turn.
type RunRecord struct {
	RunID     string
	CreatedAt time.Time
	Tripped   bool
}

// CheckRecord is one persisted check verdict within a run.
type CheckRecord struct {
	RunID           string
	Stage           string
	CheckName       string
	Tripped         bool
	ExecutionFailed bool
	Confidence      float64
	Reason          string
	Info            guardrails.Info
}

// Open opens (or creates) the audit database at path and ensures schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("audit: empty database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, rgerrors.New(rgerrors.CodeStorage, "failed to open audit database", err).
			WithContext("path", path)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, rgerrors.New(rgerrors.CodeStorage, "failed to ensure audit schema", err).
			WithContext("path", path)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle and ensures schema.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("audit: db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores one guarded turn and every check result it produced.
func (s *Store) RecordRun(ctx context.Context, runID string, results guardrails.ResultSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, tripped) VALUES (?, ?, ?)
	`, runID, time.Now().UTC(), results.AnyTripped()); err != nil {
		return err
	}

	for _, res := range results.All() {
		info, err := json.Marshal(res.Info)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO check_results (
				run_id, stage, check_name, tripped, execution_failed, confidence, reason, info_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID,
			string(res.Info.Stage),
			res.Info.CheckName,
			res.TripwireTriggered,
			res.ExecutionFailed,
			res.Info.Confidence,
			res.Info.Reason,
			string(info),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT run_id, created_at, tripped FROM runs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.CreatedAt, &rec.Tripped); err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// Results returns the check verdicts recorded for one run, in pipeline order.
func (s *Store) Results(ctx context.Context, runID string) ([]CheckRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, check_name, tripped, execution_failed, confidence, reason, info_json
		FROM check_results WHERE run_id = ? ORDER BY rowid ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CheckRecord
	for rows.Next() {
		var (
			rec      CheckRecord
			infoJSON string
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.Stage,
			&rec.CheckName,
			&rec.Tripped,
			&rec.ExecutionFailed,
			&rec.Confidence,
			&rec.Reason,
			&infoJSON,
		); err != nil {
			return nil, err
		}
		if infoJSON != "" {
			if err := json.Unmarshal([]byte(infoJSON), &rec.Info); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			tripped BOOLEAN NOT NULL
		);
		CREATE TABLE IF NOT EXISTS check_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			check_name TEXT NOT NULL,
			tripped BOOLEAN NOT NULL,
			execution_failed BOOLEAN NOT NULL,
			confidence REAL,
			reason TEXT,
			info_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_check_results_run ON check_results(run_id);
	`)
	return err
}
