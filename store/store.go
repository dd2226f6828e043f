// Package store persists provisioning run history to Postgres. The registry
// itself is deliberately in-memory only; this is audit bookkeeping, optional
// and best-effort, so a nil store is a valid no-op configuration.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned by reads when no database is wired in. Writes
// silently no-op instead; only readers need to tell the difference.
var ErrNotConfigured = errors.New("run store is not configured")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusFailed    = "failed"
	StatusSucceeded = "succeeded"
)

// StepState records one pipeline step transition within a run.
type StepState struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// Run is one provisioning attempt for a user.
type Run struct {
	ID         string               `json:"id"`
	UserID     int64                `json:"user_id"`
	Status     string               `json:"status"`
	Steps      map[string]StepState `json:"steps"`
	LastError  string               `json:"last_error,omitempty"`
	StartedAt  string               `json:"started_at,omitempty"`
	FinishedAt string               `json:"finished_at,omitempty"`
}

// RunStore records provisioning runs in the hosting_runs table.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) enabled() bool {
	return s != nil && s.db != nil
}

// StartRun opens a new run record and returns its ID. Returns an empty ID
// when the store is not configured.
func (s *RunStore) StartRun(ctx context.Context, userID int64) (string, error) {
	if !s.enabled() {
		return "", nil
	}

	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hosting_runs (id, user_id, status, steps, started_at)
		VALUES ($1, $2, $3, '{}'::jsonb, NOW())`,
		runID, userID, StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("insert hosting run: %w", err)
	}
	return runID, nil
}

// RecordStep merges one step transition into the run's steps document.
func (s *RunStore) RecordStep(ctx context.Context, runID, step, status, message string) error {
	if !s.enabled() || runID == "" {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE hosting_runs
		SET steps = COALESCE(steps, '{}'::jsonb) || jsonb_build_object(
			$2,
			jsonb_build_object('status', $3, 'message', $4, 'updated_at', NOW())
		)
		WHERE id = $1`,
		runID, step, status, message,
	)
	if err != nil {
		return fmt.Errorf("record run step: %w", err)
	}
	return nil
}

// FinishRun closes the run with a final status.
func (s *RunStore) FinishRun(ctx context.Context, runID, status, lastError string) error {
	if !s.enabled() || runID == "" {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE hosting_runs
		SET status = $2,
			last_error = NULLIF($3, ''),
			finished_at = NOW()
		WHERE id = $1`,
		runID, status, lastError,
	)
	if err != nil {
		return fmt.Errorf("finish hosting run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent run for a user.
func (s *RunStore) LatestRun(ctx context.Context, userID int64) (*Run, error) {
	if !s.enabled() {
		return nil, ErrNotConfigured
	}

	var (
		out        Run
		stepsRaw   []byte
		lastError  sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, COALESCE(steps, '{}'::jsonb), last_error, started_at, finished_at
		FROM hosting_runs
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT 1`,
		userID,
	).Scan(&out.ID, &out.UserID, &out.Status, &stepsRaw, &lastError, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hosting run: %w", err)
	}

	steps := make(map[string]StepState)
	if len(stepsRaw) > 0 {
		if err := json.Unmarshal(stepsRaw, &steps); err != nil {
			return nil, fmt.Errorf("decode run steps: %w", err)
		}
	}
	out.Steps = steps
	if lastError.Valid {
		out.LastError = lastError.String
	}
	if startedAt.Valid {
		out.StartedAt = startedAt.Time.UTC().Format(time.RFC3339)
	}
	if finishedAt.Valid {
		out.FinishedAt = finishedAt.Time.UTC().Format(time.RFC3339)
	}
	return &out, nil
}
