package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRunStoreNilIsNoOp(t *testing.T) {
	t.Parallel()
	var s *RunStore

	runID, err := s.StartRun(context.Background(), 7)
	if err != nil || runID != "" {
		t.Fatalf("StartRun() = %q, %v, want empty no-op", runID, err)
	}
	if err := s.RecordStep(context.Background(), "r1", "fetch artifact", StatusRunning, "cloning"); err != nil {
		t.Fatalf("RecordStep() error = %v", err)
	}
	if err := s.FinishRun(context.Background(), "r1", StatusSucceeded, ""); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	if _, err := s.LatestRun(context.Background(), 7); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("LatestRun() error = %v, want ErrNotConfigured", err)
	}
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewRunStore(db)

	mock.ExpectExec("INSERT INTO hosting_runs").
		WithArgs(sqlmock.AnyArg(), int64(7), StatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))
	runID, err := s.StartRun(context.Background(), 7)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if runID == "" {
		t.Fatal("StartRun() returned empty id")
	}

	mock.ExpectExec("UPDATE hosting_runs").
		WithArgs(runID, "fetch artifact", StatusRunning, "Cloning repository from GitHub...").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.RecordStep(context.Background(), runID, "fetch artifact", StatusRunning, "Cloning repository from GitHub..."); err != nil {
		t.Fatalf("RecordStep() error = %v", err)
	}

	mock.ExpectExec("UPDATE hosting_runs").
		WithArgs(runID, StatusFailed, "install requirements: boom").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.FinishRun(context.Background(), runID, StatusFailed, "install requirements: boom"); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRunStoreSkipsEmptyRunID(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewRunStore(db)
	if err := s.RecordStep(context.Background(), "", "x", StatusRunning, "m"); err != nil {
		t.Fatalf("RecordStep() error = %v", err)
	}
	if err := s.FinishRun(context.Background(), "", StatusFailed, "m"); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no queries: %v", err)
	}
}

func TestLatestRun(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	started := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	steps := `{"fetch artifact":{"status":"running","message":"Cloning repository from GitHub...","updated_at":"2026-08-01T10:00:05Z"}}`

	rows := sqlmock.NewRows([]string{"id", "user_id", "status", "steps", "last_error", "started_at", "finished_at"}).
		AddRow("r1", int64(7), StatusSucceeded, []byte(steps), nil, started, finished)
	mock.ExpectQuery("SELECT id, user_id, status").WithArgs(int64(7)).WillReturnRows(rows)

	s := NewRunStore(db)
	run, err := s.LatestRun(context.Background(), 7)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if run == nil {
		t.Fatal("LatestRun() = nil")
	}
	if run.Status != StatusSucceeded {
		t.Fatalf("Status = %q", run.Status)
	}
	if step, ok := run.Steps["fetch artifact"]; !ok || step.Status != StatusRunning {
		t.Fatalf("Steps = %#v", run.Steps)
	}
	if run.StartedAt != "2026-08-01T10:00:00Z" {
		t.Fatalf("StartedAt = %q", run.StartedAt)
	}
}

func TestLatestRunNoRows(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, user_id, status").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status", "steps", "last_error", "started_at", "finished_at"}))

	s := NewRunStore(db)
	run, err := s.LatestRun(context.Background(), 9)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if run != nil {
		t.Fatalf("LatestRun() = %+v, want nil for no history", run)
	}
}
