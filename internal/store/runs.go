package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"evolvedvault.dev/internal/ctxlog"
)

// RunStatus is the lifecycle state of a journal entry.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSucceeded, RunFailed:
		return true
	}
	return false
}

// Run is one journal entry.
type Run struct {
	ID         int64      `json:"id"`
	Invocation string     `json:"invocation,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Verbose    bool       `json:"verbose"`
	Input      string     `json:"input"`
	Output     string     `json:"output"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	ItemID     *int64     `json:"item_id,omitempty"`
}

// RunSummary aggregates the runs matched by a filter.
type RunSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Running   int `json:"running"`
}

// BeginRun inserts a running journal entry and returns its id.
func BeginRun(ctx context.Context, db *sql.DB, run Run) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO runs (invocation, started_at, verbose, input, output, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.Invocation, run.StartedAt.UnixNano(), boolToInt(run.Verbose), run.Input, run.Output, RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("run started", "run_id", id, "invocation", run.Invocation)
	return id, nil
}

// FinishRun records the outcome of a running journal entry.
func FinishRun(ctx context.Context, db *sql.DB, id int64, status RunStatus, errText string, itemID *int64, finishedAt time.Time) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if !status.Valid() || status == RunRunning {
		return fmt.Errorf("invalid final run status %q", status)
	}

	var item sql.NullInt64
	if itemID != nil {
		item = sql.NullInt64{Int64: *itemID, Valid: true}
	}

	result, err := db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, error = ?, item_id = ?
		WHERE id = ?`,
		finishedAt.UnixNano(), status, errText, item, id)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}

	ctxlog.FromContext(ctx).Debug("run finished", "run_id", id, "status", status)
	return nil
}

// ListRuns returns the runs matched by filter, newest first.
func ListRuns(ctx context.Context, db *sql.DB, filter RunFilter, now time.Time) ([]Run, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "invocation", "started_at", "finished_at", "verbose", "input", "output", "status", "error", "item_id").
		From("runs")
	filter.Apply(sb, now)
	sb.OrderBy("started_at DESC", "id DESC")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	query, args := sb.Build()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started int64
		var finished, item sql.NullInt64
		var verbose int
		if err := rows.Scan(&run.ID, &run.Invocation, &started, &finished, &verbose, &run.Input, &run.Output, &run.Status, &run.Error, &item); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.StartedAt = time.Unix(0, started)
		if finished.Valid {
			t := time.Unix(0, finished.Int64)
			run.FinishedAt = &t
		}
		if item.Valid {
			id := item.Int64
			run.ItemID = &id
		}
		run.Verbose = verbose == 1
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// SummarizeRuns counts the runs matched by filter per status. Limit is ignored.
func SummarizeRuns(ctx context.Context, db *sql.DB, filter RunFilter, now time.Time) (RunSummary, error) {
	if db == nil {
		return RunSummary{}, fmt.Errorf("database connection is nil")
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("status", "COUNT(*)").From("runs")
	filter.Apply(sb, now)
	sb.GroupBy("status")
	query, args := sb.Build()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to summarize runs: %w", err)
	}
	defer rows.Close()

	var summary RunSummary
	for rows.Next() {
		var status RunStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return RunSummary{}, fmt.Errorf("failed to scan summary row: %w", err)
		}
		switch status {
		case RunSucceeded:
			summary.Succeeded = count
		case RunFailed:
			summary.Failed = count
		case RunRunning:
			summary.Running = count
		}
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return RunSummary{}, fmt.Errorf("error iterating summary rows: %w", err)
	}
	return summary, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
