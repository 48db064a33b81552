package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/runctx"
)

// Run is one stored routine execution.
type Run struct {
	ID          string               `json:"id"`
	RoutineID   string               `json:"routine_id"`
	RoutineName string               `json:"routine_name"`
	TriggerID   string               `json:"trigger_id,omitempty"`
	Source      string               `json:"source"`
	Status      automation.RunStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
	DurationMS  int64                `json:"duration_ms"`
	Log         *runctx.ExecutionLog `json:"log,omitempty"`
}

// Filter controls which runs to return.
type Filter struct {
	RoutineID string               // optional
	TriggerID string               // optional
	Status    automation.RunStatus // optional
	Since     time.Time            // optional: started at or after
	Limit     int                  // default 50, max 200
	Offset    int
}

// ListResult contains a page of runs. Logs are omitted from listings.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository defines the execution history operations.
type Repository interface {
	automation.RunStore
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores runs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CreateRun inserts the record. The ID is generated if empty.
func (r *SQLiteRepository) CreateRun(ctx context.Context, rec *automation.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return fmt.Errorf("marshalling execution log: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO routine_runs (id, routine_id, routine_name, trigger_id, source, status, error, started_at, finished_at, duration_ms, log_tree)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RoutineID, rec.RoutineName,
		nullableString(rec.TriggerID), rec.Source, string(rec.Status),
		nullableString(rec.Error),
		rec.StartedAt.UTC().Format(timeLayout), nullableTime(rec.FinishedAt),
		duration(rec), string(logJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun writes the settled status, error, finish time and log.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, rec *automation.RunRecord) error {
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return fmt.Errorf("marshalling execution log: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE routine_runs SET status = ?, error = ?, finished_at = ?, duration_ms = ?, log_tree = ? WHERE id = ?`,
		string(rec.Status), nullableString(rec.Error), nullableTime(rec.FinishedAt),
		duration(rec), string(logJSON), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating run %s: %w", rec.ID, ErrRunNotFound)
	}
	return nil
}

// Get returns one run including its execution log.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, routine_id, routine_name, trigger_id, source, status, error, started_at, finished_at, duration_ms, log_tree
		 FROM routine_runs WHERE id = ?`, id)

	var run Run
	var logJSON string
	err := scanRun(row, &run, &logJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var log runctx.ExecutionLog
	if err := json.Unmarshal([]byte(logJSON), &log); err != nil {
		return nil, fmt.Errorf("decoding execution log of %s: %w", id, err)
	}
	run.Log = &log
	return &run, nil
}

// List returns runs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for history queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.RoutineID != "" {
		conditions = append(conditions, "routine_id = ?")
		args = append(args, filter.RoutineID)
	}
	if filter.TriggerID != "" {
		conditions = append(conditions, "trigger_id = ?")
		args = append(args, filter.TriggerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM routine_runs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, routine_id, routine_name, trigger_id, source, status, error, started_at, finished_at, duration_ms, '{}'
		 FROM routine_runs %s ORDER BY started_at DESC LIMIT ? OFFSET ?`, where)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var ignored string
		if err := scanRun(rows, &run, &ignored); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return &ListResult{Runs: runs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner, run *Run, logJSON *string) error {
	var triggerID, errText, finishedAt sql.NullString
	var status, startedAt string

	if err := s.Scan(&run.ID, &run.RoutineID, &run.RoutineName, &triggerID, &run.Source,
		&status, &errText, &startedAt, &finishedAt, &run.DurationMS, logJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scanning run: %w", err)
	}

	run.TriggerID = triggerID.String
	run.Error = errText.String
	run.Status = automation.RunStatus(status)

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return fmt.Errorf("parsing run timestamp %q: %w", startedAt, err)
	}
	run.StartedAt = t
	if finishedAt.Valid {
		f, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return fmt.Errorf("parsing run timestamp %q: %w", finishedAt.String, err)
		}
		run.FinishedAt = &f
	}
	return nil
}

// nullableString returns nil for empty strings so nullable TEXT columns
// store NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func duration(rec *automation.RunRecord) int64 {
	if rec.FinishedAt.IsZero() {
		return 0
	}
	return rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
}
