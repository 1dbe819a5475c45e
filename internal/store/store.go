// Package store persists evaluated sheets in PostgreSQL.
//
// The pgx driver is used through database/sql; one row is written per
// evaluated sheet.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/ironsheep/omr-eval/internal/omr"
)

var schema = []string{`
create table if not exists omr_results (
  id              bigserial primary key,
  run_id          uuid not null,
  student         text not null,
  variant         text not null default '',
  sheet_id        text not null default '',
  subject_scores  jsonb not null,
  total           integer not null,
  max_total       integer not null,
  blank_count     integer not null default 0,
  ambiguous_count integer not null default 0,
  created_at      timestamptz not null default now()
)`,
	`create index if not exists omr_results_run_id_idx on omr_results (run_id)`,
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// Row is one stored result.
type Row struct {
	ID        int64              `json:"id"`
	RunID     string             `json:"run_id"`
	Student   string             `json:"student"`
	Variant   string             `json:"variant"`
	SheetID   string             `json:"sheet_id,omitempty"`
	Subjects  []omr.SubjectScore `json:"subjects"`
	Total     int                `json:"total"`
	MaxTotal  int                `json:"max_total"`
	Blank     int                `json:"blank"`
	Ambiguous int                `json:"ambiguous"`
	CreatedAt time.Time          `json:"created_at"`
}

// ResultRepo reads and writes omr_results.
type ResultRepo struct{ DB *sql.DB }

// NewResultRepo wraps an open database. EnsureSchema creates the table.
func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{DB: db} }

// EnsureSchema creates the table if needed.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

const insertResult = `
insert into omr_results (
  run_id, student, variant, sheet_id, subject_scores,
  total, max_total, blank_count, ambiguous_count
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
returning id`

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Save stores one report. An empty runID gets a fresh one.
func (r *ResultRepo) Save(ctx context.Context, runID, student string, report *omr.ScoreReport) (int64, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	return insert(ctx, r.DB, runID, student, report)
}

// SaveBatch stores every evaluated sheet of a batch in one transaction and
// returns the number of rows written.
func (r *ResultRepo) SaveBatch(ctx context.Context, res *omr.BatchResult) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for _, it := range res.Items {
		if it.Report == nil {
			continue
		}
		if _, err := insert(ctx, tx, res.RunID, it.Student, it.Report); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit results: %w", err)
	}
	return n, nil
}

func insert(ctx context.Context, q rowQuerier, runID, student string, report *omr.ScoreReport) (int64, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return 0, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	js, err := json.Marshal(report.Subjects)
	if err != nil {
		return 0, fmt.Errorf("failed to encode subject scores: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx, insertResult,
		runID, student, report.Variant, report.SheetID, js,
		report.Total, report.MaxTotal, report.BlankCount(), report.AmbiguousCount(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save result for %s: %w", student, err)
	}
	return id, nil
}

// List returns the newest results first; limit <= 0 means all.
func (r *ResultRepo) List(ctx context.Context, limit int) ([]Row, error) {
	q := `
select id, run_id::text, student, variant, sheet_id, subject_scores,
       total, max_total, blank_count, ambiguous_count, created_at
from omr_results
order by created_at desc, id desc`
	args := []any{}
	if limit > 0 {
		q += "\nlimit $1"
		args = append(args, limit)
	}

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row Row
			js  []byte
		)
		if err := rows.Scan(&row.ID, &row.RunID, &row.Student, &row.Variant, &row.SheetID, &js,
			&row.Total, &row.MaxTotal, &row.Blank, &row.Ambiguous, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to read result: %w", err)
		}
		if err := json.Unmarshal(js, &row.Subjects); err != nil {
			return nil, fmt.Errorf("result %d has corrupt subject scores: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count returns the number of stored results.
func (r *ResultRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `select count(*) from omr_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// DeleteAll removes every stored result and returns how many were removed.
func (r *ResultRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `delete from omr_results`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete results: %w", err)
	}
	return res.RowsAffected()
}
