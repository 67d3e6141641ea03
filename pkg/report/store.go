// SQLite store for replay summaries and the violation reports they produced
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andrewh/obscheck/pkg/script"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is a stored replay summary without its results.
type Run struct {
	ID      uuid.UUID
	Script  string
	Started time.Time
	Cases   int
	Failed  int
}

// Violation is a stored case that raised a lifecycle violation.
type Violation struct {
	RunID   uuid.UUID
	Started time.Time
	Case    string
	Outcome string
	Pass    bool
	Report  string
}

// Store persists replay summaries.
type Store struct {
	db *sql.DB
}

// Open migrates the database at path to the latest schema and opens it.
func Open(path string) (*Store, error) {
	if err := Migrate(path, "up"); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening report store: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a summary and all of its results in one transaction.
func (s *Store) Save(ctx context.Context, sum *script.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, script, started_at, cases, failed) VALUES (?, ?, ?, ?, ?)`,
		sum.RunID.String(), sum.Script, sum.Started.UTC().Format(timeLayout), len(sum.Results), sum.Failed(),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, r := range sum.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, seq, case_name, expect, outcome, pass, steps, report)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID.String(), i, r.Case, r.Expect, r.Outcome, r.Pass, r.Steps, r.Report,
		)
		if err != nil {
			return fmt.Errorf("inserting result %q: %w", r.Case, err)
		}
	}
	return tx.Commit()
}

// Runs returns stored runs, newest first. limit <= 0 returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, script, started_at, cases, failed FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			id, start string
		)
		if err := rows.Scan(&id, &run.Script, &start, &run.Cases, &run.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if run.Started, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("run %s start time: %w", id, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Results returns the results of one run in case order.
func (s *Store) Results(ctx context.Context, runID uuid.UUID) ([]script.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT case_name, expect, outcome, pass, steps, report FROM results WHERE run_id = ? ORDER BY seq`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []script.Result
	for rows.Next() {
		var r script.Result
		if err := rows.Scan(&r.Case, &r.Expect, &r.Outcome, &r.Pass, &r.Steps, &r.Report); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Violations returns every stored case that raised a violation, newest run first.
func (s *Store) Violations(ctx context.Context) ([]Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.run_id, runs.started_at, r.case_name, r.outcome, r.pass, r.report
		 FROM results r JOIN runs ON runs.id = r.run_id
		 WHERE r.report != ''
		 ORDER BY runs.started_at DESC, r.seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying violations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Violation
	for rows.Next() {
		var (
			v         Violation
			id, start string
		)
		if err := rows.Scan(&id, &start, &v.Case, &v.Outcome, &v.Pass, &v.Report); err != nil {
			return nil, fmt.Errorf("scanning violation: %w", err)
		}
		if v.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if v.Started, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("run %s start time: %w", id, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
