package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	applied     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	variables   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	idx         INTEGER NOT NULL,
	endpoint    TEXT NOT NULL,
	method      TEXT NOT NULL,
	state       TEXT NOT NULL,
	reason      TEXT NOT NULL,
	error       TEXT NOT NULL,
	status      INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	written     TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Run is a stored sequence run.
type Run struct {
	ID        string
	Started   time.Time
	Duration  time.Duration
	Applied   int
	Failed    int
	Variables map[string]any
	Outcomes  []Outcome
}

// Outcome is the stored terminal state of one request. Status is 0 when no
// response was received.
type Outcome struct {
	Index    int
	Endpoint string
	Method   string
	State    string
	Reason   string
	Error    string
	Status   int
	Duration time.Duration
	Written  []string
}

func (r *Run) Passed() bool {
	return r.Failed == 0
}

// Store keeps run history in SQLite. It implements sequencer.Recorder.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens or creates a history database. Accepted forms are
// sqlite://path, sqlite:path and a bare file path; ":memory:" works for
// throwaway stores.
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// Parallel sequences record concurrently; SQLite takes one writer.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores result and all of its outcomes in one transaction.
func (s *Store) Record(ctx context.Context, result *sequencer.RunResult) error {
	if result == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queryTimeout)
	defer cancel()

	vars, err := json.Marshal(result.Variables)
	if err != nil {
		return fmt.Errorf("encoding variables: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_us, applied, failed, variables) VALUES (?, ?, ?, ?, ?, ?)`,
		result.ID, result.Started.UnixNano(), result.Duration.Microseconds(), result.Applied, result.Failed, string(vars),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", result.ID, err)
	}

	for _, o := range result.Outcomes {
		status := 0
		if o.Response != nil {
			status = o.Response.StatusCode
		}
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		written, err := json.Marshal(o.Written)
		if err != nil {
			return fmt.Errorf("encoding written variables: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, idx, endpoint, method, state, reason, error, status, duration_us, written)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ID, o.Index, o.Request.Endpoint, o.Request.Method, o.State.String(), string(o.Reason),
			errText, status, o.Duration.Microseconds(), string(written),
		); err != nil {
			return fmt.Errorf("insert outcome %d of run %s: %w", o.Index, result.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", result.ID, err)
	}
	return nil
}

// List returns the most recent runs first, without outcomes. A limit of 0
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT id, started_at, duration_us, applied, failed, variables FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Get returns one run with its outcomes in request order.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, duration_us, applied, failed, variables FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, endpoint, method, state, reason, error, status, duration_us, written
		 FROM outcomes WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o          Outcome
			durationUs int64
			written    string
		)
		if err := rows.Scan(&o.Index, &o.Endpoint, &o.Method, &o.State, &o.Reason, &o.Error, &o.Status, &durationUs, &written); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Duration = time.Duration(durationUs) * time.Microsecond
		if err := json.Unmarshal([]byte(written), &o.Written); err != nil {
			return nil, fmt.Errorf("decoding written variables: %w", err)
		}
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		startedAt  int64
		durationUs int64
		vars       string
	)
	if err := row.Scan(&run.ID, &startedAt, &durationUs, &run.Applied, &run.Failed, &vars); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Started = time.Unix(0, startedAt)
	run.Duration = time.Duration(durationUs) * time.Microsecond
	if err := json.Unmarshal([]byte(vars), &run.Variables); err != nil {
		return nil, fmt.Errorf("decoding variables of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// parseConnectionString turns the accepted forms into a go-sqlite3 DSN
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case connStr == "":
		return "", fmt.Errorf("empty history path")
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		scheme, _, _ := strings.Cut(connStr, "://")
		return "", fmt.Errorf("unsupported history database scheme: %s", scheme)
	}

	if connStr == "" {
		return "", fmt.Errorf("empty history path")
	}
	return connStr, nil
}
