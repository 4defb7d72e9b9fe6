// Package storage provides the SQLite persistence sink. Every finalized
// query is written as one transaction covering the query row, all response
// envelopes, and the judge decision, so readers never observe a partial
// snapshot.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS queries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id   TEXT NOT NULL UNIQUE,
	query_text   TEXT NOT NULL,
	user_scope   TEXT NOT NULL DEFAULT '',
	accepted     INTEGER NOT NULL,
	reject_reason TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS responses (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id    TEXT NOT NULL REFERENCES queries(request_id),
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	response_text TEXT NOT NULL DEFAULT '',
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	tokens_in     INTEGER NOT NULL DEFAULT 0,
	tokens_out    INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	cached        INTEGER NOT NULL DEFAULT 0,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id     TEXT NOT NULL UNIQUE REFERENCES queries(request_id),
	winner         TEXT NOT NULL DEFAULT '',
	combined_score REAL NOT NULL DEFAULT 0,
	rationale      TEXT NOT NULL DEFAULT '',
	tie_break      INTEGER NOT NULL DEFAULT 0,
	consensus      REAL NOT NULL DEFAULT 0,
	common_themes  TEXT NOT NULL DEFAULT '[]',
	decided_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS error_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_responses_request ON responses(request_id);
CREATE INDEX IF NOT EXISTS idx_error_logs_request ON error_logs(request_id);
`

// SQLiteSink persists finalized query records to a local SQLite database.
type SQLiteSink struct {
	db   *sql.DB
	path string
}

var _ ports.Sink = (*SQLiteSink)(nil)

// NewSQLiteSink opens (or creates) the database at path and applies the
// schema. The parent directory is created if needed.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL mode keeps concurrent readers from blocking the writer.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteSink{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLiteSink) Path() string { return s.path }

// Record writes the complete snapshot of one finalized query in a single
// transaction. Response text is truncated for storage; the in-memory
// envelopes are untouched.
func (s *SQLiteSink) Record(ctx context.Context, rec domain.QueryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO queries (request_id, query_text, user_scope, accepted, reject_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Query.RequestID, rec.Query.Text, rec.Query.UserScope,
		rec.Query.Accepted, rec.Query.RejectReason, rec.Query.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting query: %w", err)
	}

	now := time.Now().UTC()
	for _, env := range rec.Responses {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO responses (request_id, provider, model, status, response_text,
			                        latency_ms, tokens_in, tokens_out, cost_usd, cached,
			                        error_kind, error_message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Query.RequestID, env.Provider, env.Model, string(env.Status), env.TruncatedText(),
			env.Latency.Milliseconds(), env.TokensIn, env.TokensOut, env.CostUSD, env.Cached,
			string(env.ErrorKind), env.ErrorMessage, now)
		if err != nil {
			return fmt.Errorf("inserting response for %s: %w", env.Provider, err)
		}
	}

	themes, err := json.Marshal(rec.Decision.CommonThemes)
	if err != nil {
		return fmt.Errorf("encoding common themes: %w", err)
	}
	decidedAt := rec.Decision.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = now
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO decisions (request_id, winner, combined_score, rationale, tie_break,
		                        consensus, common_themes, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Query.RequestID, rec.Decision.Winner, rec.Decision.Combined, rec.Decision.Rationale,
		rec.Decision.TieBreak, rec.Decision.Consensus, string(themes), decidedAt)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing record: %w", err)
	}
	return nil
}

// LogError records an operational failure outside the normal query flow,
// such as a sink write failure noticed by a retry or a validation probe.
func (s *SQLiteSink) LogError(ctx context.Context, requestID, provider string, kind domain.ErrorKind, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_logs (request_id, provider, error_kind, message, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		requestID, provider, string(kind), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting error log: %w", err)
	}
	return nil
}

// StoredDecision is the persisted judge outcome for one query, as read
// back by reporting commands.
type StoredDecision struct {
	RequestID string
	QueryText string
	Winner    string
	Combined  float64
	Consensus float64
	DecidedAt time.Time
}

// RecentDecisions returns the latest n decisions, newest first.
func (s *SQLiteSink) RecentDecisions(ctx context.Context, n int) ([]StoredDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.request_id, q.query_text, d.winner, d.combined_score, d.consensus, d.decided_at
		 FROM decisions d JOIN queries q ON q.request_id = d.request_id
		 ORDER BY d.id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []StoredDecision
	for rows.Next() {
		var d StoredDecision
		if err := rows.Scan(&d.RequestID, &d.QueryText, &d.Winner, &d.Combined, &d.Consensus, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
