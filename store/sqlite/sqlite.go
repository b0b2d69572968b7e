// Package sqlite provides the durable backend for the pipeline's three
// stores (CRM domain data, conversations, approvals) on a single SQLite
// database. Keeping them in one database is what makes the approval apply
// genuinely atomic: the domain mutation and the status flip commit in the
// same transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/crmforge/agentdesk/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	org_id         TEXT NOT NULL,
	id             TEXT NOT NULL,
	name           TEXT NOT NULL,
	company        TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	internal_notes TEXT NOT NULL DEFAULT '',
	version        INTEGER NOT NULL DEFAULT 1,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	PRIMARY KEY (org_id, id)
);
CREATE TABLE IF NOT EXISTS orders (
	org_id      TEXT NOT NULL,
	id          TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT '',
	lines       TEXT NOT NULL DEFAULT '[]',
	subtotal    INTEGER NOT NULL DEFAULT 0,
	tax         INTEGER NOT NULL DEFAULT 0,
	total       INTEGER NOT NULL DEFAULT 0,
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (org_id, id)
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders (org_id, customer_id);
CREATE TABLE IF NOT EXISTS quotes (
	org_id      TEXT NOT NULL,
	id          TEXT NOT NULL,
	customer_id TEXT NOT NULL,
	title       TEXT NOT NULL,
	lines       TEXT NOT NULL DEFAULT '[]',
	total       INTEGER NOT NULL DEFAULT 0,
	valid_until TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (org_id, id)
);
CREATE TABLE IF NOT EXISTS activities (
	org_id      TEXT NOT NULL,
	id          TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	note        TEXT NOT NULL DEFAULT '',
	occurred_at TEXT NOT NULL,
	PRIMARY KEY (org_id, id)
);
CREATE INDEX IF NOT EXISTS idx_activities_entity ON activities (org_id, entity_id, occurred_at);
CREATE TABLE IF NOT EXISTS conversations (
	org_id        TEXT NOT NULL,
	id            TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	active_agent  TEXT NOT NULL DEFAULT '',
	agent_history TEXT NOT NULL DEFAULT '[]',
	messages      TEXT NOT NULL DEFAULT '[]',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (org_id, id)
);
CREATE TABLE IF NOT EXISTS approvals (
	org_id          TEXT NOT NULL,
	id              TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	agent           TEXT NOT NULL DEFAULT '',
	draft           TEXT NOT NULL,
	diff_before     TEXT,
	diff_after      TEXT,
	status          TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	expires_at      TEXT NOT NULL,
	reviewed_by     TEXT NOT NULL DEFAULT '',
	applied_by      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (org_id, id)
);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals (org_id, status, created_at);
`

// Store is the SQLite-backed implementation of domain.Store. The
// conversation and approval stores share its database through the
// Sessions and Approvals views. A single Store is safe for concurrent
// use; SQLite's serialized write transactions provide the isolation the
// approval workflow relies on.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// modernc's driver serializes writes; a single connection avoids
	// SQLITE_BUSY on overlapping transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db, logger: logging.OrNoOp(logger)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// withTx runs fn in a write transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("sqlite.rollback_failed", "error", rbErr.Error())
		}
		return err
	}
	return tx.Commit()
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
