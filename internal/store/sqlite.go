package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
	"github.com/rumor-ml/commons.systems/spentsync/internal/output"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_revisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	saved_at TEXT NOT NULL,
	entries INTEGER NOT NULL,
	body TEXT NOT NULL
)`

// SQLite appends every saved ledger as a new revision row. Load returns the
// latest revision.
type SQLite struct {
	db          *sql.DB
	conditional bool

	// revision seen by the last Load; 0 when none existed
	revision int64
}

// NewSQLite opens (or creates) the database and ensures the schema exists
func NewSQLite(ctx context.Context, path string, conditional bool) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open db", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, unavailable("create schema", err)
	}
	return &SQLite{db: db, conditional: conditional}, nil
}

// Load returns the latest revision, or an empty ledger when none exists
func (s *SQLite) Load(ctx context.Context) (domain.Ledger, error) {
	var (
		id   int64
		body string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, body FROM ledger_revisions ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		s.revision = 0
		return domain.Ledger{}, nil
	}
	if err != nil {
		return nil, unavailable("query latest revision", err)
	}

	ledger, err := output.DecodeLedger([]byte(body))
	if err != nil {
		return nil, unavailable(fmt.Sprintf("decode revision %d", id), err)
	}

	s.revision = id
	return ledger, nil
}

// Save inserts a new revision. With conditional writes it refuses when a
// revision newer than the loaded one exists.
func (s *SQLite) Save(ctx context.Context, ledger domain.Ledger) error {
	data, err := output.EncodeLedger(ledger)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	if s.conditional {
		var latest int64
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM ledger_revisions`).Scan(&latest); err != nil {
			return unavailable("query latest revision", err)
		}
		if latest != s.revision {
			return fmt.Errorf("revision %d saved after loaded revision %d: %w", latest, s.revision, domain.ErrConflict)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_revisions (saved_at, entries, body) VALUES (?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), len(ledger), string(data),
	)
	if err != nil {
		return unavailable("insert revision", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return unavailable("read revision id", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit revision", err)
	}

	s.revision = id
	return nil
}

// Revisions returns the number of saved revisions
func (s *SQLite) Revisions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_revisions`).Scan(&n); err != nil {
		return 0, unavailable("count revisions", err)
	}
	return n, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
