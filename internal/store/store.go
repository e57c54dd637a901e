// Package store keeps validation targets in sqlite.
//
// It is the credential store the batch dispatcher lists targets from. The
// admin operations (Add, Import, Delete) are used from the CLI only.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tastythames/credcheck/internal/inventory"
)

// ErrNotFound is returned when a target id does not exist.
var ErrNotFound = errors.New("target not found")

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id       TEXT PRIMARY KEY,
	host     TEXT NOT NULL,
	port     INTEGER NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	secret   TEXT NOT NULL DEFAULT ''
);`

type Store struct {
	db *sql.DB
}

var _ inventory.Lister = (*Store)(nil)

// Open opens (and creates when missing) the sqlite database at path.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(500)", path)
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own in-memory database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every stored target ordered by id.
func (s *Store) List(ctx context.Context) ([]inventory.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, host, port, username, secret FROM targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list targets: %w", err)
	}
	defer rows.Close()

	var ret []inventory.Target
	for rows.Next() {
		var t inventory.Target
		if err := rows.Scan(&t.ID, &t.Host, &t.Port, &t.Username, &t.Secret); err != nil {
			return nil, fmt.Errorf("store: scan target: %w", err)
		}
		ret = append(ret, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list targets: %w", err)
	}
	return ret, nil
}

// Get returns one target by id.
func (s *Store) Get(ctx context.Context, id string) (inventory.Target, error) {
	var t inventory.Target
	err := s.db.QueryRowContext(ctx,
		`SELECT id, host, port, username, secret FROM targets WHERE id = ?`, id,
	).Scan(&t.ID, &t.Host, &t.Port, &t.Username, &t.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Target{}, fmt.Errorf("store: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return inventory.Target{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	return t, nil
}

// Add inserts t, deriving an id from its address and user when t.ID is
// empty. It returns the stored id.
func (s *Store) Add(ctx context.Context, t inventory.Target) (string, error) {
	if t.ID == "" {
		t.ID = inventory.StableID(t)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, host, port, username, secret) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Host, t.Port, t.Username, t.Secret,
	)
	if err != nil {
		return "", fmt.Errorf("store: add %s: %w", t.ID, err)
	}
	return t.ID, nil
}

// Import upserts all targets in one transaction.
func (s *Store) Import(ctx context.Context, targets []inventory.Target) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO targets (id, host, port, username, secret) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	host = excluded.host,
	port = excluded.port,
	username = excluded.username,
	secret = excluded.secret`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare import: %w", err)
	}
	defer stmt.Close()

	for _, t := range targets {
		if _, err := stmt.ExecContext(ctx, t.ID, t.Host, t.Port, t.Username, t.Secret); err != nil {
			return 0, fmt.Errorf("store: import %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit import: %w", err)
	}
	return len(targets), nil
}

// Delete removes a target by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", id, ErrNotFound)
	}
	return nil
}
