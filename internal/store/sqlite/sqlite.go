package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

const schema = `CREATE TABLE IF NOT EXISTS subscription_watermarks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	round INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (unixepoch()),
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
)`

// Store keeps watermarks in a local SQLite file, the default backend.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. WAL journaling with
// synchronous=FULL makes each Set durable once it returns.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create watermark table: %w", err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
}

func (s *Store) Get(ctx context.Context, name string) (model.Round, error) {
	var raw interface{}
	err := s.db.QueryRowContext(ctx,
		`SELECT round FROM subscription_watermarks WHERE name = ?`, name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark %s: %w", name, err)
	}

	v, ok := raw.(int64)
	if !ok || v < 0 {
		return 0, fmt.Errorf("watermark %s holds %v: %w", name, raw, model.ErrCorruptWatermark)
	}
	return model.Round(v), nil
}

// Set never lowers a stored watermark.
func (s *Store) Set(ctx context.Context, name string, round model.Round) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_watermarks (id, name, round)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			round = MAX(subscription_watermarks.round, excluded.round),
			updated_at = unixepoch()
	`, uuid.NewString(), name, int64(round))
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
