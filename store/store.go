// Package store caches finished analyses in SQLite, keyed by FEN.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jacokyle01/live-analysis/models"
)

//go:embed schema.sql
var schemaSQL string

// Entry is a finished analysis of one position.
type Entry struct {
	FEN       string
	Depth     int
	LineCount int
	Lines     []models.ScoredLine
}

// Covers reports whether e answers a request for lines at depth.
func (e Entry) Covers(depth, lines int) bool {
	return e.Depth >= depth && e.LineCount >= lines
}

// Cache stores finished analyses.
type Cache interface {
	Get(ctx context.Context, fen string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Close() error
}

// SQLiteCache is a Cache backed by a SQLite database.
type SQLiteCache struct {
	db *sql.DB
}

// Open creates or opens the cache at path. An empty path keeps the cache in memory.
func Open(path string) (*SQLiteCache, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	// One connection: an in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get returns the cached analysis of fen.
func (c *SQLiteCache) Get(ctx context.Context, fen string) (Entry, bool, error) {
	var (
		e     = Entry{FEN: fen}
		lines string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT depth, line_count, lines FROM analyses WHERE fen = ?`, fen,
	).Scan(&e.Depth, &e.LineCount, &lines)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(lines), &e.Lines); err != nil {
		return Entry{}, false, fmt.Errorf("decode analysis lines: %w", err)
	}
	return e, true, nil
}

// Put stores e unless a deeper analysis of the same position is cached.
func (c *SQLiteCache) Put(ctx context.Context, e Entry) error {
	lines, err := json.Marshal(e.Lines)
	if err != nil {
		return fmt.Errorf("encode analysis lines: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO analyses (fen, depth, line_count, lines, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fen) DO UPDATE SET
			depth = excluded.depth,
			line_count = excluded.line_count,
			lines = excluded.lines,
			updated_at = excluded.updated_at
		WHERE excluded.depth > analyses.depth
		   OR (excluded.depth = analyses.depth AND excluded.line_count >= analyses.line_count)
	`, e.FEN, e.Depth, e.LineCount, string(lines), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put analysis: %w", err)
	}
	return nil
}

// Len returns the number of cached positions.
func (c *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
