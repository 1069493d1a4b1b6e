package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

const previousSchema = `
CREATE TABLE IF NOT EXISTS previous_forecasts (
  station_id  TEXT PRIMARY KEY,
  h24         REAL NOT NULL,
  h48         REAL NOT NULL,
  h72         REAL NOT NULL,
  updated_at  TEXT NOT NULL
);`

const selectPreviousSQL = `SELECT h24, h48, h72 FROM previous_forecasts WHERE station_id = ?`

const upsertPreviousSQL = `
INSERT INTO previous_forecasts (station_id, h24, h48, h72, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(station_id) DO UPDATE SET
  h24 = excluded.h24,
  h48 = excluded.h48,
  h72 = excluded.h72,
  updated_at = excluded.updated_at`

// OpenSQLite opens a file-backed sqlite database, creating its directory.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	params := []string{"_busy_timeout=5000", "_journal_mode=WAL"}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// SQLitePrevious persists previous-cycle vectors in sqlite so stabilization
// survives restarts.
type SQLitePrevious struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLitePrevious creates the table if needed and returns the store.
func NewSQLitePrevious(ctx context.Context, db *sql.DB) (*SQLitePrevious, error) {
	if _, err := db.ExecContext(ctx, previousSchema); err != nil {
		return nil, fmt.Errorf("create previous_forecasts: %w", err)
	}
	return &SQLitePrevious{db: db, now: time.Now}, nil
}

func (s *SQLitePrevious) LoadPrevious(ctx context.Context, stationID string) ([]float64, bool, error) {
	v := make([]float64, forecast.HorizonCount)
	err := s.db.QueryRowContext(ctx, selectPreviousSQL, stationID).Scan(&v[0], &v[1], &v[2])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load previous %q: %w", stationID, err)
	}
	return v, true, nil
}

func (s *SQLitePrevious) SavePrevious(ctx context.Context, stationID string, values []float64) error {
	if err := checkPrevious(values); err != nil {
		return err
	}
	ts := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, upsertPreviousSQL, stationID, values[0], values[1], values[2], ts); err != nil {
		return fmt.Errorf("save previous %q: %w", stationID, err)
	}
	return nil
}

var _ forecast.PreviousStore = (*SQLitePrevious)(nil)
