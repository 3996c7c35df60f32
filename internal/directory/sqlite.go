package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "castbot/pkg/logx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recipients (
	chat_id  INTEGER PRIMARY KEY,
	added_at TEXT NOT NULL
);`

type sqliteDir struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Directory, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("directory.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("directory migrate: %w", err)
	}
	return &sqliteDir{db: db, log: log}, nil
}

func (d *sqliteDir) List(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT chat_id FROM recipients ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (d *sqliteDir) Add(ctx context.Context, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO recipients(chat_id, added_at) VALUES(?, ?) ON CONFLICT(chat_id) DO NOTHING`,
		id, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (d *sqliteDir) Remove(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM recipients WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (d *sqliteDir) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
