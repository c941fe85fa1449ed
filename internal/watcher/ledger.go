package watcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger records which dropped files have already been turned into items.
// It is private bookkeeping for one watcher, not workflow state: the vault
// directories stay the single source of truth for items themselves.
type Ledger struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS seen_files (
    path       TEXT PRIMARY KEY,
    size       INTEGER NOT NULL,
    mtime_unix INTEGER NOT NULL,
    item_id    TEXT NOT NULL,
    first_seen TEXT NOT NULL
)`

// OpenLedger opens (or creates) the ledger database at dbPath.
func OpenLedger(dbPath string) (*Ledger, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("ledger path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure ledger: %w", err)
		}
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{db: db, path: dbPath}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Seen reports whether the file at path with this size and mtime was already
// ingested. A changed size or mtime counts as a new file.
func (l *Ledger) Seen(ctx context.Context, path string, size, mtimeUnix int64) (bool, error) {
	var found bool
	err := retryOnBusy(ctx, func() error {
		row := l.db.QueryRowContext(ctx,
			`SELECT 1 FROM seen_files WHERE path = ? AND size = ? AND mtime_unix = ?`,
			path, size, mtimeUnix)
		var one int
		switch err := row.Scan(&one); {
		case errors.Is(err, sql.ErrNoRows):
			found = false
			return nil
		case err != nil:
			return err
		default:
			found = true
			return nil
		}
	})
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return found, nil
}

// Mark records that the file was ingested as itemID. Re-marking a path
// replaces the previous row, so a modified file is tracked by its latest
// ingestion.
func (l *Ledger) Mark(ctx context.Context, path string, size, mtimeUnix int64, itemID string) error {
	err := retryOnBusy(ctx, func() error {
		_, execErr := l.db.ExecContext(ctx,
			`INSERT INTO seen_files (path, size, mtime_unix, item_id, first_seen)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(path) DO UPDATE SET
                 size = excluded.size,
                 mtime_unix = excluded.mtime_unix,
                 item_id = excluded.item_id`,
			path, size, mtimeUnix, itemID, time.Now().UTC().Format(time.RFC3339))
		return execErr
	})
	if err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}

// Forget drops a path from the ledger, e.g. after the dropped file was
// removed from the drop directory.
func (l *Ledger) Forget(ctx context.Context, path string) error {
	err := retryOnBusy(ctx, func() error {
		_, execErr := l.db.ExecContext(ctx, `DELETE FROM seen_files WHERE path = ?`, path)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("ledger forget: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
