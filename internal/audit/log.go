package audit

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the audit log file name below the vault log directory.
const FileName = "audit.log"

// SystemItem is the item-id placeholder for records that concern a process
// rather than a workflow item.
const SystemItem = "-"

// Record is a single append-only audit entry.
type Record struct {
	Time    time.Time
	ItemID  string
	From    string
	To      string
	Actor   string
	Outcome string
	Detail  string
}

// Log appends records to a single file shared by every warden process.
// Concurrent appenders serialize through an exclusive flock on a sidecar
// lock file; each record is one line, written with O_APPEND.
type Log struct {
	path string
	lock *flock.Flock
}

// Open prepares an audit log at path, creating parent directories as needed.
func Open(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit log path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &Log{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Path returns the audit log file location.
func (l *Log) Path() string {
	return l.path
}

// Append writes one record. The record's Time defaults to now when zero.
func (l *Log) Append(ctx context.Context, rec Record) error {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	if strings.TrimSpace(rec.ItemID) == "" {
		rec.ItemID = SystemItem
	}

	locked, err := l.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire audit lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire audit lock: not granted")
	}
	defer l.lock.Unlock() //nolint:errcheck

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(rec.line()); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return f.Sync()
}

func (r Record) line() string {
	fields := []string{
		r.Time.UTC().Format(time.RFC3339),
		sanitize(r.ItemID),
		sanitize(orDash(r.From)),
		sanitize(orDash(r.To)),
		sanitize(orDash(r.Actor)),
		sanitize(orDash(r.Outcome)),
		sanitize(r.Detail),
	}
	return strings.Join(fields, "\t") + "\n"
}

// Replay reads every record in order. Unparsable lines are skipped rather
// than failing the whole replay; the log may contain partial trailing writes
// after a crash.
func (l *Log) Replay(ctx context.Context) ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rec, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// ForItem filters a replay down to one item's history.
func (l *Log) ForItem(ctx context.Context, itemID string) ([]Record, error) {
	records, err := l.Replay(ctx)
	if err != nil {
		return nil, err
	}
	filtered := records[:0]
	for _, rec := range records {
		if rec.ItemID == itemID {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func parseLine(line string) (Record, bool) {
	line = strings.TrimRight(line, "\n")
	if strings.TrimSpace(line) == "" {
		return Record{}, false
	}
	fields := strings.Split(line, "\t")
	if len(fields) < 7 {
		return Record{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Record{}, false
	}
	return Record{
		Time:    ts,
		ItemID:  fields[1],
		From:    dashEmpty(fields[2]),
		To:      dashEmpty(fields[3]),
		Actor:   dashEmpty(fields[4]),
		Outcome: dashEmpty(fields[5]),
		Detail:  fields[6],
	}, true
}

func sanitize(value string) string {
	value = strings.ReplaceAll(value, "\t", " ")
	return strings.ReplaceAll(value, "\n", " ")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return SystemItem
	}
	return value
}

func dashEmpty(value string) string {
	if value == SystemItem {
		return ""
	}
	return value
}
