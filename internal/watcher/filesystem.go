package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"warden/internal/logging"
	"warden/internal/vault"
)

// FileActionKind is the action attached to dropped-file items; map it to a
// command in the [actions] config section.
const FileActionKind = "process_file"

// Filesystem watches a drop directory. Every new regular file is copied into
// the vault as an attachment and filed as a pending approval request.
//
// The file itself is left in the drop directory; the ledger keyed on
// path+size+mtime keeps it from being ingested twice. Marking happens after
// the item is filed, so a crash between the two can produce a duplicate
// request, never a lost one.
type Filesystem struct {
	dropDir string
	store   *vault.Store
	ledger  *Ledger
	logger  *slog.Logger
}

// NewFilesystem builds the drop-directory watcher.
func NewFilesystem(dropDir string, store *vault.Store, ledger *Ledger, logger *slog.Logger) (*Filesystem, error) {
	if strings.TrimSpace(dropDir) == "" {
		return nil, fmt.Errorf("filesystem watcher: drop directory must be set")
	}
	return &Filesystem{
		dropDir: dropDir,
		store:   store,
		ledger:  ledger,
		logger:  logging.NewComponentLogger(logger, "watcher-filesystem"),
	}, nil
}

func (f *Filesystem) Name() string {
	return "filesystem"
}

// Poll scans the drop directory once.
func (f *Filesystem) Poll(ctx context.Context) error {
	entries, err := os.ReadDir(f.dropDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan drop directory: %w", err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := f.ingest(ctx, entry.Name()); err != nil {
			f.logger.Error("could not ingest dropped file",
				logging.String("file", entry.Name()),
				logging.Error(err))
		}
	}
	return nil
}

func (f *Filesystem) ingest(ctx context.Context, name string) error {
	path := filepath.Join(f.dropDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat dropped file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	seen, err := f.ledger.Seen(ctx, path, info.Size(), info.ModTime().Unix())
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	stored, err := f.store.PutAttachment(ctx, path, name)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("A new file landed in the drop directory.\n\nFile: %s\nSize: %d bytes\nStored at: %s\n",
		name, info.Size(), stored)
	item, err := f.store.Put(ctx, vault.StatePendingApproval, vault.Draft{
		Source:  "filesystem",
		Subject: "Process dropped file " + name,
		Action: &vault.Action{
			Kind: FileActionKind,
			Params: map[string]string{
				"name": name,
				"path": stored,
			},
		},
		Body: []byte(body),
	})
	if err != nil {
		return err
	}

	if err := f.ledger.Mark(ctx, path, info.Size(), info.ModTime().Unix(), item.ID); err != nil {
		return err
	}
	f.logger.Info("dropped file filed for approval",
		logging.String("file", name),
		logging.String(logging.FieldItemID, item.ID))
	return nil
}
