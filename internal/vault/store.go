package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"warden/internal/audit"
	"warden/internal/fileutil"
)

// tmpDirName is the same-volume staging directory for atomic Put writes.
const tmpDirName = ".tmp"

// attachmentsDirName holds blobs referenced by items (a dropped file's
// payload, for example); moving an item never touches its attachments.
const attachmentsDirName = "attachments"

// Store provides atomic, crash-safe state transitions over the vault
// directory tree. Every successful mutation appends an audit record
// attributed to the store's actor.
type Store struct {
	root  string
	audit *audit.Log
	actor string
}

// Open returns a store rooted at root. The actor names the component
// performing mutations ("watcher-filesystem", "executor", "human").
func Open(root string, auditLog *audit.Log, actor string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("vault root must not be empty")
	}
	if auditLog == nil {
		return nil, errors.New("vault store requires an audit log")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, errors.New("vault store requires an actor name")
	}
	return &Store{root: root, audit: auditLog, actor: actor}, nil
}

// Init creates the state directory tree.
func (s *Store) Init() error {
	dirs := []string{
		filepath.Join(s.root, tmpDirName),
		filepath.Join(s.root, attachmentsDirName),
	}
	for _, state := range AllStates() {
		dirs = append(dirs, state.Dir(s.root))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory %q: %w", dir, err)
		}
	}
	return nil
}

// Root returns the vault root directory.
func (s *Store) Root() string {
	return s.root
}

// Audit exposes the store's audit log for read access.
func (s *Store) Audit() *audit.Log {
	return s.audit
}

// putStates are the states external producers may write into directly.
// Approved, rejected, in_progress, and done are only ever reached by moves.
var putStates = map[State]struct{}{
	StateInbox:           {},
	StateNeedsAction:     {},
	StatePendingApproval: {},
}

// Put materializes a draft as a new item in the given state. The write is
// staged in the vault's same-volume tmp directory and renamed into place, so
// a concurrent lister never observes a partial item.
func (s *Store) Put(ctx context.Context, state State, draft Draft) (*Item, error) {
	if _, ok := putStates[state]; !ok {
		return nil, fmt.Errorf("%w: cannot put directly into %s", ErrInvalidTransition, state)
	}
	if strings.TrimSpace(draft.Source) == "" {
		return nil, fmt.Errorf("%w: draft source must be set", ErrMalformedItem)
	}

	now := time.Now().UTC()
	item := &Item{
		ID:        s.uniqueID(draft.Source, now, draft.Subject),
		Source:    draft.Source,
		Subject:   draft.Subject,
		Action:    draft.Action,
		CreatedAt: now,
		UpdatedAt: now,
		Body:      draft.Body,
		State:     state,
	}
	if err := s.writeItem(state, item); err != nil {
		return nil, err
	}

	if err := s.audit.Append(ctx, audit.Record{
		ItemID:  item.ID,
		To:      string(state),
		Actor:   s.actor,
		Outcome: "ok",
		Detail:  strings.TrimSpace(draft.Subject),
	}); err != nil {
		return nil, fmt.Errorf("audit put: %w", err)
	}
	return item, nil
}

// PutItem writes an item that already carries an identifier. Writes are
// idempotent on the identifier: putting the same ID twice is last-writer-wins,
// never a duplicate.
func (s *Store) PutItem(ctx context.Context, state State, item *Item) error {
	if _, ok := putStates[state]; !ok {
		return fmt.Errorf("%w: cannot put directly into %s", ErrInvalidTransition, state)
	}
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("%w: item id must be set", ErrMalformedItem)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = time.Now().UTC()
	item.State = state
	if err := s.writeItem(state, item); err != nil {
		return err
	}
	return s.audit.Append(ctx, audit.Record{
		ItemID:  item.ID,
		To:      string(state),
		Actor:   s.actor,
		Outcome: "ok",
		Detail:  strings.TrimSpace(item.Subject),
	})
}

// Move transitions an item between states with an atomic rename.
func (s *Store) Move(ctx context.Context, id string, from, to State) error {
	return s.MoveWithReason(ctx, id, from, to, "ok", "")
}

// MoveWithReason transitions an item and records outcome/detail in the audit
// log: the executor's success/failure outcomes and the gate's
// malformed_request rejections ride through here.
//
// The transition is validated against the state graph first; an illegal edge
// fails with ErrInvalidTransition and the item stays in from. When source and
// destination share a volume the move is a single rename; across volumes it
// degrades to copy-verify-delete, and destination writes keyed by the item
// identifier keep a crash between copy and delete from ever double-processing.
func (s *Store) MoveWithReason(ctx context.Context, id string, from, to State, outcome, detail string) error {
	if _, ok := ParseState(string(from)); !ok {
		return fmt.Errorf("%w: unknown source state %q", ErrInvalidTransition, from)
	}
	if _, ok := ParseState(string(to)); !ok {
		return fmt.Errorf("%w: unknown destination state %q", ErrInvalidTransition, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	src := filepath.Join(from.Dir(s.root), id+itemExtension)
	dst := filepath.Join(to.Dir(s.root), id+itemExtension)

	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s in %s", ErrNotFound, id, from)
		}
		if isCrossDevice(err) {
			if copyErr := s.moveAcrossVolumes(src, dst); copyErr != nil {
				return copyErr
			}
		} else {
			return fmt.Errorf("move %s from %s to %s: %w", id, from, to, err)
		}
	}
	syncDir(to.Dir(s.root))

	if err := s.audit.Append(ctx, audit.Record{
		ItemID:  id,
		From:    string(from),
		To:      string(to),
		Actor:   s.actor,
		Outcome: outcome,
		Detail:  detail,
	}); err != nil {
		return fmt.Errorf("audit move: %w", err)
	}
	return nil
}

func (s *Store) moveAcrossVolumes(src, dst string) error {
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return fmt.Errorf("cross-volume copy: %w", err)
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// Get loads one item from a state. A missing file is ErrNotFound.
func (s *Store) Get(ctx context.Context, state State, id string) (*Item, error) {
	path := filepath.Join(state.Dir(s.root), id+itemExtension)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, state)
		}
		return nil, fmt.Errorf("read item: %w", err)
	}
	item, err := DecodeItem(data)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", id, err)
	}
	item.State = state
	return item, nil
}

// Find locates an item by identifier across every state.
func (s *Store) Find(ctx context.Context, id string) (*Item, error) {
	for _, state := range AllStates() {
		item, err := s.Get(ctx, state, id)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns a point-in-time snapshot of a state, ordered by creation time
// ascending (identifier as tie-break). Files that vanish mid-listing were
// claimed by another consumer and are skipped. Undecodable files are returned
// with Invalid set so the gate can reject them instead of leaving the queue
// silently blocked.
func (s *Store) List(ctx context.Context, state State) ([]*Item, error) {
	dir := state.Dir(s.root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", state, err)
	}

	items := make([]*Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), itemExtension) {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read item %s: %w", entry.Name(), err)
		}
		item, decodeErr := DecodeItem(data)
		if decodeErr != nil {
			item = &Item{
				ID:      strings.TrimSuffix(entry.Name(), itemExtension),
				Invalid: decodeErr,
			}
			if info, err := entry.Info(); err == nil {
				item.CreatedAt = info.ModTime().UTC()
			}
		}
		item.State = state
		items = append(items, item)
	}

	sort.Slice(items, func(a, b int) bool {
		if items[a].CreatedAt.Equal(items[b].CreatedAt) {
			return items[a].ID < items[b].ID
		}
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})
	return items, nil
}

// Counts returns the number of items currently in each state.
func (s *Store) Counts(ctx context.Context) (map[State]int, error) {
	counts := make(map[State]int, len(allStates))
	for _, state := range AllStates() {
		items, err := s.List(ctx, state)
		if err != nil {
			return nil, err
		}
		counts[state] = len(items)
	}
	return counts, nil
}

// Annotate sets one annotation on an item in place, preserving the body
// bytes exactly. Used to attach failure reasons and execution tokens; it is
// not a state transition.
func (s *Store) Annotate(ctx context.Context, state State, id, key, value string) error {
	item, err := s.Get(ctx, state, id)
	if err != nil {
		return err
	}
	if item.Annotations == nil {
		item.Annotations = make(map[string]string, 1)
	}
	item.Annotations[key] = value
	item.UpdatedAt = time.Now().UTC()
	return s.writeItem(state, item)
}

// PutAttachment copies an external file into the vault attachments directory
// with integrity verification and returns the stored path.
func (s *Store) PutAttachment(ctx context.Context, srcPath, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(srcPath)
	}
	dst := filepath.Join(s.root, attachmentsDirName, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create attachments directory: %w", err)
	}
	if err := fileutil.CopyFileVerified(srcPath, dst); err != nil {
		return "", fmt.Errorf("store attachment: %w", err)
	}
	return dst, nil
}

func (s *Store) writeItem(state State, item *Item) error {
	data, err := item.Encode()
	if err != nil {
		return err
	}
	path := filepath.Join(state.Dir(s.root), item.FileName())
	if err := fileutil.WriteFileAtomic(path, data, filepath.Join(s.root, tmpDirName)); err != nil {
		return fmt.Errorf("write item %s: %w", item.ID, err)
	}
	return nil
}

// uniqueID derives an identifier and guards against the rare same-second
// collision by scanning every state directory before accepting it.
func (s *Store) uniqueID(source string, at time.Time, subject string) string {
	id := NewID(source, at, subject)
	if !s.idExists(id) {
		return id
	}
	return id + "_" + uuid.NewString()[:8]
}

func (s *Store) idExists(id string) bool {
	for _, state := range AllStates() {
		if _, err := os.Stat(filepath.Join(state.Dir(s.root), id+itemExtension)); err == nil {
			return true
		}
	}
	return false
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}

func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
