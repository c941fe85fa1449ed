package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"warden/internal/audit"
	"warden/internal/config"
	"warden/internal/vault"
)

// MustOpenStore opens an initialized vault.Store for tests. The backing audit
// log lands in the config's log directory under the usual file name.
func MustOpenStore(t testing.TB, cfg *config.Config, actor string) *vault.Store {
	t.Helper()

	log, err := audit.Open(filepath.Join(cfg.Paths.LogDir, audit.FileName))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	store, err := vault.Open(cfg.Paths.VaultDir, log, actor)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	return store
}

// NewItem creates an item in the given state for tests using the provided store.
func NewItem(t testing.TB, store *vault.Store, state vault.State, draft vault.Draft) *vault.Item {
	t.Helper()

	item, err := store.Put(context.Background(), state, draft)
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return item
}
