package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"sitecontent/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(ctx, path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.Create(domain.CollectionProducts, domain.Record{"name": "Persist"})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	doc := reloaded.ExportState()
	if got := len(doc.Collections[domain.CollectionProducts]); got != 1 {
		t.Fatalf("expected 1 product, got %d", got)
	}
	if doc.Revision != 1 {
		t.Fatalf("expected revision 1 after reload, got %d", doc.Revision)
	}
	if reloaded.Driver() != "sqlite" {
		t.Fatalf("unexpected driver %q", reloaded.Driver())
	}
}

func TestSQLiteStoreSeedsEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var count int
	if err := store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM state").Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != len(domain.Collections)+1 {
		t.Fatalf("expected %d buckets, got %d", len(domain.Collections)+1, count)
	}
	if got := len(store.ExportState().Collections[domain.CollectionNavigation]); got != 5 {
		t.Fatalf("expected seeded navigation, got %d", got)
	}
}

func TestSQLiteStoreFailedTransactionLeavesRows(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.Delete(domain.CollectionNews, 1)
		return e
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var payload string
	if err := store.DB().QueryRowContext(ctx, "SELECT payload FROM state WHERE bucket = ?", "news").Scan(&payload); err != nil {
		t.Fatalf("select news: %v", err)
	}
	if payload != "[]" {
		t.Fatalf("unexpected news payload %q", payload)
	}
}
