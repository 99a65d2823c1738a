package jsonfile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"sitecontent/pkg/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readDocument(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return raw
}

func TestNewStoreCreatesMissingFileWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "database.json")
	store, err := NewStore(context.Background(), path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	raw := readDocument(t, path)
	for _, c := range domain.Collections {
		if _, ok := raw[string(c)]; !ok {
			t.Fatalf("collection %s missing from written file", c)
		}
	}
	doc := store.ExportState()
	if len(doc.Collections[domain.CollectionNavigation]) != 5 || len(doc.Collections[domain.CollectionTeam]) != 1 {
		t.Fatalf("expected navigation and team defaults")
	}
	if len(doc.Collections[domain.CollectionProducts]) != 0 {
		t.Fatalf("expected empty products")
	}
}

func TestLoadMalformedFileMovesItAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, repaired := Load(path, quietLogger())
	if !repaired {
		t.Fatalf("expected repaired document")
	}
	for _, c := range domain.Collections {
		if doc.Collections[c] == nil {
			t.Fatalf("collection %s missing after load", c)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "database.json.corrupt-*"))
	if len(matches) != 1 {
		t.Fatalf("expected corrupt file moved aside, got %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if string(data) != "{not json" {
		t.Fatalf("aside file content changed: %q", data)
	}
}

func TestLoadRepairsMissingCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	if err := os.WriteFile(path, []byte(`{"products":[{"id":3,"name":"Kept"}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := NewStore(context.Background(), path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	products := store.ExportState().Collections[domain.CollectionProducts]
	if len(products) != 1 || products[0].ID() != 3 {
		t.Fatalf("existing products lost: %v", products)
	}
	if _, ok := readDocument(t, path)["contacts"]; !ok {
		t.Fatalf("repaired document not written back")
	}
}

func TestCommitWritesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	store, err := NewStore(context.Background(), path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Create(domain.CollectionProducts, domain.Record{"name": "Lamp"})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var products []domain.Record
	if err := json.Unmarshal(readDocument(t, path)["products"], &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 1 || products[0].String("name") != "Lamp" {
		t.Fatalf("unexpected products on disk %v", products)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCommitFailureKeepsPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	store, err := NewStore(context.Background(), path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	// Replacing the file with a directory makes the rename fail.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Create(domain.CollectionContacts, domain.Record{"name": "x"})
		return err
	})
	if err == nil {
		t.Fatalf("expected write failure")
	}
	if got := len(store.ExportState().Collections[domain.CollectionContacts]); got != 0 {
		t.Fatalf("state changed despite failed write: %d contacts", got)
	}
}

func TestConcurrentCommitsAllSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	store, err := NewStore(context.Background(), path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.Create(domain.CollectionContacts, domain.Record{"name": "c"})
				return err
			})
		}()
	}
	wg.Wait()
	reloaded, repaired := Load(path, quietLogger())
	if repaired {
		t.Fatalf("unexpected repair of committed file")
	}
	if got := len(reloaded.Collections[domain.CollectionContacts]); got != 20 {
		t.Fatalf("expected 20 contacts on disk, got %d", got)
	}
	if reloaded.Revision != 20 {
		t.Fatalf("expected revision 20, got %d", reloaded.Revision)
	}
}

func TestReloadIgnoresSelfWritesAndPicksUpExternalEdits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "database.json")
	store, err := NewStore(ctx, path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	changed, err := store.Reload(ctx)
	if err != nil || changed {
		t.Fatalf("expected self write to be ignored, changed=%v err=%v", changed, err)
	}

	doc := store.ExportState()
	doc.Collections[domain.CollectionNews] = []domain.Record{{"id": 1, "title": "Edited by hand"}}
	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	changed, err = store.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("expected external edit to reload, changed=%v err=%v", changed, err)
	}
	news := store.ExportState().Collections[domain.CollectionNews]
	if len(news) != 1 || news[0].String("title") != "Edited by hand" {
		t.Fatalf("unexpected news after reload %v", news)
	}

	if err := os.WriteFile(path, []byte("{half"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Reload(ctx); err == nil {
		t.Fatalf("expected parse error for partial write")
	}
	if len(store.ExportState().Collections[domain.CollectionNews]) != 1 {
		t.Fatalf("state must survive an unparsable reload")
	}
}

func TestReloadNeverRevertsConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "database.json")
	store, err := NewStore(ctx, path, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	const writers = 40
	done := make(chan struct{})
	var reverted sync.WaitGroup
	reverted.Add(1)
	var reloads int
	go func() {
		defer reverted.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			changed, err := store.Reload(ctx)
			if err != nil {
				t.Errorf("reload: %v", err)
				return
			}
			if changed {
				reloads++
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				_, err := tx.Create(domain.CollectionContacts, domain.Record{"name": "x"})
				return err
			}); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()
	close(done)
	reverted.Wait()

	if reloads != 0 {
		t.Fatalf("self writes must never be reloaded, got %d reloads", reloads)
	}
	if got := len(store.ExportState().Collections[domain.CollectionContacts]); got != writers {
		t.Fatalf("expected %d contacts, got %d", writers, got)
	}
}
