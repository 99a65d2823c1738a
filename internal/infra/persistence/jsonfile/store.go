// Package jsonfile persists the content document as a single indented JSON
// file. Every commit replaces the file atomically.
package jsonfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sitecontent/internal/infra/persistence/memory"
	"sitecontent/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no file path is configured.
const DefaultPath = "data/database.json"

// Digest identifies file contents so self-writes can be told apart from
// external edits.
type Digest [sha256.Size]byte

// Store is a memory.Store whose commits are written to a JSON file.
type Store struct {
	*memory.Store
	path   string
	logger *slog.Logger

	mu         sync.Mutex
	lastDigest Digest
}

// NewStore loads path (repairing it when needed) and returns a store backed by it.
// The returned error is non-nil only when the repaired document cannot be written.
func NewStore(ctx context.Context, path string, logger *slog.Logger, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	opts = append(opts, memory.WithPersister(s.persist), memory.WithDriver("jsonfile"))
	s.Store = memory.NewStore(opts...)

	doc, repaired, digest := load(path, logger)
	s.ImportState(doc)
	s.lastDigest = digest
	if repaired {
		if err := s.persist(ctx, doc); err != nil {
			return nil, fmt.Errorf("write repaired document: %w", err)
		}
	}
	return s, nil
}

// Load reads the document at path. It never fails: a missing file, a parse
// error or a missing collection yields defaults. A file that cannot be parsed
// is moved aside first. repaired reports whether the result differs from the
// file and should be written back.
func Load(path string, logger *slog.Logger) (doc domain.Document, repaired bool) {
	doc, repaired, _ = load(path, logger)
	return doc, repaired
}

func load(path string, logger *slog.Logger) (doc domain.Document, repaired bool, digest Digest) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- configured data file
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("read content document", "path", path, "error", err)
		}
		return domain.NewDocument(), true, digest
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			logger.Error("move corrupt content document aside", "path", path, "error", rerr)
		} else {
			logger.Warn("content document unreadable, moved aside", "path", path, "aside", aside, "error", err)
		}
		return domain.NewDocument(), true, digest
	}
	if fixed := doc.Repair(); len(fixed) > 0 {
		logger.Warn("content document repaired", "path", path, "collections", fixed)
		repaired = true
	}
	return doc, repaired, sha256.Sum256(data)
}

// Encode renders doc in the on-disk layout.
func Encode(doc domain.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (s *Store) persist(_ context.Context, doc domain.Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return err
	}
	s.lastDigest = sha256.Sum256(data)
	return nil
}

// Path returns the document file path.
func (s *Store) Path() string { return s.path }

// LastDigest returns the digest of the last document this store wrote or read.
func (s *Store) LastDigest() Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDigest
}

// Reload re-reads the file after an external edit. It returns false when the
// file content matches what the store last wrote. A file that does not parse
// is left alone and reported, since an editor may still be writing it. The
// read, the digest check and the swap happen under the store's write lock so
// a concurrent commit is never overwritten by an older file.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	var reloaded, repaired bool
	var revision int64
	err := s.Store.Replace(func(current domain.Document) (domain.Document, bool, error) {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return domain.Document{}, false, fmt.Errorf("read %s: %w", s.path, err)
		}
		digest := sha256.Sum256(data)
		if digest == s.LastDigest() {
			return domain.Document{}, false, nil
		}
		var doc domain.Document
		if err := json.Unmarshal(bytes.TrimSpace(data), &doc); err != nil {
			return domain.Document{}, false, fmt.Errorf("parse %s: %w", s.path, err)
		}
		if fixed := doc.Repair(); len(fixed) > 0 {
			s.logger.Warn("reloaded content document repaired", "path", s.path, "collections", fixed)
			doc.Revision = current.Revision + 1
			if err := s.persist(ctx, doc); err != nil {
				return domain.Document{}, false, err
			}
			repaired = true
		} else {
			s.mu.Lock()
			s.lastDigest = digest
			s.mu.Unlock()
		}
		reloaded, revision = true, doc.Revision
		return doc, true, nil
	})
	if err != nil || !reloaded {
		return false, err
	}
	s.logger.Info("content document reloaded", "path", s.path, "revision", revision, "repaired", repaired)
	return true, nil
}
