// Package memory provides the in-memory implementation of the content store.
// The durable backends embed it and persist each committed document.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sitecontent/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Document aliases domain.Document.
	Document = domain.Document
	// Record aliases domain.Record.
	Record = domain.Record
	// Collection aliases domain.Collection.
	Collection = domain.Collection
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing a commit.
	Result = domain.Result
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// View aliases domain.View providing read-only state.
	View = domain.View
)

// PersistFunc durably writes a document that is about to become the committed
// state. Returning an error aborts the commit.
type PersistFunc func(ctx context.Context, doc Document) error

// Option configures a Store.
type Option func(*Store)

// WithPersister installs the function invoked before every commit.
func WithPersister(fn PersistFunc) Option {
	return func(s *Store) { s.persist = fn }
}

// WithNow overrides the clock used for timestamps.
func WithNow(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// WithDriver overrides the driver name reported by Driver.
func WithDriver(name string) Option {
	return func(s *Store) { s.driver = name }
}

// Store provides an in-memory transactional store for the content document.
type Store struct {
	mu      sync.RWMutex
	state   Document
	nowFn   func() time.Time
	persist PersistFunc
	driver  string
}

// NewStore constructs an in-memory store holding the default document.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state:  domain.NewDocument(),
		nowFn:  func() time.Time { return time.Now().UTC() },
		driver: "memory",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver reports the backend name.
func (s *Store) Driver() string { return s.driver }

// Close releases nothing for the memory backend.
func (s *Store) Close() error { return nil }

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ImportState replaces the store state without invoking the persister.
// Backends use it to hydrate from their own storage.
func (s *Store) ImportState(doc Document) {
	doc = doc.Clone()
	doc.Repair()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = doc
}

// Replace runs fn while holding the write lock, so no commit can interleave.
// When fn returns replace=true its document becomes the committed state. The
// persister is not invoked; fn writes through its backend itself if needed.
func (s *Store) Replace(fn func(current Document) (next Document, replace bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, replace, err := fn(s.state.Clone())
	if err != nil || !replace {
		return err
	}
	next.Repair()
	s.state = next
	return nil
}

// Restore replaces the whole document, persisting it first.
func (s *Store) Restore(ctx context.Context, doc Document) error {
	doc = doc.Clone()
	doc.Repair()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Revision = s.state.Revision + 1
	doc.UpdatedAt = s.nowFn()
	if s.persist != nil {
		if err := s.persist(ctx, doc.Clone()); err != nil {
			return fmt.Errorf("persist restored document: %w", err)
		}
	}
	s.state = doc
	return nil
}

// RunInTransaction applies fn to a working copy of the document. The copy
// becomes the committed state only when fn succeeds and, for durable
// backends, the persister accepted it. Transactions without changes do not
// bump the revision.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.Clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if len(tx.changes) == 0 {
		return Result{Revision: s.state.Revision}, nil
	}
	tx.state.Revision = s.state.Revision + 1
	tx.state.UpdatedAt = tx.now
	if s.persist != nil {
		if err := s.persist(ctx, tx.state.Clone()); err != nil {
			return Result{}, err
		}
	}
	s.state = tx.state
	return Result{Revision: tx.state.Revision, Changes: tx.changes}, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(View) error) error {
	s.mu.RLock()
	snapshot := s.state.Clone()
	s.mu.RUnlock()
	return fn(&transactionView{state: &snapshot})
}

// Revision returns the committed document revision.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Revision
}

type transactionView struct {
	state *Document
}

func (v *transactionView) List(c Collection) []Record {
	recs := v.state.Collections[c]
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

func (v *transactionView) Find(c Collection, id int) (Record, bool) {
	recs := v.state.Collections[c]
	if idx := domain.IndexOf(recs, id); idx >= 0 {
		return recs[idx].Clone(), true
	}
	return nil, false
}

func (v *transactionView) Revision() int64 { return v.state.Revision }

type transaction struct {
	transactionView
	state   Document
	changes []Change
	now     time.Time
}

func (tx *transaction) view() *transactionView {
	tx.transactionView.state = &tx.state
	return &tx.transactionView
}

func (tx *transaction) List(c Collection) []Record { return tx.view().List(c) }

func (tx *transaction) Find(c Collection, id int) (Record, bool) { return tx.view().Find(c, id) }

func (tx *transaction) Revision() int64 { return tx.state.Revision }

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Create appends r with initial bookkeeping fields. A positive id already
// present on r is kept when unused; otherwise the id is max+1.
func (tx *transaction) Create(c Collection, r Record) (Record, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, c)
	}
	rec := r.Clone()
	if rec == nil {
		rec = Record{}
	}
	stamp := tx.now.Format(time.RFC3339Nano)
	id := rec.ID()
	if id <= 0 || domain.IndexOf(tx.state.Collections[c], id) >= 0 {
		id = domain.NextID(tx.state.Collections[c])
	}
	rec[domain.FieldID] = id
	rec[domain.FieldRevision] = 1
	rec[domain.FieldCreatedAt] = stamp
	rec[domain.FieldUpdatedAt] = stamp
	tx.state.Collections[c] = append(tx.state.Collections[c], rec)
	tx.recordChange(Change{Collection: c, Action: domain.ActionCreate, ID: rec.ID(), After: rec.Clone()})
	return rec.Clone(), nil
}

// Update mutates the record with id using mutator. The id and creation time
// are preserved and the revision is incremented.
func (tx *transaction) Update(c Collection, id int, mutator func(Record) error) (Record, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, c)
	}
	recs := tx.state.Collections[c]
	idx := domain.IndexOf(recs, id)
	if idx < 0 {
		return nil, domain.ErrNotFound{Collection: c, ID: id}
	}
	before := recs[idx].Clone()
	current := recs[idx].Clone()
	if err := mutator(current); err != nil {
		return nil, err
	}
	current[domain.FieldID] = id
	if created, ok := before[domain.FieldCreatedAt]; ok {
		current[domain.FieldCreatedAt] = created
	}
	current[domain.FieldRevision] = before.Revision() + 1
	current[domain.FieldUpdatedAt] = tx.now.Format(time.RFC3339Nano)
	recs[idx] = current
	tx.recordChange(Change{Collection: c, Action: domain.ActionUpdate, ID: id, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// Delete removes the record with id and returns it.
func (tx *transaction) Delete(c Collection, id int) (Record, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, c)
	}
	recs := tx.state.Collections[c]
	idx := domain.IndexOf(recs, id)
	if idx < 0 {
		return nil, domain.ErrNotFound{Collection: c, ID: id}
	}
	removed := recs[idx]
	tx.state.Collections[c] = append(recs[:idx:idx], recs[idx+1:]...)
	tx.recordChange(Change{Collection: c, Action: domain.ActionDelete, ID: id, Before: removed.Clone()})
	return removed.Clone(), nil
}
