package domain

import (
	"context"
	"time"
)

// Action identifies the kind of mutation recorded in a Change.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change captures one mutation applied within a transaction.
type Change struct {
	Collection Collection
	Action     Action
	ID         int
	Before     Record
	After      Record
}

// Result summarizes a committed transaction.
type Result struct {
	Revision int64
	Changes  []Change
}

// View provides read-only access to a snapshot of the document.
type View interface {
	List(c Collection) []Record
	Find(c Collection, id int) (Record, bool)
	Revision() int64
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Records passed in and returned are copies.
type Transaction interface {
	View
	// Create appends r. A positive unused id on r is kept, otherwise the
	// next id (max+1) is assigned.
	Create(c Collection, r Record) (Record, error)
	Update(c Collection, id int, mutator func(Record) error) (Record, error)
	Delete(c Collection, id int) (Record, error)
	Now() time.Time
}

// PersistentStore is the contract shared by every Content Store backend.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(View) error) error
	// ExportState returns a deep copy of the committed document.
	ExportState() Document
	// Restore replaces the whole document and persists it.
	Restore(ctx context.Context, doc Document) error
	Driver() string
	Close() error
}
