package thread

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/loom/internal/ids"
)

// ErrorKind is the closed set of store failure modes.
type ErrorKind int

const (
	ErrorKindNotFound ErrorKind = iota
	ErrorKindConflict
	ErrorKindBackend
	ErrorKindSerialization
)

// StoreError is the typed error every Store implementation returns. A
// Conflict carries both the version the caller expected and the version
// actually stored, so callers can decide whether to retry with a fresh
// read or surface the mismatch.
type StoreError struct {
	Kind             ErrorKind
	ExpectedVersion  int64
	ActualVersion    int64
	Err              error
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case ErrorKindNotFound:
		return "thread not found"
	case ErrorKindConflict:
		return fmt.Sprintf("version conflict: expected %d, stored %d", e.ExpectedVersion, e.ActualVersion)
	case ErrorKindBackend:
		return fmt.Sprintf("store backend error: %v", e.Err)
	case ErrorKindSerialization:
		return fmt.Sprintf("store serialization error: %v", e.Err)
	default:
		return "unknown store error"
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotFound builds a StoreError of kind NotFound.
func NotFound() *StoreError { return &StoreError{Kind: ErrorKindNotFound} }

// Conflict builds a StoreError of kind Conflict.
func Conflict(expected, actual int64) *StoreError {
	return &StoreError{Kind: ErrorKindConflict, ExpectedVersion: expected, ActualVersion: actual}
}

// Backend wraps an underlying backend failure (I/O, SQL, HTTP, ...).
func Backend(err error) *StoreError { return &StoreError{Kind: ErrorKindBackend, Err: err} }

// Serialization wraps a marshal/unmarshal failure.
func Serialization(err error) *StoreError { return &StoreError{Kind: ErrorKindSerialization, Err: err} }

// Store is the interface every thread backend (local file, Postgres sync
// tier, syncing composition) implements.
type Store interface {
	// Upsert inserts a new thread or updates an existing one by id.
	// expectedVersion, when non-nil, gates the update: a mismatch against
	// the stored version returns a Conflict StoreError without mutating
	// anything.
	Upsert(ctx context.Context, t Thread, expectedVersion *int64) (Thread, error)

	Get(ctx context.Context, id ids.ThreadID) (Thread, error)

	// List returns summaries, optionally scoped to a workspace root,
	// newest activity first.
	List(ctx context.Context, workspaceRoot string, limit, offset int) ([]ThreadSummary, error)

	// Delete removes a thread from List/Search. The local store
	// soft-deletes, so its Get still returns the thread; the Postgres
	// sync store deletes the row, so a later Get returns NotFound.
	Delete(ctx context.Context, id ids.ThreadID) error

	Search(ctx context.Context, query, workspaceRoot string, limit, offset int) ([]ThreadSearchHit, error)

	ListForOwner(ctx context.Context, owner ids.UserID, limit, offset int) ([]ThreadSummary, error)
	CountForOwner(ctx context.Context, owner ids.UserID) (int, error)
	SearchForOwner(ctx context.Context, owner ids.UserID, query string, limit, offset int) ([]ThreadSearchHit, error)

	SetOwner(ctx context.Context, id ids.ThreadID, owner ids.UserID) error
	SetSharedWithSupport(ctx context.Context, id ids.ThreadID, shared bool) error

	// SetVisibility changes a thread's exposure level. Only Organization and
	// Public are valid here: a Private thread never reaches a server-side
	// Store to begin with, so there is no transition into or out of it.
	SetVisibility(ctx context.Context, id ids.ThreadID, visibility Visibility) error

	HealthCheck(ctx context.Context) error
}
