package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Predicate limits a conditional update to records in an expected state.
// Nil fields are not checked.
type Predicate struct {
	// Version must equal the record's current version.
	Version *int64
	// Open requires Closed == !*Open.
	Open *bool
	// OwnerID must equal the record's owner.
	OwnerID *uuid.UUID
}

// Patch carries the fields a conditional update may change. Nil fields are
// left untouched. Every applied patch increments the record version.
type Patch struct {
	Joined    *[]uuid.UUID
	Completed *[]CompletionRecord
	Closed    *bool
}

// SessionStore persists session records. Implementations must provide
// read-your-writes consistency per record and atomic conditional updates;
// blind overwrites are never used.
//
// Get returns ErrNotFound for unknown codes. Insert returns
// ErrAlreadyExists on a code collision. UpdateWhere applies the patch only
// if the predicate still holds and returns the updated record, or ErrNoMatch
// when the record is absent or the predicate failed.
type SessionStore interface {
	Get(ctx context.Context, code string) (*Session, error)
	Insert(ctx context.Context, sess *Session) error
	UpdateWhere(ctx context.Context, code string, pred Predicate, patch Patch) (*Session, error)

	// ExpiredOpen lists codes of open sessions created before the cutoff,
	// for the expiry sweeper.
	ExpiredOpen(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ResultStore persists graded submissions. Results are append-only; nothing
// in this service mutates or deletes them.
type ResultStore interface {
	Insert(ctx context.Context, res *Result) error
	BySession(ctx context.Context, code string) ([]Result, error)
}
