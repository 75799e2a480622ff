package relationship

import (
	"context"
	"errors"
)

// Kind names one of the three per-user records.
type Kind string

const (
	KindFriends  Kind = "friends"
	KindIncoming Kind = "requests_in"
	KindOutgoing Kind = "requests_out"
)

// Kinds lists every record kind a user owns.
var Kinds = []Kind{KindFriends, KindIncoming, KindOutgoing}

// Record is the value of a single (kind, user) key together with the
// revision it was read at. An absent key reads as empty members at
// revision 0.
type Record struct {
	Members  []string
	Revision int64
}

// ErrRevisionConflict is returned by CompareAndPut when the record was
// mutated between the read and the write.
var ErrRevisionConflict = errors.New("record revision conflict")

// Store is the key-value backend holding the relationship records. Reads
// and writes are single-key; there is no cross-key atomicity. The
// Controller layers the retry protocol on top of it.
type Store interface {
	// Get returns the current record for (kind, userID). A missing record
	// is not an error: it reads as Record{Members: nil, Revision: 0}.
	Get(ctx context.Context, kind Kind, userID string) (Record, error)

	// CompareAndPut overwrites the record iff its current revision equals
	// expected. Writing with expected 0 creates the record and fails with
	// ErrRevisionConflict if it already exists.
	CompareAndPut(ctx context.Context, kind Kind, userID string, members []string, expected int64) error

	// Delete removes the record unconditionally. Deleting a missing record
	// is a no-op.
	Delete(ctx context.Context, kind Kind, userID string) error
}
