// Package pending owns the bookkeeping records for payments that have been
// initiated at the gateway but whose outcome has not yet been applied to
// the ledger. Records are keyed by the gateway-assigned reference.
package pending

import (
	"context"
	"time"

	"github.com/punchamoorthee/payflow/internal/domain"
)

// Store is the pending-payment table. A reference maps to at most one
// record; Put with an existing reference overwrites. Remove is an atomic
// take-and-delete: under concurrent callers at most one observes the
// record, which is what makes the ledger credit at-most-once.
type Store interface {
	Put(ctx context.Context, rec domain.PendingPayment) error
	Get(ctx context.Context, reference string) (domain.PendingPayment, bool, error)
	Remove(ctx context.Context, reference string) (domain.PendingPayment, bool, error)

	// SweepExpired removes every record older than maxAge relative to now
	// and returns how many were discarded. Housekeeping only, never part
	// of the request path.
	SweepExpired(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)

	// Size and Entries are diagnostics. Entries carries no ordering
	// guarantee.
	Size(ctx context.Context) (int, error)
	Entries(ctx context.Context) ([]domain.PendingPayment, error)
}
