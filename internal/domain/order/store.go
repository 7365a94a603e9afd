package order

import (
	"context"
	"time"
)

// Store is the persistence contract for the order aggregate. Implementations
// must make Insert atomic across the order and all of its children, allocate
// order numbers serializably, and make the conditional updates check-and-set
// so concurrent writers cannot both succeed from a stale read. Queries are
// explicit per access path.
type Store interface {
	// NextOrderNumber allocates the next order number. Numbers are monotonic
	// and never reused, even for orders that are later cancelled.
	NextOrderNumber(ctx context.Context) (int64, error)

	// Insert persists the order together with its items, address snapshots,
	// and payment record as one unit. On failure nothing is visible to
	// subsequent reads.
	Insert(ctx context.Context, o *Order) error

	// Get returns the order with all children, or a not-found error.
	// Ownership scoping is the Service's concern.
	Get(ctx context.Context, orderID string) (*Order, error)

	// GetByNumber returns the order with the given order number.
	GetByNumber(ctx context.Context, orderNumber int64) (*Order, error)

	// ListByUser returns all orders of a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Order, error)

	// ListByUserAndStatus returns the user's orders in the given status.
	ListByUserAndStatus(ctx context.Context, userID string, status Status) ([]*Order, error)

	// UpdateStatus moves the order from one status to another. It fails with
	// a conflict error when the stored status no longer equals from.
	UpdateStatus(ctx context.Context, orderID string, from, to Status, at time.Time) error

	// UpdateItemStatus writes the item's status, delivered-at, and on-hold
	// reason, conditional on the stored status still equalling from. It fails
	// with a conflict error on a stale read.
	UpdateItemStatus(ctx context.Context, orderID string, it *Item, from ItemStatus, at time.Time) error

	// RecordPayment stamps the order's payment record and moves the order
	// from one status to another as one unit. It fails with a conflict error
	// when the payment is already stamped or the stored status no longer
	// equals from, and leaves neither change applied on failure.
	RecordPayment(ctx context.Context, orderID, provider, providerRef string, from, to Status, at time.Time) error
}
