package order

import (
	"time"

	"github.com/example/commerce-core/internal/apperr"
)

// ItemStatus is the per-line-item status vocabulary.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemShipped    ItemStatus = "shipped"
	ItemDelivered  ItemStatus = "delivered"
	ItemOnHold     ItemStatus = "on_hold"
	ItemCancelled  ItemStatus = "cancelled"
)

// validItemTransitions defines allowed line-item state transitions.
// Delivered and Cancelled are terminal.
var validItemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:    {ItemProcessing, ItemOnHold, ItemCancelled},
	ItemProcessing: {ItemShipped, ItemOnHold, ItemCancelled},
	ItemShipped:    {ItemDelivered, ItemOnHold},
	ItemOnHold:     {ItemProcessing, ItemCancelled},
	ItemDelivered:  {}, // terminal state
	ItemCancelled:  {}, // terminal state
}

// IsValid reports whether s is part of the item status vocabulary.
func (s ItemStatus) IsValid() bool {
	_, ok := validItemTransitions[s]
	return ok
}

// CanTransitionTo checks if an item in status s may move to target.
func (s ItemStatus) CanTransitionTo(target ItemStatus) bool {
	allowed, exists := validItemTransitions[s]
	if !exists {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// transitionItem validates and applies a status transition on the item in
// memory. On a rejected transition the item is left untouched. Entering
// Delivered stamps DeliveredAt; entering OnHold requires a non-empty reason;
// leaving OnHold clears it.
func transitionItem(it *Item, target ItemStatus, onHoldReason string, now time.Time) error {
	if !target.IsValid() {
		return apperr.Newf(apperr.KindValidation, "unknown item status %q", target)
	}
	if !it.Status.CanTransitionTo(target) {
		return apperr.Newf(apperr.KindConflict, "cannot transition item from %s to %s", it.Status, target)
	}
	if target == ItemOnHold && onHoldReason == "" {
		return apperr.New(apperr.KindValidation, "a reason is required to put an item on hold")
	}

	if it.Status == ItemOnHold {
		it.OnHoldReason = ""
	}

	switch target {
	case ItemDelivered:
		at := now
		it.DeliveredAt = &at
	case ItemOnHold:
		it.OnHoldReason = onHoldReason
	}

	it.Status = target
	return nil
}
