package order

import (
	"fmt"
	"time"
)

// Status is the order-level status vocabulary. It is independent of the
// per-line-item statuses: changing one never cascades into the other.
type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusFulfilled       Status = "fulfilled"
	StatusCancelled       Status = "cancelled"
)

// validTransitions defines allowed order-level state transitions.
var validTransitions = map[Status][]Status{
	StatusAwaitingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusFulfilled, StatusCancelled},
	StatusFulfilled:       {}, // terminal state
	StatusCancelled:       {}, // terminal state
}

// IsValid reports whether s is part of the order status vocabulary.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo checks if an order in status s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[s]
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

// AddressType distinguishes the address snapshots attached to an order.
type AddressType string

const (
	AddressShipping AddressType = "shipping"
	AddressBilling  AddressType = "billing"
)

// Order is the aggregate root. It exclusively owns its items, address
// snapshots, and payment record; all mutations go through the Service.
// Monetary amounts are integer minor units (cents).
type Order struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	OrderNumber   int64     `json:"order_number"`
	OrderDate     time.Time `json:"order_date"`
	Status        Status    `json:"status"`
	Subtotal      int64     `json:"subtotal"`
	TaxTotal      int64     `json:"tax_total"`
	ShippingTotal int64     `json:"shipping_total"`
	GrandTotal    int64     `json:"grand_total"`
	Notes         string    `json:"notes,omitempty"`
	Items         []Item    `json:"items"`
	Addresses     []Address `json:"addresses"`
	Payment       *Payment  `json:"payment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is a line item. Quantity and UnitPrice are snapshotted at order time
// and immutable afterwards; a quantity change is modeled as cancel-and-
// recreate so the totals invariant and audit trail survive.
type Item struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	ItemID        string     `json:"item_id"`
	VariantID     string     `json:"variant_id"`
	NameEN        string     `json:"name_en"`
	NameFR        string     `json:"name_fr,omitempty"`
	VariantNameEN string     `json:"variant_name_en,omitempty"`
	VariantNameFR string     `json:"variant_name_fr,omitempty"`
	Quantity      int        `json:"quantity"`
	UnitPrice     int64      `json:"unit_price"`
	TotalPrice    int64      `json:"total_price"`
	Status        ItemStatus `json:"status"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	OnHoldReason  string     `json:"on_hold_reason,omitempty"`
}

// Address is an immutable snapshot of a recipient address taken at order
// creation. Later edits to the user's saved address never change it.
type Address struct {
	ID            string      `json:"id"`
	OrderID       string      `json:"order_id"`
	Type          AddressType `json:"type"`
	Recipient     string      `json:"recipient"`
	Line1         string      `json:"line1"`
	Line2         string      `json:"line2,omitempty"`
	City          string      `json:"city"`
	ProvinceState string      `json:"province_state,omitempty"`
	PostalCode    string      `json:"postal_code"`
	Country       string      `json:"country"`
	Phone         string      `json:"phone,omitempty"`
}

// Payment is the at-most-one payment record of an order. PaidAt moves from
// nil to a timestamp exactly once; Amount always equals the order's grand
// total.
type Payment struct {
	ID              string     `json:"id"`
	OrderID         string     `json:"order_id"`
	PaymentMethodID string     `json:"payment_method_id,omitempty"`
	Amount          int64      `json:"amount"`
	Provider        string     `json:"provider,omitempty"`
	ProviderRef     string     `json:"provider_ref,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

// FindItem returns the line item with the given id, or nil.
func (o *Order) FindItem(itemID string) *Item {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// AddressOfType returns the address snapshot of the given type, or nil.
func (o *Order) AddressOfType(t AddressType) *Address {
	for i := range o.Addresses {
		if o.Addresses[i].Type == t {
			return &o.Addresses[i]
		}
	}
	return nil
}

// checkTotals verifies the monetary invariants. Used before persisting.
func (o *Order) checkTotals() error {
	var itemSum int64
	for _, it := range o.Items {
		if it.TotalPrice != it.UnitPrice*int64(it.Quantity) {
			return fmt.Errorf("item %s: total %d != unit %d x qty %d", it.ID, it.TotalPrice, it.UnitPrice, it.Quantity)
		}
		itemSum += it.TotalPrice
	}
	if o.Subtotal != itemSum {
		return fmt.Errorf("subtotal %d != item sum %d", o.Subtotal, itemSum)
	}
	if o.GrandTotal != o.Subtotal+o.TaxTotal+o.ShippingTotal {
		return fmt.Errorf("grand total %d != %d + %d + %d", o.GrandTotal, o.Subtotal, o.TaxTotal, o.ShippingTotal)
	}
	return nil
}
