package order

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/event"
)

// VariantInfo is the catalog snapshot for one item variant at a point in
// time. Prices are integer minor units.
type VariantInfo struct {
	UnitPrice     int64
	Stock         int
	NameEN        string
	NameFR        string
	VariantNameEN string
	VariantNameFR string
}

// Catalog looks up live item/variant data for snapshotting.
type Catalog interface {
	GetItemVariant(ctx context.Context, itemID, variantID string) (*VariantInfo, error)
}

// TaxRates resolves the applicable tax rate in basis points for a shipping
// destination. A not-found result means zero tax, not an error.
type TaxRates interface {
	GetApplicableRate(ctx context.Context, country, provinceState string) (int64, error)
}

// ShippingQuoter computes the shipping cost for a draft order.
type ShippingQuoter interface {
	QuoteShipping(ctx context.Context, draft *Order) (int64, error)
}

// LineInput is a requested line item.
type LineInput struct {
	ItemID    string `json:"item_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// AddressInput is a requested address snapshot.
type AddressInput struct {
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

// ItemResult is the per-item outcome of a bulk status update.
type ItemResult struct {
	ItemID string `json:"item_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Service is the single writer for the order aggregate. No other component
// mutates an order or its children.
type Service struct {
	store     Store
	catalog   Catalog
	taxRates  TaxRates
	shipping  ShippingQuoter
	publisher event.Publisher
	now       func() time.Time
}

// NewService creates an order service. publisher may be nil when no event
// stream is configured.
func NewService(store Store, catalog Catalog, taxRates TaxRates, shipping ShippingQuoter, publisher event.Publisher) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		taxRates:  taxRates,
		shipping:  shipping,
		publisher: publisher,
		now:       time.Now,
	}
}

// depErr classifies an unrecognized error as a dependency failure without
// leaking the collaborator's details to callers.
func depErr(err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(apperr.KindDependency, "service unavailable, try again", err)
}

// taxFor computes tax in minor units from a basis-point rate, rounding half
// up.
func taxFor(subtotal, rateBps int64) int64 {
	return (subtotal*rateBps + 5000) / 10000
}

// CreateOrder validates the requested lines against the live catalog,
// snapshots prices and names, computes totals, allocates an order number,
// and persists the aggregate atomically.
func (s *Service) CreateOrder(ctx context.Context, userID string, lines []LineInput, addrs []AddressInput, paymentMethodID string) (*Order, error) {
	if userID == "" {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}
	if len(lines) == 0 {
		return nil, apperr.New(apperr.KindValidation, "order must have at least one line item")
	}

	now := s.now()
	orderID := uuid.New().String()

	items := make([]Item, 0, len(lines))
	var subtotal int64
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, apperr.Newf(apperr.KindValidation, "line %d: quantity must be positive", i+1)
		}
		variant, err := s.catalog.GetItemVariant(ctx, line.ItemID, line.VariantID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.Newf(apperr.KindValidation, "line %d: unknown item or variant", i+1)
			}
			return nil, depErr(err)
		}
		if line.Quantity > variant.Stock {
			return nil, apperr.Newf(apperr.KindValidation, "line %d: requested quantity %d exceeds available stock %d", i+1, line.Quantity, variant.Stock)
		}

		items = append(items, Item{
			ID:            uuid.New().String(),
			OrderID:       orderID,
			ItemID:        line.ItemID,
			VariantID:     line.VariantID,
			NameEN:        variant.NameEN,
			NameFR:        variant.NameFR,
			VariantNameEN: variant.VariantNameEN,
			VariantNameFR: variant.VariantNameFR,
			Quantity:      line.Quantity,
			UnitPrice:     variant.UnitPrice,
			TotalPrice:    variant.UnitPrice * int64(line.Quantity),
			Status:        ItemPending,
		})
		subtotal += variant.UnitPrice * int64(line.Quantity)
	}

	addresses, err := buildAddresses(orderID, addrs)
	if err != nil {
		return nil, err
	}

	draft := &Order{
		ID:        orderID,
		UserID:    userID,
		OrderDate: now,
		Status:    StatusAwaitingPayment,
		Subtotal:  subtotal,
		Items:     items,
		Addresses: addresses,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var taxTotal int64
	if shipTo := draft.AddressOfType(AddressShipping); shipTo != nil {
		rate, err := s.taxRates.GetApplicableRate(ctx, shipTo.Country, shipTo.ProvinceState)
		if err != nil {
			// No matching rate means zero tax by contract, not a failure.
			if !apperr.IsKind(err, apperr.KindNotFound) {
				return nil, depErr(err)
			}
			rate = 0
		}
		taxTotal = taxFor(subtotal, rate)
	}
	draft.TaxTotal = taxTotal

	shippingTotal, err := s.shipping.QuoteShipping(ctx, draft)
	if err != nil {
		return nil, depErr(err)
	}
	draft.ShippingTotal = shippingTotal
	draft.GrandTotal = subtotal + taxTotal + shippingTotal

	if paymentMethodID != "" {
		draft.Payment = &Payment{
			ID:              uuid.New().String(),
			OrderID:         orderID,
			PaymentMethodID: paymentMethodID,
			Amount:          draft.GrandTotal,
		}
	}

	number, err := s.store.NextOrderNumber(ctx)
	if err != nil {
		return nil, depErr(err)
	}
	draft.OrderNumber = number

	if err := draft.checkTotals(); err != nil {
		return nil, apperr.Wrap(apperr.KindDependency, "service unavailable, try again", err)
	}

	if err := s.store.Insert(ctx, draft); err != nil {
		return nil, depErr(err)
	}

	s.publish(ctx, orderID, event.New(event.TypeOrderPlaced, event.OrderPlaced{
		OrderID:     orderID,
		UserID:      userID,
		OrderNumber: number,
		GrandTotal:  draft.GrandTotal,
		PlacedAt:    now,
	}))

	return draft, nil
}

func buildAddresses(orderID string, addrs []AddressInput) ([]Address, error) {
	seen := make(map[AddressType]bool, len(addrs))
	out := make([]Address, 0, len(addrs))
	for i, in := range addrs {
		if in.Type != AddressShipping && in.Type != AddressBilling {
			return nil, apperr.Newf(apperr.KindValidation, "address %d: unknown type %q", i+1, in.Type)
		}
		if seen[in.Type] {
			return nil, apperr.Newf(apperr.KindValidation, "duplicate %s address", in.Type)
		}
		seen[in.Type] = true
		out = append(out, Address{
			ID:            uuid.New().String(),
			OrderID:       orderID,
			Type:          in.Type,
			Recipient:     in.Recipient,
			Line1:         in.Line1,
			Line2:         in.Line2,
			City:          in.City,
			ProvinceState: in.ProvinceState,
			PostalCode:    in.PostalCode,
			Country:       in.Country,
			Phone:         in.Phone,
		})
	}
	return out, nil
}

// GetOrder returns the order only to its owner. A non-owner gets not-found,
// never forbidden, so the order's existence is not confirmed.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, depErr(err)
	}
	if o.UserID != userID {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	return o, nil
}

// GetOrderByNumber is the order-number variant of GetOrder, with the same
// ownership scoping.
func (s *Service) GetOrderByNumber(ctx context.Context, userID string, orderNumber int64) (*Order, error) {
	o, err := s.store.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, depErr(err)
	}
	if o.UserID != userID {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	return o, nil
}

// ListUserOrders returns all orders of the user.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]*Order, error) {
	out, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, depErr(err)
	}
	return out, nil
}

// ListUserOrdersByStatus returns the user's orders in the given status.
func (s *Service) ListUserOrdersByStatus(ctx context.Context, userID string, status Status) ([]*Order, error) {
	if !status.IsValid() {
		return nil, apperr.Newf(apperr.KindValidation, "unknown order status %q", status)
	}
	out, err := s.store.ListByUserAndStatus(ctx, userID, status)
	if err != nil {
		return nil, depErr(err)
	}
	return out, nil
}

// refresh re-reads the order after a mutation so callers get the stored
// view back.
func (s *Service) refresh(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, depErr(err)
	}
	return o, nil
}

// modifiableOrder loads the order and fails closed with forbidden when the
// caller does not own it.
func (s *Service) modifiableOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, depErr(err)
	}
	if o.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "order belongs to another user")
	}
	return o, nil
}

// UpdateOrderStatus moves the order-level status. Item statuses are a
// separate dimension and are never cascaded by an order-level change.
func (s *Service) UpdateOrderStatus(ctx context.Context, userID, orderID string, target Status) (*Order, error) {
	if !target.IsValid() {
		return nil, apperr.Newf(apperr.KindValidation, "unknown order status %q", target)
	}

	o, err := s.modifiableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(target) {
		return nil, apperr.Newf(apperr.KindConflict, "cannot transition order from %s to %s", o.Status, target)
	}

	now := s.now()
	if err := s.store.UpdateStatus(ctx, orderID, o.Status, target, now); err != nil {
		return nil, depErr(err)
	}

	s.publish(ctx, orderID, event.New(event.TypeOrderStatusChanged, event.OrderStatusChanged{
		OrderID:   orderID,
		UserID:    userID,
		From:      string(o.Status),
		To:        string(target),
		ChangedAt: now,
	}))

	return s.refresh(ctx, orderID)
}

// UpdateOrderItemStatus applies a single line-item transition through the
// status machine and returns the refreshed order. Cancelling an item is not
// retroactive to the order totals; no refund flow is modeled.
func (s *Service) UpdateOrderItemStatus(ctx context.Context, userID, orderID, orderItemID string, target ItemStatus, onHoldReason string) (*Order, error) {
	o, err := s.modifiableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.applyItemTransition(ctx, o, orderItemID, target, onHoldReason); err != nil {
		return nil, err
	}

	return s.refresh(ctx, orderID)
}

// BulkUpdateItemStatus applies the single-item rule independently to each
// item. One item's failure does not block the others; partial success is the
// normal outcome, reported per item.
func (s *Service) BulkUpdateItemStatus(ctx context.Context, userID, orderID string, itemIDs []string, target ItemStatus, onHoldReason string) ([]ItemResult, error) {
	o, err := s.modifiableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	results := make([]ItemResult, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		if err := s.applyItemTransition(ctx, o, itemID, target, onHoldReason); err != nil {
			results = append(results, ItemResult{ItemID: itemID, Error: apperr.Message(err)})
			continue
		}
		results = append(results, ItemResult{ItemID: itemID, OK: true})
	}
	return results, nil
}

// applyItemTransition runs the status machine for one item and persists the
// outcome with a check-and-set on the previous status, updating o in place
// on success.
func (s *Service) applyItemTransition(ctx context.Context, o *Order, orderItemID string, target ItemStatus, onHoldReason string) error {
	it := o.FindItem(orderItemID)
	if it == nil {
		return apperr.New(apperr.KindNotFound, "order item not found")
	}

	from := it.Status
	updated := *it
	now := s.now()
	if err := transitionItem(&updated, target, onHoldReason, now); err != nil {
		return err
	}

	if err := s.store.UpdateItemStatus(ctx, o.ID, &updated, from, now); err != nil {
		return depErr(err)
	}
	*it = updated

	s.publish(ctx, o.ID, event.New(event.TypeOrderItemStatusChanged, event.OrderItemStatusChanged{
		OrderID:   o.ID,
		ItemID:    orderItemID,
		From:      string(from),
		To:        string(target),
		ChangedAt: now,
	}))
	return nil
}

// RecordPayment stamps the order's payment record exactly once and moves the
// order to Paid.
func (s *Service) RecordPayment(ctx context.Context, userID, orderID, provider, providerRef string) (*Order, error) {
	o, err := s.modifiableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Payment == nil {
		return nil, apperr.New(apperr.KindValidation, "order has no payment record")
	}
	if o.Payment.PaidAt != nil {
		return nil, apperr.New(apperr.KindConflict, "order is already paid")
	}
	if !o.Status.CanTransitionTo(StatusPaid) {
		return nil, apperr.Newf(apperr.KindConflict, "cannot record payment on a %s order", o.Status)
	}

	now := s.now()
	if err := s.store.RecordPayment(ctx, orderID, provider, providerRef, o.Status, StatusPaid, now); err != nil {
		return nil, depErr(err)
	}

	s.publish(ctx, orderID, event.New(event.TypeOrderPaid, event.OrderPaid{
		OrderID:  orderID,
		UserID:   userID,
		Amount:   o.Payment.Amount,
		Provider: provider,
		PaidAt:   now,
	}))

	return s.refresh(ctx, orderID)
}

// CancelOrder is the logical deletion path: the order moves to Cancelled and
// keeps its children for audit. There is no hard delete.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.modifiableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return nil, apperr.Newf(apperr.KindConflict, "cannot cancel a %s order", o.Status)
	}

	now := s.now()
	if err := s.store.UpdateStatus(ctx, orderID, o.Status, StatusCancelled, now); err != nil {
		return nil, depErr(err)
	}

	s.publish(ctx, orderID, event.New(event.TypeOrderCancelled, event.OrderStatusChanged{
		OrderID:   orderID,
		UserID:    userID,
		From:      string(o.Status),
		To:        string(StatusCancelled),
		ChangedAt: now,
	}))

	return s.refresh(ctx, orderID)
}

func (s *Service) publish(ctx context.Context, key string, env event.Envelope) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, env); err != nil {
		log.Printf("[Order] Failed to publish %s event for order %s: %v", env.Type, key, err)
	}
}
