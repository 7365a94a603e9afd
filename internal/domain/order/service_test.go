package order_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/order"
	"github.com/example/commerce-core/internal/infrastructure/store/mocks"
)

type fakeCatalog struct {
	variants map[string]*order.VariantInfo
	err      error
}

func (f *fakeCatalog) GetItemVariant(ctx context.Context, itemID, variantID string) (*order.VariantInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.variants[itemID+"/"+variantID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "item variant not found")
	}
	return v, nil
}

type fakeTaxRates struct {
	rateBps int64
	err     error
}

func (f *fakeTaxRates) GetApplicableRate(ctx context.Context, country, provinceState string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rateBps, nil
}

type fakeShipping struct {
	amount int64
	err    error
}

func (f *fakeShipping) QuoteShipping(ctx context.Context, draft *order.Order) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.amount, nil
}

type testEnv struct {
	service  *order.Service
	store    *mocks.MockOrderStore
	catalog  *fakeCatalog
	taxRates *fakeTaxRates
	shipping *fakeShipping
}

func newTestOrderService() *testEnv {
	store := mocks.NewMockOrderStore()
	catalog := &fakeCatalog{variants: map[string]*order.VariantInfo{
		"item-1/var-1": {UnitPrice: 1000, Stock: 10, NameEN: "Mug", NameFR: "Tasse", VariantNameEN: "Blue", VariantNameFR: "Bleu"},
		"item-2/var-2": {UnitPrice: 2500, Stock: 5, NameEN: "Teapot", NameFR: "Theiere"},
	}}
	taxRates := &fakeTaxRates{rateBps: 1300} // 13%
	shipping := &fakeShipping{amount: 500}
	service := order.NewService(store, catalog, taxRates, shipping, nil)
	return &testEnv{service: service, store: store, catalog: catalog, taxRates: taxRates, shipping: shipping}
}

func testLines() []order.LineInput {
	return []order.LineInput{
		{ItemID: "item-1", VariantID: "var-1", Quantity: 2},
		{ItemID: "item-2", VariantID: "var-2", Quantity: 1},
	}
}

func testAddresses() []order.AddressInput {
	return []order.AddressInput{
		{Type: order.AddressShipping, Recipient: "Ada Lovelace", Line1: "1 Main St", City: "Ottawa", ProvinceState: "ON", PostalCode: "K1A 0A2", Country: "CA"},
		{Type: order.AddressBilling, Recipient: "Ada Lovelace", Line1: "1 Main St", City: "Ottawa", ProvinceState: "ON", PostalCode: "K1A 0A2", Country: "CA"},
	}
}

// ============================================
// CreateOrder Tests
// ============================================

func TestService_CreateOrder_Totals(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	// 2 x 10.00 + 1 x 25.00, 13% tax, 5.00 shipping
	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), testAddresses(), "")

	require.NoError(t, err)
	assert.Equal(t, int64(4500), o.Subtotal)
	assert.Equal(t, int64(585), o.TaxTotal)
	assert.Equal(t, int64(500), o.ShippingTotal)
	assert.Equal(t, int64(5585), o.GrandTotal)
	assert.Equal(t, order.StatusAwaitingPayment, o.Status)
	assert.Len(t, env.store.InsertCalls, 1)
}

func TestService_CreateOrder_SnapshotsCatalogData(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), testAddresses(), "")
	require.NoError(t, err)
	require.Len(t, o.Items, 2)

	first := o.Items[0]
	assert.Equal(t, "Mug", first.NameEN)
	assert.Equal(t, "Tasse", first.NameFR)
	assert.Equal(t, "Blue", first.VariantNameEN)
	assert.Equal(t, int64(1000), first.UnitPrice)
	assert.Equal(t, int64(2000), first.TotalPrice)
	assert.Equal(t, order.ItemPending, first.Status)

	// A later catalog price change must not affect the stored order
	env.catalog.variants["item-1/var-1"].UnitPrice = 9999
	stored, err := env.service.GetOrder(ctx, "user-123", o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.Items[0].UnitPrice)
}

func TestService_CreateOrder_NoShippingAddress_ZeroTax(t *testing.T) {
	env := newTestOrderService()

	o, err := env.service.CreateOrder(context.Background(), "user-123", testLines(), nil, "")

	require.NoError(t, err)
	assert.Zero(t, o.TaxTotal)
	assert.Equal(t, o.Subtotal+o.ShippingTotal, o.GrandTotal)
}

func TestService_CreateOrder_MissingTaxRate_ZeroTax(t *testing.T) {
	env := newTestOrderService()
	env.taxRates.err = apperr.New(apperr.KindNotFound, "no rate for country")

	o, err := env.service.CreateOrder(context.Background(), "user-123", testLines(), testAddresses(), "")

	require.NoError(t, err)
	assert.Zero(t, o.TaxTotal)
	assert.Equal(t, int64(5000), o.GrandTotal)
}

func TestService_CreateOrder_TaxLookupFailure(t *testing.T) {
	env := newTestOrderService()
	env.taxRates.err = errors.New("tax service timeout")

	o, err := env.service.CreateOrder(context.Background(), "user-123", testLines(), testAddresses(), "")

	assert.Nil(t, o)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	assert.Empty(t, env.store.InsertCalls)
}

func TestService_CreateOrder_EmptyLines(t *testing.T) {
	env := newTestOrderService()

	o, err := env.service.CreateOrder(context.Background(), "user-123", nil, nil, "")

	assert.Nil(t, o)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestService_CreateOrder_UnknownVariant_NamesLine(t *testing.T) {
	env := newTestOrderService()
	lines := append(testLines(), order.LineInput{ItemID: "item-9", VariantID: "var-9", Quantity: 1})

	o, err := env.service.CreateOrder(context.Background(), "user-123", lines, nil, "")

	assert.Nil(t, o)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, apperr.Message(err), "line 3")
}

func TestService_CreateOrder_InsufficientStock_NamesLine(t *testing.T) {
	env := newTestOrderService()
	lines := []order.LineInput{{ItemID: "item-2", VariantID: "var-2", Quantity: 6}}

	o, err := env.service.CreateOrder(context.Background(), "user-123", lines, nil, "")

	assert.Nil(t, o)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, apperr.Message(err), "line 1")
	assert.Contains(t, apperr.Message(err), "stock")
}

func TestService_CreateOrder_NonPositiveQuantity(t *testing.T) {
	env := newTestOrderService()
	lines := []order.LineInput{{ItemID: "item-1", VariantID: "var-1", Quantity: 0}}

	_, err := env.service.CreateOrder(context.Background(), "user-123", lines, nil, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestService_CreateOrder_DuplicateAddressType(t *testing.T) {
	env := newTestOrderService()
	addrs := []order.AddressInput{
		{Type: order.AddressShipping, Country: "CA"},
		{Type: order.AddressShipping, Country: "CA"},
	}

	_, err := env.service.CreateOrder(context.Background(), "user-123", testLines(), addrs, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestService_CreateOrder_WithPaymentMethod(t *testing.T) {
	env := newTestOrderService()

	o, err := env.service.CreateOrder(context.Background(), "user-123", testLines(), testAddresses(), "pm-1")

	require.NoError(t, err)
	require.NotNil(t, o.Payment)
	assert.Equal(t, "pm-1", o.Payment.PaymentMethodID)
	assert.Equal(t, o.GrandTotal, o.Payment.Amount)
	assert.Nil(t, o.Payment.PaidAt)
}

func TestService_CreateOrder_PersistenceFailure_NothingVisible(t *testing.T) {
	env := newTestOrderService()
	env.store.InsertErr = errors.New("deadlock detected")

	o, err := env.service.CreateOrder(context.Background(), "user-123", testLines(), testAddresses(), "")

	assert.Nil(t, o)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))

	orders, err := env.service.ListUserOrders(context.Background(), "user-123")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestService_CreateOrder_ConcurrentNumbersAreDistinct(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
			if assert.NoError(t, err) {
				numbers <- o.OrderNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for num := range numbers {
		assert.False(t, seen[num], "duplicate order number %d", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

// ============================================
// Read Tests
// ============================================

func TestService_GetOrder_OwnershipIsolation(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-b", testLines(), nil, "")
	require.NoError(t, err)

	// Another user gets not-found, never forbidden, never the data
	got, err := env.service.GetOrder(ctx, "user-a", o.ID)
	assert.Nil(t, got)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	got, err = env.service.GetOrderByNumber(ctx, "user-a", o.OrderNumber)
	assert.Nil(t, got)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_ListUserOrdersByStatus(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o1, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)
	_, err = env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	_, err = env.service.CancelOrder(ctx, "user-123", o1.ID)
	require.NoError(t, err)

	cancelled, err := env.service.ListUserOrdersByStatus(ctx, "user-123", order.StatusCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, o1.ID, cancelled[0].ID)

	_, err = env.service.ListUserOrdersByStatus(ctx, "user-123", order.Status("bogus"))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

// ============================================
// Order Status Tests
// ============================================

func TestService_UpdateOrderStatus_NonOwnerForbidden(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-b", testLines(), nil, "")
	require.NoError(t, err)

	_, err = env.service.UpdateOrderStatus(ctx, "user-a", o.ID, order.StatusCancelled)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestService_UpdateOrderStatus_InvalidTransition(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	// AwaitingPayment cannot jump straight to Fulfilled
	_, err = env.service.UpdateOrderStatus(ctx, "user-123", o.ID, order.StatusFulfilled)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	stored, err := env.service.GetOrder(ctx, "user-123", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingPayment, stored.Status)
}

func TestService_UpdateOrderStatus_NoItemCascade(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	updated, err := env.service.UpdateOrderStatus(ctx, "user-123", o.ID, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, updated.Status)

	// Item statuses are an independent dimension
	for _, it := range updated.Items {
		assert.Equal(t, order.ItemPending, it.Status)
	}
}

// ============================================
// Item Status Tests
// ============================================

func TestService_UpdateOrderItemStatus_FullPath(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)
	itemID := o.Items[0].ID

	// Pending cannot go straight to Delivered
	_, err = env.service.UpdateOrderItemStatus(ctx, "user-123", o.ID, itemID, order.ItemDelivered, "")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	for _, target := range []order.ItemStatus{order.ItemProcessing, order.ItemShipped, order.ItemDelivered} {
		updated, err := env.service.UpdateOrderItemStatus(ctx, "user-123", o.ID, itemID, target, "")
		require.NoError(t, err, "transition to %s", target)
		assert.Equal(t, target, updated.FindItem(itemID).Status)
	}

	final, err := env.service.GetOrder(ctx, "user-123", o.ID)
	require.NoError(t, err)
	assert.NotNil(t, final.FindItem(itemID).DeliveredAt)
}

func TestService_UpdateOrderItemStatus_TotalsUnchangedByCancellation(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), testAddresses(), "")
	require.NoError(t, err)

	// Cancellation is not retroactive: no refund flow is modeled
	updated, err := env.service.UpdateOrderItemStatus(ctx, "user-123", o.ID, o.Items[0].ID, order.ItemCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, o.Subtotal, updated.Subtotal)
	assert.Equal(t, o.GrandTotal, updated.GrandTotal)
}

func TestService_UpdateOrderItemStatus_UnknownItem(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	_, err = env.service.UpdateOrderItemStatus(ctx, "user-123", o.ID, "no-such-item", order.ItemProcessing, "")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestService_BulkUpdateItemStatus_PartialSuccess(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	// Move the second item to Shipped so Processing is no longer legal for it
	_, err = env.service.UpdateOrderItemStatus(ctx, "user-123", o.ID, o.Items[1].ID, order.ItemProcessing, "")
	require.NoError(t, err)
	_, err = env.service.UpdateOrderItemStatus(ctx, "user-123", o.ID, o.Items[1].ID, order.ItemShipped, "")
	require.NoError(t, err)

	results, err := env.service.BulkUpdateItemStatus(ctx, "user-123", o.ID,
		[]string{o.Items[0].ID, o.Items[1].ID, "no-such-item"}, order.ItemProcessing, "")

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.NotEmpty(t, results[1].Error)
	assert.False(t, results[2].OK)
}

// ============================================
// Payment Tests
// ============================================

func TestService_RecordPayment(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), testAddresses(), "pm-1")
	require.NoError(t, err)

	paid, err := env.service.RecordPayment(ctx, "user-123", o.ID, "stripe", "ch_123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	require.NotNil(t, paid.Payment.PaidAt)
	assert.Equal(t, paid.GrandTotal, paid.Payment.Amount)

	// paidAt is stamped exactly once
	_, err = env.service.RecordPayment(ctx, "user-123", o.ID, "stripe", "ch_456")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestService_RecordPayment_NoPaymentRecord(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	_, err = env.service.RecordPayment(ctx, "user-123", o.ID, "stripe", "ch_123")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestService_RecordPayment_CancelledOrder(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "pm-1")
	require.NoError(t, err)
	_, err = env.service.CancelOrder(ctx, "user-123", o.ID)
	require.NoError(t, err)

	_, err = env.service.RecordPayment(ctx, "user-123", o.ID, "stripe", "ch_123")
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

// ============================================
// Cancel Tests
// ============================================

func TestService_CancelOrder(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)

	cancelled, err := env.service.CancelOrder(ctx, "user-123", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	// Cancellation is terminal and keeps the children for audit
	_, err = env.service.CancelOrder(ctx, "user-123", o.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Len(t, cancelled.Items, 2)
}

func TestService_CancelOrder_NumberIsNeverReused(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o1, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)
	_, err = env.service.CancelOrder(ctx, "user-123", o1.ID)
	require.NoError(t, err)

	o2, err := env.service.CreateOrder(ctx, "user-123", testLines(), nil, "")
	require.NoError(t, err)
	assert.Greater(t, o2.OrderNumber, o1.OrderNumber)
}

// ============================================
// Invariant Tests
// ============================================

func TestOrder_TotalsInvariantHolds(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		lines := []order.LineInput{{ItemID: "item-1", VariantID: "var-1", Quantity: i}}
		o, err := env.service.CreateOrder(ctx, fmt.Sprintf("user-%d", i), lines, testAddresses(), "")
		require.NoError(t, err)

		var itemSum int64
		for _, it := range o.Items {
			assert.Equal(t, it.UnitPrice*int64(it.Quantity), it.TotalPrice)
			itemSum += it.TotalPrice
		}
		assert.Equal(t, itemSum, o.Subtotal)
		assert.Equal(t, o.Subtotal+o.TaxTotal+o.ShippingTotal, o.GrandTotal)
	}
}

// ============================================
// Store Failure Tests
// ============================================

func TestService_GetOrder_StoreFailure(t *testing.T) {
	env := newTestOrderService()
	env.store.GetErr = errors.New("pq: connection refused host=db port=5432")

	_, err := env.service.GetOrder(context.Background(), "user-123", "order-1")

	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	// The driver's error text never reaches the caller
	assert.Equal(t, "service unavailable, try again", apperr.Message(err))
}

func TestService_GetOrderByNumber_StoreFailure(t *testing.T) {
	env := newTestOrderService()
	env.store.GetErr = errors.New("pq: connection refused host=db port=5432")

	_, err := env.service.GetOrderByNumber(context.Background(), "user-123", 1000)

	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	assert.Equal(t, "service unavailable, try again", apperr.Message(err))
}

func TestService_ListUserOrders_StoreFailure(t *testing.T) {
	env := newTestOrderService()
	env.store.ListErr = errors.New("pq: connection refused host=db port=5432")

	_, err := env.service.ListUserOrders(context.Background(), "user-123")

	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
	assert.Equal(t, "service unavailable, try again", apperr.Message(err))

	_, err = env.service.ListUserOrdersByStatus(context.Background(), "user-123", order.StatusCancelled)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))
}

func TestService_RecordPayment_StatusFailureLeavesOrderUnpaid(t *testing.T) {
	env := newTestOrderService()
	ctx := context.Background()

	o, err := env.service.CreateOrder(ctx, "user-123", testLines(), testAddresses(), "pm-1")
	require.NoError(t, err)

	env.store.RecordPaymentStatusErr = errors.New("pq: connection reset")
	_, err = env.service.RecordPayment(ctx, "user-123", o.ID, "stripe", "ch_123")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindDependency))

	// The payment stamp and the status change apply together or not at all
	env.store.RecordPaymentStatusErr = nil
	stored, err := env.service.GetOrder(ctx, "user-123", o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingPayment, stored.Status)
	assert.Nil(t, stored.Payment.PaidAt)

	// The retry succeeds cleanly
	paid, err := env.service.RecordPayment(ctx, "user-123", o.ID, "stripe", "ch_123")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, paid.Status)
	require.NotNil(t, paid.Payment.PaidAt)
}
