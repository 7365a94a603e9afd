package mocks

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/order"
)

// MockOrderStore is an in-memory implementation of order.Store for testing.
// Order numbers come from an atomic counter, matching the serializable
// allocation the real store gets from a database sequence.
type MockOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order

	counter atomic.Int64

	// For tracking calls and injecting failures in tests
	InsertCalls        []string
	InsertErr          error
	NextOrderNumberErr error
	GetErr             error
	ListErr            error
	// RecordPaymentStatusErr fails RecordPayment after the payment check
	// passes, so tests can assert the stamp is not applied on its own.
	RecordPaymentStatusErr error
}

// NewMockOrderStore creates a new MockOrderStore.
func NewMockOrderStore() *MockOrderStore {
	m := &MockOrderStore{
		orders: make(map[string]*order.Order),
	}
	m.counter.Store(999)
	return m
}

func (m *MockOrderStore) NextOrderNumber(ctx context.Context) (int64, error) {
	if m.NextOrderNumberErr != nil {
		return 0, m.NextOrderNumberErr
	}
	return m.counter.Add(1), nil
}

func (m *MockOrderStore) Insert(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertCalls = append(m.InsertCalls, o.ID)
	if m.InsertErr != nil {
		return m.InsertErr
	}

	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MockOrderStore) Get(ctx context.Context, orderID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	return cloneOrder(o), nil
}

func (m *MockOrderStore) GetByNumber(ctx context.Context, orderNumber int64) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, o := range m.orders {
		if o.OrderNumber == orderNumber {
			return cloneOrder(o), nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "order not found")
}

func (m *MockOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })
	return out, nil
}

func (m *MockOrderStore) ListByUserAndStatus(ctx context.Context, userID string, status order.Status) ([]*order.Order, error) {
	all, err := m.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*order.Order
	for _, o := range all {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderStore) UpdateStatus(ctx context.Context, orderID string, from, to order.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found")
	}
	if o.Status != from {
		return apperr.New(apperr.KindConflict, "order status changed concurrently")
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func (m *MockOrderStore) UpdateItemStatus(ctx context.Context, orderID string, it *order.Item, from order.ItemStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found")
	}
	stored := o.FindItem(it.ID)
	if stored == nil {
		return apperr.New(apperr.KindNotFound, "order item not found")
	}
	if stored.Status != from {
		return apperr.New(apperr.KindConflict, "item status changed concurrently")
	}
	*stored = *it
	o.UpdatedAt = at
	return nil
}

func (m *MockOrderStore) RecordPayment(ctx context.Context, orderID, provider, providerRef string, from, to order.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "order not found")
	}
	if o.Payment == nil || o.Payment.PaidAt != nil {
		return apperr.New(apperr.KindConflict, "payment is already recorded")
	}
	if m.RecordPaymentStatusErr != nil {
		return m.RecordPaymentStatusErr
	}
	if o.Status != from {
		return apperr.New(apperr.KindConflict, "order status changed concurrently")
	}
	stamped := at
	o.Payment.Provider = provider
	o.Payment.ProviderRef = providerRef
	o.Payment.PaidAt = &stamped
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func cloneOrder(o *order.Order) *order.Order {
	copied := *o
	copied.Items = append([]order.Item(nil), o.Items...)
	copied.Addresses = append([]order.Address(nil), o.Addresses...)
	if o.Payment != nil {
		p := *o.Payment
		copied.Payment = &p
	}
	return &copied
}
