package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/order"
)

// PostgresOrderStore implements order.Store on PostgreSQL. Order creation is
// a single transaction over the order and all children; status updates are
// check-and-set against the previously read status.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// NextOrderNumber allocates from the order_numbers sequence. Sequence values
// are never reused, so cancelled orders keep their number.
func (ps *PostgresOrderStore) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := ps.db.QueryRowContext(ctx, `SELECT nextval('order_numbers')`).Scan(&n)
	return n, err
}

func (ps *PostgresOrderStore) Insert(ctx context.Context, o *order.Order) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, order_number, order_date, status, subtotal, tax_total, shipping_total, grand_total, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.UserID, o.OrderNumber, o.OrderDate, o.Status,
		o.Subtotal, o.TaxTotal, o.ShippingTotal, o.GrandTotal,
		o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, item_id, variant_id, name_en, name_fr, variant_name_en, variant_name_fr, quantity, unit_price, total_price, status, delivered_at, on_hold_reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			it.ID, it.OrderID, it.ItemID, it.VariantID,
			it.NameEN, it.NameFR, it.VariantNameEN, it.VariantNameFR,
			it.Quantity, it.UnitPrice, it.TotalPrice, it.Status,
			it.DeliveredAt, it.OnHoldReason,
		)
		if err != nil {
			return err
		}
	}

	for _, a := range o.Addresses {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_addresses (id, order_id, type, recipient, line1, line2, city, province_state, postal_code, country, phone)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			a.ID, a.OrderID, a.Type, a.Recipient, a.Line1, a.Line2,
			a.City, a.ProvinceState, a.PostalCode, a.Country, a.Phone,
		)
		if err != nil {
			return err
		}
	}

	if o.Payment != nil {
		p := o.Payment
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_payments (id, order_id, payment_method_id, amount, provider, provider_ref, paid_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.OrderID, p.PaymentMethodID, p.Amount, p.Provider, p.ProviderRef, p.PaidAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (ps *PostgresOrderStore) Get(ctx context.Context, orderID string) (*order.Order, error) {
	row := ps.db.QueryRowContext(ctx,
		`SELECT id, user_id, order_number, order_date, status, subtotal, tax_total, shipping_total, grand_total, notes, created_at, updated_at
		 FROM orders WHERE id = $1`,
		orderID,
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := ps.loadChildren(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (ps *PostgresOrderStore) GetByNumber(ctx context.Context, orderNumber int64) (*order.Order, error) {
	var id string
	err := ps.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE order_number = $1`, orderNumber).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return ps.Get(ctx, id)
}

func (ps *PostgresOrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return ps.list(ctx,
		`SELECT id, user_id, order_number, order_date, status, subtotal, tax_total, shipping_total, grand_total, notes, created_at, updated_at
		 FROM orders WHERE user_id = $1 ORDER BY order_number DESC`,
		userID,
	)
}

func (ps *PostgresOrderStore) ListByUserAndStatus(ctx context.Context, userID string, status order.Status) ([]*order.Order, error) {
	return ps.list(ctx,
		`SELECT id, user_id, order_number, order_date, status, subtotal, tax_total, shipping_total, grand_total, notes, created_at, updated_at
		 FROM orders WHERE user_id = $1 AND status = $2 ORDER BY order_number DESC`,
		userID, status,
	)
}

func (ps *PostgresOrderStore) list(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := ps.loadChildren(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// UpdateStatus is conditional on the stored status still being from. Zero
// rows affected means another writer got there first.
func (ps *PostgresOrderStore) UpdateStatus(ctx context.Context, orderID string, from, to order.Status, at time.Time) error {
	res, err := ps.db.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		orderID, from, to, at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "order status changed concurrently")
	}
	return nil
}

// UpdateItemStatus writes the post-transition item fields conditional on the
// status the caller read. Zero rows affected means a concurrent transition
// won.
func (ps *PostgresOrderStore) UpdateItemStatus(ctx context.Context, orderID string, it *order.Item, from order.ItemStatus, at time.Time) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE order_items SET status = $4, delivered_at = $5, on_hold_reason = $6
		 WHERE id = $1 AND order_id = $2 AND status = $3`,
		it.ID, orderID, from, it.Status, it.DeliveredAt, it.OnHoldReason,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "item status changed concurrently")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET updated_at = $2 WHERE id = $1`, orderID, at); err != nil {
		return err
	}

	return tx.Commit()
}

// RecordPayment stamps paid_at exactly once and moves the order status in
// the same transaction, so a failed status update rolls the stamp back.
func (ps *PostgresOrderStore) RecordPayment(ctx context.Context, orderID, provider, providerRef string, from, to order.Status, at time.Time) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE order_payments SET provider = $2, provider_ref = $3, paid_at = $4
		 WHERE order_id = $1 AND paid_at IS NULL`,
		orderID, provider, providerRef, at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "payment is already recorded")
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		orderID, from, to, at,
	)
	if err != nil {
		return err
	}
	n, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, "order status changed concurrently")
	}

	return tx.Commit()
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.OrderDate, &o.Status,
		&o.Subtotal, &o.TaxTotal, &o.ShippingTotal, &o.GrandTotal,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (ps *PostgresOrderStore) loadChildren(ctx context.Context, o *order.Order) error {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT id, order_id, item_id, variant_id, name_en, name_fr, variant_name_en, variant_name_fr, quantity, unit_price, total_price, status, delivered_at, on_hold_reason
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it order.Item
		var deliveredAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.VariantID,
			&it.NameEN, &it.NameFR, &it.VariantNameEN, &it.VariantNameFR,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.Status,
			&deliveredAt, &it.OnHoldReason); err != nil {
			return err
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			it.DeliveredAt = &t
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	addrRows, err := ps.db.QueryContext(ctx,
		`SELECT id, order_id, type, recipient, line1, line2, city, province_state, postal_code, country, phone
		 FROM order_addresses WHERE order_id = $1 ORDER BY type`,
		o.ID,
	)
	if err != nil {
		return err
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var a order.Address
		if err := addrRows.Scan(&a.ID, &a.OrderID, &a.Type, &a.Recipient, &a.Line1, &a.Line2,
			&a.City, &a.ProvinceState, &a.PostalCode, &a.Country, &a.Phone); err != nil {
			return err
		}
		o.Addresses = append(o.Addresses, a)
	}
	if err := addrRows.Err(); err != nil {
		return err
	}

	var p order.Payment
	var paidAt sql.NullTime
	err = ps.db.QueryRowContext(ctx,
		`SELECT id, order_id, payment_method_id, amount, provider, provider_ref, paid_at
		 FROM order_payments WHERE order_id = $1`,
		o.ID,
	).Scan(&p.ID, &p.OrderID, &p.PaymentMethodID, &p.Amount, &p.Provider, &p.ProviderRef, &paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	o.Payment = &p
	return nil
}
