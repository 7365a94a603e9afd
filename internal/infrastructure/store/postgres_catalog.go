package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/order"
)

// PostgresCatalog implements order.Catalog over the item_variants table.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (pc *PostgresCatalog) GetItemVariant(ctx context.Context, itemID, variantID string) (*order.VariantInfo, error) {
	var v order.VariantInfo
	err := pc.db.QueryRowContext(ctx,
		`SELECT name_en, name_fr, variant_name_en, variant_name_fr, unit_price, stock
		 FROM item_variants WHERE item_id = $1 AND variant_id = $2`,
		itemID, variantID,
	).Scan(&v.NameEN, &v.NameFR, &v.VariantNameEN, &v.VariantNameFR, &v.UnitPrice, &v.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "item variant not found")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// PostgresTaxRates implements order.TaxRates over the tax_rates table. The
// most specific row wins: (country, province) before (country, '').
type PostgresTaxRates struct {
	db *sql.DB
}

func NewPostgresTaxRates(db *sql.DB) *PostgresTaxRates {
	return &PostgresTaxRates{db: db}
}

func (pt *PostgresTaxRates) GetApplicableRate(ctx context.Context, country, provinceState string) (int64, error) {
	var rateBps int64
	err := pt.db.QueryRowContext(ctx,
		`SELECT rate_bps FROM tax_rates
		 WHERE country = $1 AND province_state IN ($2, '')
		 ORDER BY province_state DESC LIMIT 1`,
		country, provinceState,
	).Scan(&rateBps)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.New(apperr.KindNotFound, "no tax rate configured")
	}
	if err != nil {
		return 0, err
	}
	return rateBps, nil
}
