package order

import "context"

// FlatRateShipping quotes a single flat rate, waived above a subtotal
// threshold. FreeAbove <= 0 disables the waiver.
type FlatRateShipping struct {
	Rate      int64
	FreeAbove int64
}

func (f FlatRateShipping) QuoteShipping(ctx context.Context, draft *Order) (int64, error) {
	if f.FreeAbove > 0 && draft.Subtotal >= f.FreeAbove {
		return 0, nil
	}
	return f.Rate, nil
}
