package email

import (
	"fmt"
	"strings"
)

// OrderItem represents a line item for email purposes
type OrderItem struct {
	Name      string
	Quantity  int
	UnitPrice int64 // minor units
}

// BuildOrderConfirmationBody builds the HTML body for order confirmation email
func BuildOrderConfirmationBody(orderNumber int64, grandTotal int64, items []OrderItem) string {
	var itemsHTML strings.Builder
	for _, item := range items {
		itemsHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			item.Name,
			item.Quantity,
			FormatMoney(item.UnitPrice),
			FormatMoney(item.UnitPrice*int64(item.Quantity)),
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 24px;">Thank you for your order</h1>

	<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
		<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
		<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">#%d</p>
	</div>

	<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="border-bottom: 2px solid #333;">
				<th style="padding: 12px; text-align: left;">Item</th>
				<th style="padding: 12px; text-align: center;">Qty</th>
				<th style="padding: 12px; text-align: right;">Price</th>
				<th style="padding: 12px; text-align: right;">Total</th>
			</tr>
		</thead>
		<tbody>
			%s
		</tbody>
	</table>

	<p style="font-size: 18px; font-weight: bold; text-align: right;">Grand total: %s</p>
</body>
</html>`,
		orderNumber,
		itemsHTML.String(),
		FormatMoney(grandTotal),
	)
}

// BuildPaymentReceiptBody builds the HTML body for a payment receipt email
func BuildPaymentReceiptBody(orderID string, amount int64, provider string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 24px;">Payment received</h1>
	<p>We received your payment of <strong>%s</strong> via %s for order <code>%s</code>.</p>
</body>
</html>`,
		FormatMoney(amount), provider, orderID,
	)
}

// FormatMoney renders minor units as a dollar amount.
func FormatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
}
