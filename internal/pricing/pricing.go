package pricing

import (
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// TaxRate is the flat GST rate applied to the discounted subtotal.
var TaxRate = decimal.RequireFromString("0.18")

var hundred = decimal.NewFromInt(100)

func Subtotal(lines []models.CartLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	return subtotal
}

func Discount(subtotal decimal.Decimal, coupon *models.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}
	return subtotal.Mul(coupon.DiscountPercent).Div(hundred)
}

// ComputeTotals prices a cart. Tax is charged on the discounted amount and
// shipping is added after tax. No rounding happens here.
func ComputeTotals(lines []models.CartLine, coupon *models.Coupon, shipping decimal.Decimal) models.Totals {
	subtotal := Subtotal(lines)
	discount := Discount(subtotal, coupon)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(TaxRate)

	return models.Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    taxable.Add(shipping).Add(tax),
	}
}

// MinorUnits converts an amount to the smallest currency unit (paise),
// rounding half away from zero at two decimal places.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(hundred).IntPart()
}
