package pricing

import (
	"testing"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func line(price string, qty int) models.CartLine {
	return models.CartLine{ProductID: "p-" + price, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotals_NoCoupon(t *testing.T) {
	cases := []struct {
		name     string
		lines    []models.CartLine
		shipping string
	}{
		{"empty cart", nil, "0"},
		{"single line", []models.CartLine{line("150", 2)}, "50"},
		{"fractional prices", []models.CartLine{line("99.99", 3), line("0.10", 7)}, "40"},
		{"large quantity", []models.CartLine{line("249.5", 120)}, "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shipping := dec(tc.shipping)
			got := ComputeTotals(tc.lines, nil, shipping)

			s := Subtotal(tc.lines)
			want := s.Add(shipping).Add(s.Mul(dec("0.18")))
			assert.True(t, got.Discount.IsZero())
			assert.True(t, want.Equal(got.Total), "want %s got %s", want, got.Total)
		})
	}
}

func TestComputeTotals_CODScenario(t *testing.T) {
	got := ComputeTotals([]models.CartLine{line("150", 2)}, nil, dec("50"))

	assert.True(t, dec("300").Equal(got.Subtotal))
	assert.True(t, dec("54").Equal(got.Tax))
	assert.True(t, dec("404").Equal(got.Total))
	assert.Equal(t, "404.00", got.Rounded().Total.StringFixed(2))
}

func TestComputeTotals_WithCoupon(t *testing.T) {
	coupon := &models.Coupon{Code: "PICKLE10", DiscountPercent: dec("10"), MinOrderAmount: dec("200")}
	lines := []models.CartLine{line("150", 2), line("75.50", 1)}
	shipping := dec("60")

	got := ComputeTotals(lines, coupon, shipping)

	s := dec("375.50")
	discount := s.Mul(dec("10")).Div(dec("100"))
	taxable := s.Sub(discount)
	assert.True(t, discount.Equal(got.Discount))
	assert.True(t, taxable.Mul(dec("0.18")).Equal(got.Tax))
	assert.True(t, taxable.Add(shipping).Add(taxable.Mul(dec("0.18"))).Equal(got.Total))
	assert.True(t, got.Total.Equal(got.Subtotal.Sub(got.Discount).Add(got.Shipping).Add(got.Tax)))
}

func TestComputeTotals_RemovingCouponRestoresTotals(t *testing.T) {
	coupon := &models.Coupon{Code: "SPICY15", DiscountPercent: dec("15")}
	lines := []models.CartLine{line("120", 3)}
	shipping := dec("45")

	before := ComputeTotals(lines, nil, shipping)
	_ = ComputeTotals(lines, coupon, shipping)
	after := ComputeTotals(lines, nil, shipping)

	assert.Equal(t, before, after)
}

func TestComputeTotals_NoFloatDrift(t *testing.T) {
	lines := make([]models.CartLine, 0, 10)
	for i := 0; i < 10; i++ {
		lines = append(lines, line("0.1", 1))
	}
	got := ComputeTotals(lines, nil, decimal.Zero)

	assert.True(t, dec("1").Equal(got.Subtotal))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(40400), MinorUnits(dec("404")))
	assert.Equal(t, int64(12346), MinorUnits(dec("123.455")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}
