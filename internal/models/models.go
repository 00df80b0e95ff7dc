package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WeightOption struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

// Product is the canonical product shape. Backend payloads are normalised into
// it by the backend adapter before anything else sees them.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Price         decimal.Decimal `json:"price"`
	WeightOptions []WeightOption  `json:"weight_options,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	InStock       bool            `json:"in_stock"`
}

// PriceFor returns the unit price for the given weight option, falling back to
// the base price when the option is unknown or empty.
func (p Product) PriceFor(weight string) decimal.Decimal {
	for _, opt := range p.WeightOptions {
		if opt.Label == weight {
			return opt.Price
		}
	}
	return p.Price
}

type CartLine struct {
	ProductID            string          `json:"product_id"`
	Name                 string          `json:"name"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	Quantity             int             `json:"quantity"`
	SelectedWeightOption string          `json:"selected_weight_option"`
	ImageURL             string          `json:"image_url,omitempty"`
}

// SameItem reports whether two lines share the (product, weight) identity.
func (l CartLine) SameItem(other CartLine) bool {
	return l.ProductID == other.ProductID && l.SelectedWeightOption == other.SelectedWeightOption
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Coupon struct {
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	MinOrderAmount  decimal.Decimal `json:"min_order_amount"`
	Description     string          `json:"description,omitempty"`
}

type ShippingQuote struct {
	Cost                 decimal.Decimal `json:"cost"`
	IsFreeDelivery       bool            `json:"is_free_delivery"`
	FreeDeliveryAbove    decimal.Decimal `json:"free_delivery_above"`
	DeliveryTimeEstimate string          `json:"delivery_time_estimate,omitempty"`
	ZoneName             string          `json:"zone_name,omitempty"`
	Fallback             bool            `json:"fallback"`
}

type CustomerInfo struct {
	Email      string `json:"email" validate:"required,email"`
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Phone      string `json:"phone,omitempty"`
	Apartment  string `json:"apartment,omitempty"`
	Country    string `json:"country,omitempty"`
}

func (c CustomerInfo) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// Totals is the pricing breakdown of a draft. Values are kept at full
// precision; call Rounded before display or serialisation.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: t.Subtotal.Round(2),
		Discount: t.Discount.Round(2),
		Tax:      t.Tax.Round(2),
		Shipping: t.Shipping.Round(2),
		Total:    t.Total.Round(2),
	}
}

type OrderDraft struct {
	Lines         []CartLine    `json:"lines"`
	Customer      CustomerInfo  `json:"customer"`
	Totals        Totals        `json:"totals"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CouponCode    string        `json:"coupon_code,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)
