package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MinPostalCodeLength is the shortest postal code worth a zone lookup.
const MinPostalCodeLength = 6

var DefaultFallbackCost = decimal.NewFromInt(200)

var ErrPostalCodeTooShort = errors.New("postal code too short for a zone lookup")

// ZoneLookup quotes shipping for a postal code from the backend zone table.
type ZoneLookup interface {
	CalculateShipping(ctx context.Context, postalCode string, cartTotal decimal.Decimal) (*models.ShippingQuote, error)
}

type Resolver struct {
	lookup       ZoneLookup
	fallbackCost decimal.Decimal
	log          *zap.Logger
	group        singleflight.Group
}

func NewResolver(lookup ZoneLookup, fallbackCost decimal.Decimal, log *zap.Logger) *Resolver {
	if fallbackCost.IsNegative() {
		fallbackCost = DefaultFallbackCost
	}
	return &Resolver{lookup: lookup, fallbackCost: fallbackCost, log: log}
}

// Fallback is the quote used whenever the zone is unknown.
func (r *Resolver) Fallback() models.ShippingQuote {
	return models.ShippingQuote{
		Cost:     r.fallbackCost,
		Fallback: true,
	}
}

// Lookup asks the zone table for a quote and reports failures to the caller.
// Identical lookups in flight at the same time share one backend call.
func (r *Resolver) Lookup(ctx context.Context, postalCode string, subtotal decimal.Decimal) (models.ShippingQuote, error) {
	postalCode = strings.TrimSpace(postalCode)
	if utf8.RuneCountInString(postalCode) < MinPostalCodeLength {
		return models.ShippingQuote{}, ErrPostalCodeTooShort
	}

	key := postalCode + "|" + subtotal.String()
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.lookup.CalculateShipping(ctx, postalCode, subtotal)
	})
	if err != nil {
		return models.ShippingQuote{}, fmt.Errorf("lookup shipping zone for %s: %w", postalCode, err)
	}
	if shared {
		r.log.Debug("shared in-flight shipping lookup", zap.String("postal_code", postalCode))
	}

	quote := *v.(*models.ShippingQuote)
	return normalize(quote, subtotal), nil
}

// Resolve always produces a quote. Short postal codes and failed lookups fall
// back to the fixed fallback cost.
func (r *Resolver) Resolve(ctx context.Context, postalCode string, subtotal decimal.Decimal) models.ShippingQuote {
	quote, err := r.Lookup(ctx, postalCode, subtotal)
	switch {
	case errors.Is(err, ErrPostalCodeTooShort):
		return r.Fallback()
	case err != nil:
		r.log.Warn("shipping lookup failed, using fallback cost",
			zap.String("postal_code", postalCode),
			zap.String("fallback_cost", r.fallbackCost.StringFixed(2)),
			zap.Error(err))
		return r.Fallback()
	}
	return quote
}

// normalize makes the free delivery flag agree with the threshold for the
// subtotal actually being priced.
func normalize(q models.ShippingQuote, subtotal decimal.Decimal) models.ShippingQuote {
	if q.FreeDeliveryAbove.IsPositive() {
		q.IsFreeDelivery = subtotal.GreaterThanOrEqual(q.FreeDeliveryAbove)
	}
	if q.IsFreeDelivery {
		q.Cost = decimal.Zero
	}
	q.Fallback = false
	return q
}
