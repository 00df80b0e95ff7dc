package shipping

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/safar/pickle-storefront/internal/pricing"
	"github.com/shopspring/decimal"
)

// Tracker caches the quote for the checkout being edited and recomputes it
// only when the postal code or the subtotal changes.
type Tracker struct {
	resolver *Resolver

	mu       sync.Mutex
	postal   string
	subtotal decimal.Decimal
	quote    *models.ShippingQuote
}

func NewTracker(resolver *Resolver) *Tracker {
	return &Tracker{resolver: resolver}
}

// Update returns the quote for the inputs and whether it was recomputed.
// Postal codes below the lookup length are all treated as the same unknown
// zone.
func (t *Tracker) Update(ctx context.Context, postalCode string, subtotal decimal.Decimal) (models.ShippingQuote, bool) {
	key := strings.TrimSpace(postalCode)
	if utf8.RuneCountInString(key) < MinPostalCodeLength {
		key = ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.quote != nil && t.postal == key && t.subtotal.Equal(subtotal) {
		return *t.quote, false
	}

	quote := t.resolver.Resolve(ctx, key, subtotal)
	t.postal = key
	t.subtotal = subtotal
	t.quote = &quote
	return quote, true
}

// Resolve is Update without the recompute flag.
func (t *Tracker) Resolve(ctx context.Context, postalCode string, subtotal decimal.Decimal) models.ShippingQuote {
	quote, _ := t.Update(ctx, postalCode, subtotal)
	return quote
}

// Watch re-quotes the last postal code whenever the cart changes, until the
// returned function is called. Nothing is quoted before the first Update.
func (t *Tracker) Watch(ctx context.Context, bus *events.Bus) func() {
	return bus.Subscribe(events.TopicCartUpdated, func(e events.Event) {
		update, ok := e.(events.CartUpdated)
		if !ok {
			return
		}

		t.mu.Lock()
		postal, quoted := t.postal, t.quote != nil
		t.mu.Unlock()

		if quoted {
			t.Update(ctx, postal, pricing.Subtotal(update.Lines))
		}
	})
}

// Current returns the last computed quote, if any.
func (t *Tracker) Current() (models.ShippingQuote, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quote == nil {
		return models.ShippingQuote{}, false
	}
	return *t.quote, true
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quote = nil
	t.postal = ""
	t.subtotal = decimal.Zero
}
