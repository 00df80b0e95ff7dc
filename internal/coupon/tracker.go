package coupon

import (
	"sync"

	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/safar/pickle-storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tracker holds the coupon applied to the current checkout. At most one
// coupon is applied at a time.
type Tracker struct {
	mu      sync.Mutex
	applied *models.Coupon
	log     *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	return &Tracker{log: log}
}

// Apply replaces any previously applied coupon.
func (t *Tracker) Apply(c models.Coupon) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = &c
}

func (t *Tracker) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = nil
}

// Applied returns a copy of the applied coupon or nil.
func (t *Tracker) Applied() *models.Coupon {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.applied == nil {
		return nil
	}
	c := *t.applied
	return &c
}

// Reconcile drops the applied coupon when the active promotion has ended or
// rotated to a different code, and reports whether it did. A promotion that
// keeps its code but changes its terms refreshes the applied copy.
func (t *Tracker) Reconcile(active *models.Coupon) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.applied == nil {
		return false
	}

	if active == nil || !SameCode(t.applied, active) {
		t.log.Info("applied coupon is no longer active, removing",
			zap.String("code", t.applied.Code))
		t.applied = nil
		return true
	}

	refreshed := *active
	t.applied = &refreshed
	return false
}

// Revalidate drops the applied coupon when subtotal has fallen below its
// minimum order amount, and reports whether it did.
func (t *Tracker) Revalidate(subtotal decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.applied == nil || !subtotal.LessThan(t.applied.MinOrderAmount) {
		return false
	}

	t.log.Info("cart subtotal fell below coupon minimum, removing",
		zap.String("code", t.applied.Code),
		zap.String("minimum", t.applied.MinOrderAmount.StringFixed(2)),
		zap.String("subtotal", subtotal.StringFixed(2)))
	t.applied = nil
	return true
}

// Watch keeps the tracker in step with offerBannerUpdate and cartUpdated
// events until the returned function is called.
func (t *Tracker) Watch(bus *events.Bus) func() {
	stopOffers := bus.Subscribe(events.TopicOfferBannerUpdate, func(e events.Event) {
		if update, ok := e.(events.OfferBannerUpdate); ok {
			t.Reconcile(update.Coupon)
		}
	})
	stopCart := bus.Subscribe(events.TopicCartUpdated, func(e events.Event) {
		if update, ok := e.(events.CartUpdated); ok {
			t.Revalidate(pricing.Subtotal(update.Lines))
		}
	})
	return func() {
		stopOffers()
		stopCart()
	}
}
