package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"go.uber.org/zap"
)

// Poller refreshes the active promotion on an interval and publishes an
// offerBannerUpdate whenever it changes.
type Poller struct {
	provider ActiveCouponProvider
	bus      *events.Bus
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	current *models.Coupon
	seen    bool
}

func NewPoller(provider ActiveCouponProvider, bus *events.Bus, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{provider: provider, bus: bus, interval: interval, log: log}
}

// Run polls until ctx is done. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("active coupon poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches the active coupon once, publishing when it differs from the
// last one seen. On error the last known coupon is kept.
func (p *Poller) Refresh(ctx context.Context) (*models.Coupon, error) {
	active, err := p.provider.ActiveCoupon(ctx)
	if err != nil {
		return p.Current(), err
	}

	p.mu.Lock()
	changed := !p.seen || !sameTerms(p.current, active)
	p.current = active
	p.seen = true
	p.mu.Unlock()

	if changed {
		code := ""
		if active != nil {
			code = active.Code
		}
		p.log.Info("active coupon changed", zap.String("code", code))
		p.bus.Publish(events.OfferBannerUpdate{Coupon: active})
	}
	return active, nil
}

func (p *Poller) Current() *models.Coupon {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	c := *p.current
	return &c
}

func sameTerms(a, b *models.Coupon) bool {
	if !SameCode(a, b) {
		return false
	}
	if a == nil {
		return true
	}
	return a.DiscountPercent.Equal(b.DiscountPercent) && a.MinOrderAmount.Equal(b.MinOrderAmount)
}
