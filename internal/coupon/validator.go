package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ActiveCouponProvider supplies the single promotion that is active store
// wide. A nil coupon with a nil error means no promotion is running.
type ActiveCouponProvider interface {
	ActiveCoupon(ctx context.Context) (*models.Coupon, error)
}

var (
	ErrCouponRejected = errors.New("coupon rejected")

	ErrEmptyCode         = fmt.Errorf("%w: please enter a coupon code", ErrCouponRejected)
	ErrCouponNotFound    = fmt.Errorf("%w: no active coupon", ErrCouponRejected)
	ErrCouponMismatch    = fmt.Errorf("%w: invalid coupon code", ErrCouponRejected)
	ErrCouponUnavailable = fmt.Errorf("%w: could not check coupon, try again", ErrCouponRejected)
)

// MinimumNotMetError rejects a coupon whose minimum order amount exceeds the
// cart subtotal.
type MinimumNotMetError struct {
	Code    string
	Minimum decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("coupon %s requires a minimum order of %s", e.Code, e.Minimum.StringFixed(2))
}

func (e *MinimumNotMetError) Unwrap() error {
	return ErrCouponRejected
}

type Validator struct {
	provider ActiveCouponProvider
	log      *zap.Logger
}

func NewValidator(provider ActiveCouponProvider, log *zap.Logger) *Validator {
	return &Validator{provider: provider, log: log}
}

// Validate checks code against the active coupon. The candidate is trimmed and
// upper-cased before comparison.
func (v *Validator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*models.Coupon, error) {
	candidate := normalizeCode(code)
	if candidate == "" {
		return nil, ErrEmptyCode
	}

	active, err := v.provider.ActiveCoupon(ctx)
	if err != nil {
		v.log.Warn("active coupon lookup failed", zap.String("code", candidate), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCouponUnavailable, err)
	}
	if active == nil {
		return nil, ErrCouponNotFound
	}

	if candidate != normalizeCode(active.Code) {
		return nil, ErrCouponMismatch
	}

	if subtotal.LessThan(active.MinOrderAmount) {
		return nil, &MinimumNotMetError{Code: active.Code, Minimum: active.MinOrderAmount}
	}

	applied := *active
	v.log.Debug("coupon validated",
		zap.String("code", applied.Code),
		zap.String("discount_percent", applied.DiscountPercent.String()))
	return &applied, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SameCode reports whether two coupons carry the same code, ignoring case.
func SameCode(a, b *models.Coupon) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return normalizeCode(a.Code) == normalizeCode(b.Code)
}
