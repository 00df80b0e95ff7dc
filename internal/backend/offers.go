package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// ActiveCoupon returns the coupon attached to the current promotional banner,
// or nil when no promotion is running.
func (c *Client) ActiveCoupon(ctx context.Context) (*models.Coupon, error) {
	type wireOffer struct {
		Active bool `json:"active"`
		Coupon *struct {
			Code           string          `json:"code"`
			Discount       decimal.Decimal `json:"discount"`
			MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
			Description    string          `json:"description"`
		} `json:"coupon"`
	}

	offer, err := withRetry(ctx, c.maxRetries, func() (*wireOffer, error) {
		var resp wireOffer
		if err := c.do(ctx, http.MethodGet, "/offers/active", nil, &resp, requestOptions{}); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch active offer: %w", err)
	}

	if !offer.Active || offer.Coupon == nil || strings.TrimSpace(offer.Coupon.Code) == "" {
		return nil, nil
	}

	return &models.Coupon{
		Code:            strings.TrimSpace(offer.Coupon.Code),
		DiscountPercent: offer.Coupon.Discount,
		MinOrderAmount:  offer.Coupon.MinOrderAmount,
		Description:     offer.Coupon.Description,
	}, nil
}
