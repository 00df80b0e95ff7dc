package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// CalculateShipping asks the backend's zone table for a quote.
func (c *Client) CalculateShipping(ctx context.Context, postalCode string, cartTotal decimal.Decimal) (*models.ShippingQuote, error) {
	req := struct {
		Pincode   string      `json:"pincode"`
		CartTotal json.Number `json:"cartTotal"`
	}{
		Pincode:   postalCode,
		CartTotal: amount(cartTotal),
	}

	type zoneQuote struct {
		ZoneName          string          `json:"zoneName"`
		ShippingCost      decimal.Decimal `json:"shippingCost"`
		IsFreeDelivery    bool            `json:"isFreeDelivery"`
		FreeDeliveryAbove decimal.Decimal `json:"freeDeliveryAbove"`
		DeliveryTime      string          `json:"deliveryTime"`
	}

	quote, err := withRetry(ctx, c.maxRetries, func() (*zoneQuote, error) {
		var resp struct {
			Success bool      `json:"success"`
			Data    zoneQuote `json:"data"`
			Message string    `json:"message"`
		}
		if err := c.do(ctx, http.MethodPost, "/shipping/calculate", req, &resp, requestOptions{}); err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("no shipping zone for %s: %s", postalCode, resp.Message)
		}
		return &resp.Data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculate shipping: %w", err)
	}

	return &models.ShippingQuote{
		Cost:                 quote.ShippingCost,
		IsFreeDelivery:       quote.IsFreeDelivery,
		FreeDeliveryAbove:    quote.FreeDeliveryAbove,
		DeliveryTimeEstimate: quote.DeliveryTime,
		ZoneName:             quote.ZoneName,
	}, nil
}
