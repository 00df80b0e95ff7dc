package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// PaymentIntent is the gateway order the hosted widget is opened against.
type PaymentIntent struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
	KeyID          string
}

// PaymentVerification is what the widget hands back after a successful
// payment, forwarded verbatim for signature verification.
type PaymentVerification struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

var ErrVerificationRejected = errors.New("payment verification rejected")

type orderItemPayload struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
	Weight    string      `json:"weight,omitempty"`
	Image     string      `json:"image,omitempty"`
}

type createOrderPayload struct {
	Items         []orderItemPayload  `json:"items"`
	CustomerInfo  models.CustomerInfo `json:"customerInfo"`
	Subtotal      json.Number         `json:"subtotal"`
	Discount      json.Number         `json:"discount"`
	Tax           json.Number         `json:"tax"`
	Shipping      json.Number         `json:"shipping"`
	Total         json.Number         `json:"total"`
	PaymentMethod string              `json:"paymentMethod"`
	CouponCode    string              `json:"couponCode,omitempty"`
}

type wireOrder struct {
	MongoID       string          `json:"_id"`
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"paymentStatus"`
	PaymentMethod string          `json:"paymentMethod"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (w wireOrder) toModel() *models.Order {
	id := w.MongoID
	if id == "" {
		id = w.ID
	}
	return &models.Order{
		ID:            id,
		OrderNumber:   w.OrderNumber,
		Status:        w.Status,
		PaymentStatus: w.PaymentStatus,
		PaymentMethod: models.PaymentMethod(w.PaymentMethod),
		Total:         w.Total,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// OrderPayload renders a draft in the backend's wire shape with all amounts
// rounded to two places.
func OrderPayload(draft models.OrderDraft) any {
	totals := draft.Totals.Rounded()
	items := make([]orderItemPayload, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		items = append(items, orderItemPayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     amount(line.UnitPrice),
			Quantity:  line.Quantity,
			Weight:    line.SelectedWeightOption,
			Image:     line.ImageURL,
		})
	}

	return createOrderPayload{
		Items:         items,
		CustomerInfo:  draft.Customer,
		Subtotal:      amount(totals.Subtotal),
		Discount:      amount(totals.Discount),
		Tax:           amount(totals.Tax),
		Shipping:      amount(totals.Shipping),
		Total:         amount(totals.Total),
		PaymentMethod: string(draft.PaymentMethod),
		CouponCode:    draft.CouponCode,
	}
}

// CreateOrder posts a draft. idempotencyKey lets the backend collapse
// resubmissions of the same draft.
func (c *Client) CreateOrder(ctx context.Context, draft models.OrderDraft, idempotencyKey string) (*models.Order, error) {
	var resp struct {
		Order *wireOrder `json:"order"`
		Data  *wireOrder `json:"data"`
	}

	err := c.do(ctx, http.MethodPost, "/orders", OrderPayload(draft), &resp, requestOptions{
		authRequired:   true,
		idempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	created := resp.Order
	if created == nil {
		created = resp.Data
	}
	if created == nil {
		return nil, fmt.Errorf("create order: response carried no order")
	}

	order := created.toModel()
	if order.ID == "" {
		return nil, fmt.Errorf("create order: response carried no order id")
	}
	return order, nil
}

func (c *Client) CreatePayment(ctx context.Context, orderID string, total decimal.Decimal) (*PaymentIntent, error) {
	req := struct {
		OrderID string      `json:"orderId"`
		Amount  json.Number `json:"amount"`
	}{
		OrderID: orderID,
		Amount:  amount(total),
	}

	var resp struct {
		Key           string `json:"key"`
		RazorpayOrder struct {
			ID       string `json:"id"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"razorpayOrder"`
	}

	if err := c.do(ctx, http.MethodPost, "/orders/create-payment", req, &resp, requestOptions{authRequired: true}); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if resp.RazorpayOrder.ID == "" {
		return nil, fmt.Errorf("create payment: response carried no gateway order id")
	}

	return &PaymentIntent{
		GatewayOrderID: resp.RazorpayOrder.ID,
		AmountMinor:    resp.RazorpayOrder.Amount,
		Currency:       resp.RazorpayOrder.Currency,
		KeyID:          resp.Key,
	}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, v PaymentVerification) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	if err := c.do(ctx, http.MethodPost, "/orders/verify-payment", v, &resp, requestOptions{authRequired: true}); err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}

	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrVerificationRejected, resp.Message)
		}
		return ErrVerificationRejected
	}
	return nil
}
