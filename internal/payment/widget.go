package payment

import (
	"context"
	"errors"
	"fmt"
)

type Prefill struct {
	Name    string
	Email   string
	Contact string
}

// Checkout configures one hosted payment session.
type Checkout struct {
	KeyID          string
	AmountMinor    int64
	Currency       string
	GatewayOrderID string
	OrderID        string
	StoreName      string
	Description    string
	Prefill        Prefill
}

// Callback is what the gateway reports after a successful payment. It is
// forwarded to the backend for signature verification.
type Callback struct {
	GatewayPaymentID string
	GatewayOrderID   string
	Signature        string
}

var (
	ErrWidgetDismissed = errors.New("payment window closed before payment completed")
	ErrOrderMismatch   = errors.New("payment callback is for a different gateway order")
)

// PaymentFailedError is a failure reported by the gateway itself.
type PaymentFailedError struct {
	Code        string
	Description string
}

func (e *PaymentFailedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("payment failed: %s", e.Code)
	}
	return fmt.Sprintf("payment failed: %s (%s)", e.Description, e.Code)
}

// Widget hands control to the gateway's hosted checkout and blocks until the
// customer pays, the gateway reports failure, or the session is abandoned.
type Widget interface {
	Open(ctx context.Context, checkout Checkout) (Callback, error)
}
