package checkout

import (
	"errors"
	"fmt"

	"github.com/safar/pickle-storefront/internal/backend"
	"github.com/safar/pickle-storefront/internal/payment"
)

var (
	ErrEmptyCart            = errors.New("your cart is empty")
	ErrSubmissionInProgress = errors.New("an order is already being placed")
	ErrInvalidPaymentMethod = errors.New("choose cash on delivery or online payment")
	ErrIllegalTransition    = errors.New("illegal checkout state transition")
)

// ValidationError names the first checkout field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SubmissionError is a failure to create the order on the backend.
type SubmissionError struct {
	Cause backend.Cause
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("place order (%s): %v", e.Cause, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) UserMessage() string {
	return backend.UserMessage(e.Err)
}

type PaymentStage string

const (
	PaymentStageInitiate PaymentStage = "initiate"
	PaymentStageWidget   PaymentStage = "payment"
	PaymentStageVerify   PaymentStage = "verify"
)

// PaymentError is a failure after the order was created. The order stays
// pending payment on the backend and is referenced here for follow-up.
type PaymentError struct {
	OrderID     string
	OrderNumber string
	Stage       PaymentStage
	Err         error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment for order %s failed at %s: %v", e.OrderID, e.Stage, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func (e *PaymentError) UserMessage() string {
	ref := e.OrderNumber
	if ref == "" {
		ref = e.OrderID
	}

	switch {
	case errors.Is(e.Err, payment.ErrWidgetDismissed):
		return fmt.Sprintf("Payment was not completed. Order %s is saved and awaiting payment.", ref)
	case e.Stage == PaymentStageInitiate:
		return fmt.Sprintf("We could not start the payment for order %s. %s", ref, backend.UserMessage(e.Err))
	case e.Stage == PaymentStageVerify:
		return fmt.Sprintf("We could not verify your payment for order %s. If you were charged, contact support with this order number.", ref)
	}

	var failed *payment.PaymentFailedError
	if errors.As(e.Err, &failed) && failed.Description != "" {
		return fmt.Sprintf("Payment failed: %s. Order %s is saved and awaiting payment.", failed.Description, ref)
	}
	return fmt.Sprintf("Payment failed. Order %s is saved and awaiting payment.", ref)
}

// UserMessage renders any checkout error for display.
func UserMessage(err error) string {
	var (
		validationErr *ValidationError
		submissionErr *SubmissionError
		paymentErr    *PaymentError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.As(err, &paymentErr):
		return paymentErr.UserMessage()
	case errors.As(err, &submissionErr):
		return submissionErr.UserMessage()
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrSubmissionInProgress), errors.Is(err, ErrInvalidPaymentMethod):
		return err.Error()
	}
	return "Something went wrong while placing your order. Please try again."
}
