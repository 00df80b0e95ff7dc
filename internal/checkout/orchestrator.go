package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/safar/pickle-storefront/internal/backend"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/safar/pickle-storefront/internal/payment"
	"github.com/safar/pickle-storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Cart interface {
	Lines(ctx context.Context) ([]models.CartLine, error)
	Clear(ctx context.Context) error
}

type Backend interface {
	CreateOrder(ctx context.Context, draft models.OrderDraft, idempotencyKey string) (*models.Order, error)
	CreatePayment(ctx context.Context, orderID string, total decimal.Decimal) (*backend.PaymentIntent, error)
	VerifyPayment(ctx context.Context, v backend.PaymentVerification) error
}

type ShippingResolver interface {
	Resolve(ctx context.Context, postalCode string, subtotal decimal.Decimal) models.ShippingQuote
}

// AppliedCoupon exposes the coupon chosen for this checkout.
type AppliedCoupon interface {
	Applied() *models.Coupon
	Reconcile(active *models.Coupon) bool
	Revalidate(subtotal decimal.Decimal) bool
}

// ActiveOffers reports the promotion currently running on the backend.
type ActiveOffers interface {
	ActiveCoupon(ctx context.Context) (*models.Coupon, error)
}

type Options struct {
	// KeyID and Currency are used when the payment intent omits them.
	KeyID     string
	Currency  string
	StoreName string

	// Offers, when set, is checked before pricing so a coupon whose
	// promotion has ended or rotated is dropped.
	Offers ActiveOffers

	OnStateChange func(from, to State)
	OnComplete    func(Outcome)
}

type Request struct {
	Customer      models.CustomerInfo
	PaymentMethod models.PaymentMethod
}

// Outcome is a confirmed order.
type Outcome struct {
	Order     *models.Order
	Draft     models.OrderDraft
	PaymentID string
}

// Preview is what the checkout page shows before the order is placed.
type Preview struct {
	Lines    []models.CartLine
	Coupon   *models.Coupon
	Shipping models.ShippingQuote
	Totals   models.Totals
}

type Orchestrator struct {
	cart     Cart
	backend  Backend
	shipping ShippingResolver
	coupons  AppliedCoupon
	widget   payment.Widget
	validate *validator.Validate
	log      *zap.Logger
	opts     Options
	newKey   func() string

	submitting atomic.Bool

	mu        sync.Mutex
	state     State
	lastOrder *models.Order
	pending   *pendingDraft
}

// pendingDraft remembers the idempotency key of a draft whose creation failed
// transiently so a retry of the same draft reuses it.
type pendingDraft struct {
	fingerprint string
	key         string
}

func New(cart Cart, api Backend, shipping ShippingResolver, coupons AppliedCoupon, widget payment.Widget, opts Options, log *zap.Logger) *Orchestrator {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &Orchestrator{
		cart:     cart,
		backend:  api,
		shipping: shipping,
		coupons:  coupons,
		widget:   widget,
		validate: newValidator(),
		log:      log,
		opts:     opts,
		newKey:   uuid.NewString,
		state:    StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastOrder is the most recently created order, including one whose payment
// later failed.
func (o *Orchestrator) LastOrder() *models.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastOrder == nil {
		return nil
	}
	order := *o.lastOrder
	return &order
}

// Preview prices the current cart for display. Nothing is submitted.
func (o *Orchestrator) Preview(ctx context.Context, postalCode string) (*Preview, error) {
	lines, err := o.cart.Lines(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	subtotal := pricing.Subtotal(lines)
	coupon := o.currentCoupon(ctx, subtotal)
	quote := o.shipping.Resolve(ctx, postalCode, subtotal)

	return &Preview{
		Lines:    lines,
		Coupon:   coupon,
		Shipping: quote,
		Totals:   pricing.ComputeTotals(lines, coupon, quote.Cost),
	}, nil
}

// Submit places an order for the current cart. Only one submission runs at a
// time; a concurrent call fails with ErrSubmissionInProgress. The cart is
// cleared only once the order is confirmed.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Outcome, error) {
	if !o.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInProgress
	}
	defer o.submitting.Store(false)

	o.reset()
	if err := o.transition(StateValidating); err != nil {
		return nil, err
	}

	customer := normalizeCustomer(req.Customer)
	if !req.PaymentMethod.Valid() {
		return nil, o.fail(ErrInvalidPaymentMethod)
	}

	lines, err := o.cart.Lines(ctx)
	if err != nil {
		return nil, o.fail(fmt.Errorf("load cart: %w", err))
	}
	if len(lines) == 0 {
		return nil, o.fail(ErrEmptyCart)
	}
	if err := validateCustomer(o.validate, customer); err != nil {
		return nil, o.fail(err)
	}

	if err := o.transition(StateSubmitting); err != nil {
		return nil, err
	}

	draft := o.buildDraft(ctx, lines, customer, req.PaymentMethod)
	order, err := o.createOrder(ctx, draft)
	if err != nil {
		return nil, o.fail(err)
	}

	if draft.PaymentMethod == models.PaymentMethodCOD {
		return o.complete(ctx, Outcome{Order: order, Draft: draft})
	}
	return o.payOnline(ctx, order, draft)
}

func (o *Orchestrator) buildDraft(ctx context.Context, lines []models.CartLine, customer models.CustomerInfo, method models.PaymentMethod) models.OrderDraft {
	subtotal := pricing.Subtotal(lines)
	coupon := o.currentCoupon(ctx, subtotal)
	quote := o.shipping.Resolve(ctx, customer.PostalCode, subtotal)

	draft := models.OrderDraft{
		Lines:         lines,
		Customer:      customer,
		Totals:        pricing.ComputeTotals(lines, coupon, quote.Cost),
		PaymentMethod: method,
	}
	if coupon != nil {
		draft.CouponCode = coupon.Code
	}
	return draft
}

// currentCoupon returns the applied coupon if it is still the active
// promotion and the subtotal still meets its minimum. When the active
// promotion cannot be fetched the applied coupon is kept.
func (o *Orchestrator) currentCoupon(ctx context.Context, subtotal decimal.Decimal) *models.Coupon {
	if o.opts.Offers != nil && o.coupons.Applied() != nil {
		active, err := o.opts.Offers.ActiveCoupon(ctx)
		if err != nil {
			o.log.Warn("could not confirm applied coupon is still active", zap.Error(err))
		} else {
			o.coupons.Reconcile(active)
		}
	}
	o.coupons.Revalidate(subtotal)
	return o.coupons.Applied()
}

func (o *Orchestrator) createOrder(ctx context.Context, draft models.OrderDraft) (*models.Order, error) {
	fingerprint := draftFingerprint(draft)
	key := o.idempotencyKey(fingerprint)

	order, err := o.backend.CreateOrder(ctx, draft, key)
	if err != nil {
		cause := backend.Classify(err)
		o.mu.Lock()
		if backend.IsRetryable(err) || cause == backend.CauseRateLimited {
			o.pending = &pendingDraft{fingerprint: fingerprint, key: key}
		} else {
			o.pending = nil
		}
		o.mu.Unlock()
		return nil, &SubmissionError{Cause: cause, Err: err}
	}

	o.mu.Lock()
	o.pending = nil
	o.lastOrder = order
	o.mu.Unlock()

	o.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_method", string(draft.PaymentMethod)),
		zap.String("total", draft.Totals.Total.StringFixed(2)))
	return order, nil
}

func (o *Orchestrator) idempotencyKey(fingerprint string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil && o.pending.fingerprint == fingerprint {
		return o.pending.key
	}
	return o.newKey()
}

func (o *Orchestrator) payOnline(ctx context.Context, order *models.Order, draft models.OrderDraft) (*Outcome, error) {
	paymentErr := func(stage PaymentStage, err error) error {
		return o.fail(&PaymentError{OrderID: order.ID, OrderNumber: order.OrderNumber, Stage: stage, Err: err})
	}

	if err := o.transition(StateAwaitingGatewayOrder); err != nil {
		return nil, err
	}

	intent, err := o.backend.CreatePayment(ctx, order.ID, draft.Totals.Total)
	if err != nil {
		return nil, paymentErr(PaymentStageInitiate, err)
	}

	if err := o.transition(StateAwaitingUserPayment); err != nil {
		return nil, err
	}

	cb, err := o.widget.Open(ctx, o.widgetCheckout(order, draft, intent))
	if err != nil {
		return nil, paymentErr(PaymentStageWidget, err)
	}

	if err := o.transition(StateVerifying); err != nil {
		return nil, err
	}

	gatewayOrderID := cb.GatewayOrderID
	if gatewayOrderID == "" {
		gatewayOrderID = intent.GatewayOrderID
	}
	err = o.backend.VerifyPayment(ctx, backend.PaymentVerification{
		OrderID:          order.ID,
		GatewayOrderID:   gatewayOrderID,
		GatewayPaymentID: cb.GatewayPaymentID,
		Signature:        cb.Signature,
	})
	if err != nil {
		return nil, paymentErr(PaymentStageVerify, err)
	}

	order.PaymentStatus = models.PaymentStatusPaid
	return o.complete(ctx, Outcome{Order: order, Draft: draft, PaymentID: cb.GatewayPaymentID})
}

func (o *Orchestrator) widgetCheckout(order *models.Order, draft models.OrderDraft, intent *backend.PaymentIntent) payment.Checkout {
	checkout := payment.Checkout{
		KeyID:          intent.KeyID,
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		GatewayOrderID: intent.GatewayOrderID,
		OrderID:        order.ID,
		StoreName:      o.opts.StoreName,
		Description:    "Order " + order.OrderNumber,
		Prefill: payment.Prefill{
			Name:    draft.Customer.FullName(),
			Email:   draft.Customer.Email,
			Contact: draft.Customer.Phone,
		},
	}
	if checkout.KeyID == "" {
		checkout.KeyID = o.opts.KeyID
	}
	if checkout.AmountMinor == 0 {
		checkout.AmountMinor = pricing.MinorUnits(draft.Totals.Total)
	}
	if checkout.Currency == "" {
		checkout.Currency = o.opts.Currency
	}
	if order.OrderNumber == "" {
		checkout.Description = "Order " + order.ID
	}
	return checkout
}

func (o *Orchestrator) complete(ctx context.Context, outcome Outcome) (*Outcome, error) {
	if err := o.cart.Clear(ctx); err != nil {
		o.log.Error("order placed but cart could not be cleared",
			zap.String("order_id", outcome.Order.ID), zap.Error(err))
	}

	if err := o.transition(StateCompleted); err != nil {
		return nil, err
	}

	o.log.Info("checkout completed",
		zap.String("order_id", outcome.Order.ID),
		zap.String("payment_method", string(outcome.Draft.PaymentMethod)))

	if o.opts.OnComplete != nil {
		o.opts.OnComplete(outcome)
	}
	return &outcome, nil
}

func (o *Orchestrator) fail(err error) error {
	if tErr := o.transition(StateFailed); tErr != nil {
		return errors.Join(err, tErr)
	}

	fields := []zap.Field{zap.Error(err)}
	var paymentErr *PaymentError
	if errors.As(err, &paymentErr) {
		fields = append(fields, zap.String("order_id", paymentErr.OrderID), zap.String("stage", string(paymentErr.Stage)))
	}
	o.log.Warn("checkout failed", fields...)
	return err
}

// reset returns a finished checkout to Idle so a new submission can start.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	from := o.state
	if !from.IsTerminal() {
		o.mu.Unlock()
		return
	}
	o.state = StateIdle
	o.mu.Unlock()

	o.notify(from, StateIdle)
}

func (o *Orchestrator) transition(next State) error {
	o.mu.Lock()
	from := o.state
	if !from.CanTransitionTo(next) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, from, next)
	}
	o.state = next
	o.mu.Unlock()

	o.log.Debug("checkout state", zap.Stringer("from", from), zap.Stringer("to", next))
	o.notify(from, next)
	return nil
}

func (o *Orchestrator) notify(from, to State) {
	if o.opts.OnStateChange != nil {
		o.opts.OnStateChange(from, to)
	}
}

func draftFingerprint(draft models.OrderDraft) string {
	draft.Totals = draft.Totals.Rounded()
	data, err := json.Marshal(draft)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
