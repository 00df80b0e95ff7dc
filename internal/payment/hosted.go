package payment

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type HostedOptions struct {
	// CheckoutURL is the gateway's hosted checkout endpoint the payment page
	// posts to.
	CheckoutURL string
	// CallbackAddr is where the local callback server listens.
	CallbackAddr string
	WaitTimeout  time.Duration
	// Announce is told the URL the customer should open to pay.
	Announce func(payURL string)
}

// HostedWidget drives the gateway's hosted checkout page. It serves a page
// that forwards the customer to the gateway and waits for the gateway to post
// the outcome back to the local callback server.
type HostedWidget struct {
	opts HostedOptions
	log  *zap.Logger
}

func NewHostedWidget(opts HostedOptions, log *zap.Logger) *HostedWidget {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 15 * time.Minute
	}
	if opts.Announce == nil {
		opts.Announce = func(payURL string) {
			fmt.Printf("Open %s in your browser to complete the payment.\n", payURL)
		}
	}
	return &HostedWidget{opts: opts, log: log}
}

type widgetResult struct {
	callback Callback
	err      error
}

var payPage = template.Must(template.New("pay").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.StoreName}} payment</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.CheckoutURL}}">
<input type="hidden" name="key_id" value="{{.KeyID}}">
<input type="hidden" name="order_id" value="{{.GatewayOrderID}}">
<input type="hidden" name="amount" value="{{.Amount}}">
<input type="hidden" name="currency" value="{{.Currency}}">
<input type="hidden" name="name" value="{{.StoreName}}">
<input type="hidden" name="description" value="{{.Description}}">
<input type="hidden" name="prefill[name]" value="{{.Prefill.Name}}">
<input type="hidden" name="prefill[email]" value="{{.Prefill.Email}}">
<input type="hidden" name="prefill[contact]" value="{{.Prefill.Contact}}">
<input type="hidden" name="notes[order_id]" value="{{.OrderID}}">
<input type="hidden" name="callback_url" value="{{.CallbackURL}}">
<input type="hidden" name="cancel_url" value="{{.CancelURL}}">
<noscript><button type="submit">Pay now</button></noscript>
</form>
</body>
</html>
`))

type payPageData struct {
	Checkout
	CheckoutURL string
	Amount      string
	CallbackURL string
	CancelURL   string
}

func (w *HostedWidget) Open(ctx context.Context, checkout Checkout) (Callback, error) {
	ln, err := net.Listen("tcp", w.opts.CallbackAddr)
	if err != nil {
		return Callback{}, fmt.Errorf("start payment callback server: %w", err)
	}

	base := "http://" + ln.Addr().String()
	results := make(chan widgetResult, 1)
	deliver := func(r widgetResult) {
		select {
		case results <- r:
		default:
		}
	}

	srv := &http.Server{
		Handler:      w.routes(checkout, base, deliver),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("payment callback server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			w.log.Warn("shut down payment callback server", zap.Error(err))
		}
	}()

	w.log.Info("waiting for hosted payment",
		zap.String("order_id", checkout.OrderID),
		zap.String("gateway_order_id", checkout.GatewayOrderID),
		zap.Int64("amount_minor", checkout.AmountMinor))
	w.opts.Announce(base + "/payment")

	timer := time.NewTimer(w.opts.WaitTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return r.callback, r.err
	case <-timer.C:
		return Callback{}, ErrWidgetDismissed
	case <-ctx.Done():
		return Callback{}, fmt.Errorf("%w: %w", ErrWidgetDismissed, ctx.Err())
	}
}

func (w *HostedWidget) routes(checkout Checkout, base string, deliver func(widgetResult)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/payment", func(rw http.ResponseWriter, req *http.Request) {
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := payPage.Execute(rw, payPageData{
			Checkout:    checkout,
			CheckoutURL: w.opts.CheckoutURL,
			Amount:      strconv.FormatInt(checkout.AmountMinor, 10),
			CallbackURL: base + "/payment/callback",
			CancelURL:   base + "/payment/cancel",
		})
		if err != nil {
			w.log.Error("render payment page", zap.Error(err))
		}
	})

	r.Post("/payment/callback", func(rw http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			http.Error(rw, "malformed callback", http.StatusBadRequest)
			return
		}

		result := parseCallback(req, checkout.GatewayOrderID)
		deliver(result)

		if result.err != nil {
			w.log.Warn("gateway reported payment failure", zap.Error(result.err))
			writeOutcomePage(rw, "Payment was not completed. You can close this window.")
			return
		}
		writeOutcomePage(rw, "Payment received. You can close this window.")
	})

	r.Get("/payment/cancel", func(rw http.ResponseWriter, req *http.Request) {
		deliver(widgetResult{err: ErrWidgetDismissed})
		writeOutcomePage(rw, "Payment cancelled. You can close this window.")
	})

	return r
}

func parseCallback(req *http.Request, gatewayOrderID string) widgetResult {
	if code := req.PostForm.Get("error[code]"); code != "" {
		return widgetResult{err: &PaymentFailedError{
			Code:        code,
			Description: req.PostForm.Get("error[description]"),
		}}
	}

	cb := Callback{
		GatewayPaymentID: req.PostForm.Get("razorpay_payment_id"),
		GatewayOrderID:   req.PostForm.Get("razorpay_order_id"),
		Signature:        req.PostForm.Get("razorpay_signature"),
	}
	if cb.GatewayPaymentID == "" || cb.Signature == "" {
		return widgetResult{err: &PaymentFailedError{Code: "BAD_CALLBACK", Description: "callback carried no payment reference"}}
	}
	if cb.GatewayOrderID == "" {
		cb.GatewayOrderID = gatewayOrderID
	}
	if cb.GatewayOrderID != gatewayOrderID {
		return widgetResult{err: ErrOrderMismatch}
	}
	return widgetResult{callback: cb}
}

func writeOutcomePage(rw http.ResponseWriter, message string) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(rw, "<!DOCTYPE html><html><body><p>%s</p></body></html>", template.HTMLEscapeString(message))
}
