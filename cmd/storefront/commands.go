package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/safar/pickle-storefront/internal/backend"
	"github.com/safar/pickle-storefront/internal/checkout"
	"github.com/safar/pickle-storefront/internal/coupon"
	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/safar/pickle-storefront/internal/payment"
	"go.uber.org/zap"
)

func (a *app) listProducts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "products per page")
	category := fs.String("category", "", "filter by category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.api.ListProducts(ctx, backend.ProductQuery{Page: *page, PageSize: *limit, Category: *category})
	if err != nil {
		return errors.New(backend.UserMessage(err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tWEIGHTS\tSTOCK")
	for _, p := range result.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), weightList(p), stockLabel(p))
	}
	w.Flush()
	fmt.Printf("page %d of %d (%d products)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

func (a *app) showProduct(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: storefront product <id>")
	}

	p, err := a.api.GetProduct(ctx, args[0])
	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("no product with id %s", args[0])
	}
	if err != nil {
		return errors.New(backend.UserMessage(err))
	}

	fmt.Printf("%s (%s)\n", p.Name, p.ID)
	if p.Description != "" {
		fmt.Println(p.Description)
	}
	fmt.Printf("price: %s  %s\n", p.Price.StringFixed(2), stockLabel(*p))
	for _, opt := range p.WeightOptions {
		fmt.Printf("  %-8s %s\n", opt.Label, opt.Price.StringFixed(2))
	}
	return nil
}

func (a *app) cartCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"ls"}
	}
	sub, rest := args[0], args[1:]

	var productID string
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		productID, rest = rest[0], rest[1:]
	}

	fs := flag.NewFlagSet("cart "+sub, flag.ContinueOnError)
	weight := fs.String("weight", "", "weight option, e.g. 500g")
	qty := fs.Int("qty", 1, "quantity")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	needsID := sub != "ls" && sub != "clear"
	if needsID && productID == "" {
		return fmt.Errorf("usage: storefront cart %s <product-id> [-weight w] [-qty n]", sub)
	}

	var err error
	switch sub {
	case "ls":
		return a.printCart(ctx)
	case "add":
		var p *models.Product
		p, err = a.api.GetProduct(ctx, productID)
		if err == nil {
			err = a.cart.Add(ctx, *p, *weight, *qty)
		}
	case "inc":
		err = a.cart.Increment(ctx, productID, *weight)
	case "dec":
		err = a.cart.Decrement(ctx, productID, *weight)
	case "set":
		err = a.cart.SetQuantity(ctx, productID, *weight, *qty)
	case "rm":
		err = a.cart.Remove(ctx, productID, *weight)
	case "clear":
		err = a.cart.Clear(ctx)
	default:
		return fmt.Errorf("unknown cart command %q", sub)
	}
	if err != nil {
		return err
	}
	return a.printCart(ctx)
}

func (a *app) printCart(ctx context.Context) error {
	lines, err := a.cart.Lines(ctx)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Println("cart is empty")
		return nil
	}

	subtotal, err := a.cart.Subtotal(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tNAME\tWEIGHT\tQTY\tPRICE\tLINE TOTAL")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ProductID, l.Name, l.SelectedWeightOption, l.Quantity, l.UnitPrice.StringFixed(2), l.LineTotal().StringFixed(2))
	}
	w.Flush()
	fmt.Printf("subtotal: %s\n", subtotal.StringFixed(2))
	return nil
}

// applyCoupon validates code against the active promotion and applies it for
// this session. Rejections are reported and checkout continues without it.
func (a *app) applyCoupon(ctx context.Context, code string) {
	if code == "" {
		return
	}

	subtotal, err := a.cart.Subtotal(ctx)
	if err != nil {
		a.log.Warn("read cart subtotal for coupon", zap.Error(err))
		return
	}

	c, err := a.validate.Validate(ctx, code, subtotal)
	var minErr *coupon.MinimumNotMetError
	switch {
	case errors.As(err, &minErr):
		fmt.Printf("coupon not applied: add items worth at least %s to use %s\n", minErr.Minimum.StringFixed(2), minErr.Code)
	case err != nil:
		fmt.Printf("coupon not applied: %v\n", err)
	default:
		a.coupons.Apply(*c)
		fmt.Printf("coupon %s applied: %s%% off\n", c.Code, c.DiscountPercent.String())
	}
}

func (a *app) quote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	pincode := fs.String("pincode", "", "delivery postal code")
	code := fs.String("coupon", "", "coupon code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.applyCoupon(ctx, *code)

	preview, err := a.orchestrator(nil).Preview(ctx, *pincode)
	if err != nil {
		return err
	}
	if len(preview.Lines) == 0 {
		fmt.Println("cart is empty")
		return nil
	}

	printTotals(preview.Totals, preview.Shipping)
	return nil
}

func (a *app) checkout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	method := fs.String("method", "cod", "payment method: cod or online")
	code := fs.String("coupon", "", "coupon code")
	var c models.CustomerInfo
	fs.StringVar(&c.Email, "email", "", "email")
	fs.StringVar(&c.FirstName, "first", "", "first name")
	fs.StringVar(&c.LastName, "last", "", "last name")
	fs.StringVar(&c.Phone, "phone", "", "phone")
	fs.StringVar(&c.Address, "address", "", "street address")
	fs.StringVar(&c.Apartment, "apartment", "", "apartment, suite")
	fs.StringVar(&c.City, "city", "", "city")
	fs.StringVar(&c.State, "state", "", "state")
	fs.StringVar(&c.PostalCode, "pincode", "", "postal code")
	fs.StringVar(&c.Country, "country", "India", "country")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.applyCoupon(ctx, *code)

	widget := payment.NewHostedWidget(payment.HostedOptions{
		CheckoutURL:  a.cfg.Payment.CheckoutURL,
		CallbackAddr: a.cfg.Payment.CallbackAddr,
		WaitTimeout:  a.cfg.Payment.WaitTimeout,
	}, a.log.Named("payment"))

	outcome, err := a.orchestrator(widget).Submit(ctx, checkout.Request{
		Customer:      c,
		PaymentMethod: models.PaymentMethod(*method),
	})
	if err != nil {
		return errors.New(checkout.UserMessage(err))
	}

	printTotals(outcome.Draft.Totals, models.ShippingQuote{Cost: outcome.Draft.Totals.Shipping})
	ref := outcome.Order.OrderNumber
	if ref == "" {
		ref = outcome.Order.ID
	}
	fmt.Printf("order %s confirmed (%s)\n", ref, outcome.Draft.PaymentMethod)
	return nil
}

func (a *app) orchestrator(widget payment.Widget) *checkout.Orchestrator {
	return checkout.New(a.cart, a.api, a.quotes, a.coupons, widget, checkout.Options{
		KeyID:     a.cfg.Payment.KeyID,
		Currency:  a.cfg.Payment.Currency,
		StoreName: a.cfg.Payment.StoreName,
		Offers:    a.api,
		OnStateChange: func(from, to checkout.State) {
			a.log.Debug("checkout state changed", zap.Stringer("from", from), zap.Stringer("to", to))
			if to == checkout.StateAwaitingUserPayment {
				fmt.Println("waiting for payment...")
			}
		},
	}, a.log.Named("checkout"))
}

func (a *app) watchOffers(ctx context.Context) error {
	a.bus.Subscribe(events.TopicOfferBannerUpdate, func(e events.Event) {
		update := e.(events.OfferBannerUpdate)
		if update.Coupon == nil {
			fmt.Println("no promotion running")
			return
		}
		c := update.Coupon
		fmt.Printf("promotion: %s, %s%% off orders above %s. %s\n",
			c.Code, c.DiscountPercent.String(), c.MinOrderAmount.StringFixed(2), c.Description)
	})

	if url := a.cfg.Offers.AMQPURL; url != "" {
		listener, err := coupon.DialOfferListener(url, a.cfg.Offers.AMQPQueue, a.bus, a.log.Named("offers"))
		if err != nil {
			return err
		}
		defer listener.Close()

		go func() {
			if err := listener.Run(ctx); err != nil {
				a.log.Error("offer listener stopped", zap.Error(err))
			}
		}()
	}

	coupon.NewPoller(a.api, a.bus, a.cfg.Offers.PollInterval, a.log.Named("offers")).Run(ctx)
	return nil
}

func printTotals(t models.Totals, quote models.ShippingQuote) {
	t = t.Rounded()
	fmt.Printf("subtotal:  %10s\n", t.Subtotal.StringFixed(2))
	if !t.Discount.IsZero() {
		fmt.Printf("discount: -%10s\n", t.Discount.StringFixed(2))
	}
	shipping := t.Shipping.StringFixed(2)
	switch {
	case quote.IsFreeDelivery:
		shipping = "FREE"
	case quote.Fallback:
		shipping += " (standard rate)"
	}
	fmt.Printf("shipping:  %10s\n", shipping)
	if quote.ZoneName != "" {
		fmt.Printf("  zone %s, delivery %s\n", quote.ZoneName, quote.DeliveryTimeEstimate)
	}
	fmt.Printf("tax (18%%): %10s\n", t.Tax.StringFixed(2))
	fmt.Printf("total:     %10s\n", t.Total.StringFixed(2))
}

func weightList(p models.Product) string {
	labels := make([]string, 0, len(p.WeightOptions))
	for _, opt := range p.WeightOptions {
		labels = append(labels, opt.Label)
	}
	return strings.Join(labels, ",")
}

func stockLabel(p models.Product) string {
	if p.InStock {
		return "in stock"
	}
	return "out of stock"
}
