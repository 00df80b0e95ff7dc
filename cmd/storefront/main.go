package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/safar/pickle-storefront/internal/backend"
	"github.com/safar/pickle-storefront/internal/cart"
	"github.com/safar/pickle-storefront/internal/config"
	"github.com/safar/pickle-storefront/internal/coupon"
	"github.com/safar/pickle-storefront/internal/database"
	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/shipping"
	"go.uber.org/zap"
)

const usage = `usage: storefront <command> [flags]

commands:
  products   list products (-page, -limit, -category)
  product    show one product: product <id>
  cart       ls | add <id> | inc <id> | dec <id> | set <id> | rm <id> | clear
  quote      price the cart (-pincode, -coupon)
  checkout   place the order (-method cod|online, customer flags, -coupon)
  offers     watch the active promotion until interrupted
`

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup finishes before exiting.
func run() int {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("start storefront", zap.Error(err))
		return 1
	}
	defer a.close()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// app holds the wired storefront session shared by every command.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	bus      *events.Bus
	api      *backend.Client
	cart     *cart.Service
	coupons  *coupon.Tracker
	validate *coupon.Validator
	shipping *shipping.Resolver
	quotes   *shipping.Tracker
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{
		cfg: cfg,
		log: log,
		bus: events.NewBus(),
	}

	a.api = backend.New(backend.Options{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		AuthToken:  cfg.Backend.AuthToken,
		MaxRetries: cfg.Backend.MaxRetries,
	}, log.Named("backend"))

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.cart = cart.NewService(store, cfg.Cart.BagKey, a.bus, log.Named("cart"))
	a.coupons = coupon.NewTracker(log.Named("coupon"))
	a.closers = append(a.closers, a.coupons.Watch(a.bus))
	a.validate = coupon.NewValidator(a.api, log.Named("coupon"))
	a.shipping = shipping.NewResolver(a.api, cfg.Shipping.FallbackCost, log.Named("shipping"))
	a.quotes = shipping.NewTracker(a.shipping)
	a.closers = append(a.closers, a.quotes.Watch(ctx, a.bus))

	return a, nil
}

func (a *app) openStore(ctx context.Context) (cart.Store, error) {
	switch a.cfg.Cart.Driver {
	case config.CartDriverPostgres:
		db, err := database.NewConnection(ctx, &a.cfg.Database, a.log)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		if err := database.MigrateUp(db); err != nil {
			return nil, fmt.Errorf("migrate cart schema: %w", err)
		}
		return cart.NewPostgresStore(db), nil

	case config.CartDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return cart.NewRedisStore(client, a.cfg.Redis.TTL), nil

	case config.CartDriverMongo:
		db, err := cart.ConnectMongo(ctx, a.cfg.Mongo.URI, a.cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { db.Client().Disconnect(context.Background()) })
		return cart.NewMongoStore(db), nil

	default:
		a.log.Warn("using in-memory cart, contents are lost when the command exits")
		return cart.NewMemoryStore(), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "products":
		return a.listProducts(ctx, args)
	case "product":
		return a.showProduct(ctx, args)
	case "cart":
		return a.cartCommand(ctx, args)
	case "quote":
		return a.quote(ctx, args)
	case "checkout":
		return a.checkout(ctx, args)
	case "offers":
		return a.watchOffers(ctx)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}
