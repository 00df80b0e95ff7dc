package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/safar/pickle-storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrLineNotFound    = errors.New("item not in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrUnknownWeight   = errors.New("product has no such weight option")
)

// Service is the cart of one shopper, persisted under a single bag key. Every
// mutation is saved and then announced as a cartUpdated event.
type Service struct {
	store  Store
	bagKey string
	bus    *events.Bus
	log    *zap.Logger

	mu sync.Mutex
}

func NewService(store Store, bagKey string, bus *events.Bus, log *zap.Logger) *Service {
	return &Service{store: store, bagKey: bagKey, bus: bus, log: log}
}

func (s *Service) Lines(ctx context.Context) ([]models.CartLine, error) {
	lines, err := s.store.Load(ctx, s.bagKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return lines, nil
}

// Add puts quantity units of product at the given weight into the cart,
// merging with an existing line for the same product and weight.
func (s *Service) Add(ctx context.Context, product models.Product, weight string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if !product.InStock {
		return fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
	}
	if weight == "" && len(product.WeightOptions) > 0 {
		weight = product.WeightOptions[0].Label
	}
	if weight != "" && len(product.WeightOptions) > 0 && !hasWeight(product, weight) {
		return fmt.Errorf("%w: %s %s", ErrUnknownWeight, product.Name, weight)
	}

	return s.AddLine(ctx, models.CartLine{
		ProductID:            product.ID,
		Name:                 product.Name,
		UnitPrice:            product.PriceFor(weight),
		Quantity:             quantity,
		SelectedWeightOption: weight,
		ImageURL:             product.ImageURL,
	})
}

func (s *Service) AddLine(ctx context.Context, line models.CartLine) error {
	if line.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, error) {
		for i := range lines {
			if lines[i].SameItem(line) {
				lines[i].Quantity += line.Quantity
				return lines, nil
			}
		}
		return append(lines, line), nil
	})
}

func (s *Service) Increment(ctx context.Context, productID, weight string) error {
	return s.adjust(ctx, productID, weight, func(q int) int { return q + 1 })
}

// Decrement removes the line once its quantity reaches zero.
func (s *Service) Decrement(ctx context.Context, productID, weight string) error {
	return s.adjust(ctx, productID, weight, func(q int) int { return q - 1 })
}

// SetQuantity removes the line when quantity is zero or less.
func (s *Service) SetQuantity(ctx context.Context, productID, weight string, quantity int) error {
	return s.adjust(ctx, productID, weight, func(int) int { return quantity })
}

func (s *Service) Remove(ctx context.Context, productID, weight string) error {
	return s.adjust(ctx, productID, weight, func(int) int { return 0 })
}

func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx, s.bagKey); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.log.Info("cart cleared", zap.String("bag", s.bagKey))
	s.bus.Publish(events.CartUpdated{BagKey: s.bagKey, Lines: []models.CartLine{}})
	return nil
}

// Count is the total number of units in the cart.
func (s *Service) Count(ctx context.Context) (int, error) {
	lines, err := s.Lines(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count, nil
}

func (s *Service) Subtotal(ctx context.Context) (decimal.Decimal, error) {
	lines, err := s.Lines(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.Subtotal(lines), nil
}

func (s *Service) adjust(ctx context.Context, productID, weight string, next func(int) int) error {
	target := models.CartLine{ProductID: productID, SelectedWeightOption: weight}
	return s.mutate(ctx, func(lines []models.CartLine) ([]models.CartLine, error) {
		for i := range lines {
			if !lines[i].SameItem(target) {
				continue
			}
			q := next(lines[i].Quantity)
			if q <= 0 {
				return append(lines[:i], lines[i+1:]...), nil
			}
			lines[i].Quantity = q
			return lines, nil
		}
		return nil, fmt.Errorf("%w: %s %s", ErrLineNotFound, productID, weight)
	})
}

func (s *Service) mutate(ctx context.Context, fn func([]models.CartLine) ([]models.CartLine, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.store.Load(ctx, s.bagKey)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	lines, err = fn(lines)
	if err != nil {
		return err
	}

	if err := s.store.Save(ctx, s.bagKey, lines); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	s.log.Debug("cart updated", zap.String("bag", s.bagKey), zap.Int("lines", len(lines)))
	s.bus.Publish(events.CartUpdated{BagKey: s.bagKey, Lines: cloneLines(lines)})
	return nil
}

func hasWeight(p models.Product, weight string) bool {
	for _, opt := range p.WeightOptions {
		if opt.Label == weight {
			return true
		}
	}
	return false
}
