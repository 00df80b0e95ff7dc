package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// offerMessage is the notification the admin side emits when the
// promotional banner is rotated.
type offerMessage struct {
	Active bool `json:"active"`
	Coupon *struct {
		Code           string          `json:"code"`
		Discount       decimal.Decimal `json:"discount"`
		MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
		Description    string          `json:"description"`
	} `json:"coupon"`
}

func decodeOffer(body []byte) (*models.Coupon, error) {
	var msg offerMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode offer notification: %w", err)
	}
	if !msg.Active || msg.Coupon == nil || strings.TrimSpace(msg.Coupon.Code) == "" {
		return nil, nil
	}
	return &models.Coupon{
		Code:            strings.TrimSpace(msg.Coupon.Code),
		DiscountPercent: msg.Coupon.Discount,
		MinOrderAmount:  msg.Coupon.MinOrderAmount,
		Description:     msg.Coupon.Description,
	}, nil
}

// OfferListener turns offer rotation notifications from RabbitMQ into
// offerBannerUpdate events.
type OfferListener struct {
	conn  *amqp.Connection
	queue string
	bus   *events.Bus
	log   *zap.Logger
}

func DialOfferListener(url, queue string, bus *events.Bus, log *zap.Logger) (*OfferListener, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &OfferListener{conn: conn, queue: queue, bus: bus, log: log}, nil
}

// Run consumes notifications until ctx is done or the connection drops.
func (l *OfferListener) Run(ctx context.Context) error {
	ch, err := l.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(l.queue, "storefront-offers", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", l.queue, err)
	}

	l.log.Info("listening for offer notifications", zap.String("queue", l.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("offer notification channel closed")
			}
			l.handle(msg)
		}
	}
}

func (l *OfferListener) handle(msg amqp.Delivery) {
	active, err := decodeOffer(msg.Body)
	if err != nil {
		l.log.Warn("dropping malformed offer notification", zap.Error(err))
		if err := msg.Nack(false, false); err != nil {
			l.log.Warn("nack offer notification", zap.Error(err))
		}
		return
	}

	l.bus.Publish(events.OfferBannerUpdate{Coupon: active})

	if err := msg.Ack(false); err != nil {
		l.log.Warn("ack offer notification", zap.Error(err))
	}
}

func (l *OfferListener) Close() error {
	return l.conn.Close()
}
