package events

import (
	"sync"

	"github.com/safar/pickle-storefront/internal/models"
)

type Topic string

const (
	TopicCartUpdated       Topic = "cartUpdated"
	TopicOfferBannerUpdate Topic = "offerBannerUpdate"
)

type Event interface {
	Topic() Topic
}

type CartUpdated struct {
	BagKey string
	Lines  []models.CartLine
}

func (CartUpdated) Topic() Topic { return TopicCartUpdated }

// OfferBannerUpdate carries the currently active coupon. Coupon is nil when
// no promotion is running.
type OfferBannerUpdate struct {
	Coupon *models.Coupon
}

func (OfferBannerUpdate) Topic() Topic { return TopicOfferBannerUpdate }

type Handler func(Event)

// Bus is a synchronous in-process publisher. Handlers run on the publishing
// goroutine in subscription order.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Topic][]subscription
}

type subscription struct {
	id      int
	handler Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[topic]
		for i, s := range subs {
			if s.id == id {
				b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[e.Topic()]))
	copy(subs, b.handlers[e.Topic()])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(e)
	}
}
