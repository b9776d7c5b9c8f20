// Package events is a small in-process notification bus. Subscribers are
// invoked fire-and-forget: the publishing path never sees their errors.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	TopicInvoiceGenerated = "invoice.generated"
	TopicInvoiceFullyPaid = "invoice.fully_paid"
)

type Handler func(ctx context.Context, invoiceID string)

type Bus struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		log:      log.Named("events"),
		handlers: make(map[string][]Handler),
	}
}

func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish notifies subscribers of topic. Panics are contained so a bad
// subscriber cannot take down the billing path.
func (b *Bus) Publish(ctx context.Context, topic, invoiceID string) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event subscriber panicked",
						zap.String("topic", topic),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, invoiceID)
		}()
	}
}
