package service

import (
	"fmt"
	"sync"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"

	"go.uber.org/zap"
)

// EventBus fans lifecycle events out to its observers, synchronously and in
// subscription order. Delivery is fail-fast: the first observer error stops the fan-out.
type EventBus struct {
	mu        sync.RWMutex
	receivers []port.EventReceiver
	logger    *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger: logger.With(zap.String("component", "eventbus")),
	}
}

func (b *EventBus) Subscribe(receiver port.EventReceiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers = append(b.receivers, receiver)
}

func (b *EventBus) BeginAll() error {
	for i, r := range b.snapshot() {
		if err := r.Begin(); err != nil {
			b.logger.Error("eventbus@begin could not start receiver", zap.Int("index", i), zap.Error(err))
			return fmt.Errorf("event receiver %d: %w: %w", i, domain.ErrDeviceBeginFailed, err)
		}
	}
	return nil
}

func (b *EventBus) Broadcast(event domain.Event) error {
	b.logger.Debug("eventbus@broadcast", zap.Stringer("event", event))
	for i, r := range b.snapshot() {
		if err := r.ReceiveEvent(event); err != nil {
			b.logger.Error("eventbus@broadcast receiver failed", zap.Int("index", i), zap.Stringer("event", event), zap.Error(err))
			return fmt.Errorf("event receiver %d on %s: %w", i, event, err)
		}
	}
	return nil
}

func (b *EventBus) snapshot() []port.EventReceiver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]port.EventReceiver(nil), b.receivers...)
}

// ensure interface compliance
var _ port.EventBroadcaster = (*EventBus)(nil)
