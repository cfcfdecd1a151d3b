package service

import (
	"errors"
	"testing"

	"github.com/berfenger/sensorhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroadcastStopsAtFirstFailure(t *testing.T) {
	var received []string
	bus := NewEventBus(zap.NewNop())
	bus.Subscribe(&fakeObserver{name: "one", received: &received})
	bus.Subscribe(&fakeObserver{name: "two", received: &received, err: errors.New("led gone")})
	bus.Subscribe(&fakeObserver{name: "three", received: &received})

	err := bus.Broadcast(domain.EventRebooting)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "led gone")
	assert.Equal(t, []string{"one:rebooting", "two:rebooting"}, received)
}

func TestBroadcastInSubscriptionOrder(t *testing.T) {
	var received []string
	bus := NewEventBus(zap.NewNop())
	bus.Subscribe(&fakeObserver{name: "a", received: &received})
	bus.Subscribe(&fakeObserver{name: "b", received: &received})
	bus.Subscribe(&fakeObserver{name: "a", received: &received})

	require.NoError(t, bus.Broadcast(domain.EventReady))
	assert.Equal(t, []string{"a:ready", "b:ready", "a:ready"}, received)
}

func TestEventBusBeginAllFailFast(t *testing.T) {
	var received []string
	bus := NewEventBus(zap.NewNop())
	bus.Subscribe(&fakeObserver{name: "a", received: &received})
	bus.Subscribe(&fakeObserver{name: "b", received: &received, err: errors.New("no strip")})

	err := bus.BeginAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceBeginFailed)
}
