package events

import (
	"testing"

	"github.com/berfenger/sensorhub/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurementsToUpdateEvents(t *testing.T) {
	evs := MeasurementsToUpdateEvents([]domain.Measurement{{Parameter: "Temperature", Value: 21.25, Unit: "C"}})
	require.Len(t, evs, 1)
	ev, ok := evs[0].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "m_temperature", ev.SensorId())
	assert.Equal(t, 21.25, ev.Value)
}

func TestRelayPublishesLifecycle(t *testing.T) {
	stream := &eventstream.EventStream{}
	var got []any
	stream.Subscribe(func(evt any) {
		got = append(got, evt)
	})

	relay := NewEventRelay(stream)
	require.NoError(t, relay.Begin())
	require.NoError(t, relay.ReceiveEvent(domain.EventStarting))
	require.NoError(t, relay.ReceiveEvent(domain.EventRebooting))

	require.Len(t, got, 3)
	assert.Equal(t, domain.EventStarting, got[0].(domain.LifecycleUpdateEvent).Value)
	assert.Equal(t, domain.EventRebooting, got[1].(domain.LifecycleUpdateEvent).Value)
	assert.False(t, got[2].(domain.BridgeStateUpdateEvent).Value)
}
