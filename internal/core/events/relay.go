package events

import (
	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"

	"github.com/asynkron/protoactor-go/eventstream"
)

// EventRelay is an event observer that republishes lifecycle events on the actor
// event stream, where the MQTT bridge picks them up.
type EventRelay struct {
	stream *eventstream.EventStream
}

func NewEventRelay(stream *eventstream.EventStream) *EventRelay {
	return &EventRelay{stream: stream}
}

func (r *EventRelay) Begin() error {
	return nil
}

func (r *EventRelay) ReceiveEvent(event domain.Event) error {
	for _, ev := range LifecycleToUpdateEvents(event) {
		r.stream.Publish(ev)
	}
	return nil
}

// ensure interface compliance
var _ port.EventReceiver = (*EventRelay)(nil)
