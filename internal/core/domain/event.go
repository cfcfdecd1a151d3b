package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// LifecycleUpdateEvent carries a broadcast lifecycle event onto the actor event stream.
type LifecycleUpdateEvent struct {
	SensorUpdateEventMixIn
	Value Event
}

// MeasurementsUpdatedEvent is published after every successful poll.
type MeasurementsUpdatedEvent struct {
	Measurements []Measurement
}
