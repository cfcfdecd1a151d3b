package events

import (
	. "github.com/berfenger/sensorhub/internal/core/domain"
)

func MeasurementsToUpdateEvents(measurements []Measurement) []any {
	var events []any
	for _, m := range measurements {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: MeasurementSensorId(m.Parameter),
			},
			Value:    m.Value,
			Decimals: MEASUREMENT_VALUE_DECIMALS,
		})
	}
	return events
}

func LifecycleToUpdateEvents(event Event) []any {
	var events []any
	events = append(events, LifecycleUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LIFECYCLE,
		},
		Value: event,
	})
	switch event {
	case EventRebooting:
		events = append(events, BridgeStateUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BRIDGE_STATE,
			},
			Value: false,
		})
	case EventReady:
		events = append(events, BridgeStateUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_BRIDGE_STATE,
			},
			Value: true,
		})
	}
	return events
}

func QueueDepthUpdateEvent(depth int) any {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_QUEUED_SIGNALS,
		},
		Value:    float64(depth),
		Decimals: 0,
	}
}
