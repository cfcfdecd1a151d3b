package port

import (
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
)

// Device is the capability set shared by everything held in a registry.
// Implementations serialize access to their own state: they may be called from the
// dispatcher worker, the hub tick and API goroutines concurrently.
type Device interface {
	Begin() error
	GetConfig() string
	SetConfig(config string) error
}

type SignalReceiver interface {
	Device
	Description() domain.DeviceDescription
	ReceiveSignal(signal uint32, payload string) (domain.Response, error)
}

type Sensor interface {
	Device
	Description() domain.SensorDescription
	// TakeMeasurement returns one value per described parameter, in order.
	TakeMeasurement() ([]float64, error)
	// Calibrate runs one caller-driven step; progress between steps is kept by the sensor.
	Calibrate(step int) (domain.CalibrationResult, string)
}

type EventReceiver interface {
	Begin() error
	ReceiveEvent(event domain.Event) error
}

// EventBroadcaster is the part of the event bus devices are allowed to use.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}

// TaskRegistrar is the part of the task scheduler devices use at configuration time.
type TaskRegistrar interface {
	AddTask(name string, period time.Duration, callback TaskFunc) error
	RemoveTask(name string) bool
}

// TaskFunc is invoked on every scheduler tick. It decides with tick.Due whether enough
// time has passed and calls tick.Reset once it has done its work.
type TaskFunc func(tick *Tick) error

type Tick struct {
	Elapsed     time.Duration
	Accumulated time.Duration
	Period      time.Duration
	reset       bool
}

func (t *Tick) Due() bool {
	return t.Accumulated >= t.Period
}

func (t *Tick) Reset() {
	t.reset = true
}

func (t *Tick) ResetRequested() bool {
	return t.reset
}

// MeasurementSource gives formatters and loggers access to the measurement cache.
type MeasurementSource interface {
	PollAll() error
	Snapshot() []domain.Measurement
	Parameters() []domain.Parameter
}

// MeasurementSink receives every successful snapshot.
type MeasurementSink interface {
	WriteMeasurements(measurements []domain.Measurement) error
	Close()
}
