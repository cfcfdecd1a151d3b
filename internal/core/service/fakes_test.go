package service

import (
	"errors"
	"sync"

	"github.com/berfenger/sensorhub/internal/core/domain"
)

type call struct {
	signal  uint32
	payload string
}

type fakeReceiver struct {
	mu       sync.Mutex
	desc     domain.DeviceDescription
	calls    []call
	config   string
	beginErr error
	fail     bool
	block    chan struct{}
}

func newFakeReceiver(name string, signals map[string]uint32) *fakeReceiver {
	return &fakeReceiver{
		desc: domain.DeviceDescription{
			SignalCount: uint32(len(signals)),
			Kind:        "fake",
			Name:        name,
			Signals:     signals,
		},
		config: `{"name":"` + name + `"}`,
	}
}

func (f *fakeReceiver) Begin() error { return f.beginErr }

func (f *fakeReceiver) GetConfig() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

func (f *fakeReceiver) SetConfig(config string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = config
	return nil
}

func (f *fakeReceiver) Description() domain.DeviceDescription { return f.desc }

func (f *fakeReceiver) ReceiveSignal(signal uint32, payload string) (domain.Response, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		panic("receiver exploded")
	}
	found := false
	for _, id := range f.desc.Signals {
		if id == signal {
			found = true
		}
	}
	if !found {
		return domain.Response{}, errors.New("no such signal")
	}
	f.calls = append(f.calls, call{signal: signal, payload: payload})
	return domain.TextResponse("ok:" + payload), nil
}

func (f *fakeReceiver) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeSensor struct {
	desc   domain.SensorDescription
	values []float64
	err    error
	steps  []int
}

func newFakeSensor(name string, values ...float64) *fakeSensor {
	params := make([]domain.Parameter, len(values))
	for i := range values {
		params[i] = domain.Parameter{Name: name + "_" + string(rune('a'+i)), Unit: "u"}
	}
	return &fakeSensor{
		desc:   domain.SensorDescription{Kind: "fake", Name: name, Parameters: params},
		values: values,
	}
}

func (f *fakeSensor) Begin() error                          { return nil }
func (f *fakeSensor) GetConfig() string                     { return "{}" }
func (f *fakeSensor) SetConfig(string) error                { return nil }
func (f *fakeSensor) Description() domain.SensorDescription { return f.desc }
func (f *fakeSensor) TakeMeasurement() ([]float64, error)   { return f.values, f.err }
func (f *fakeSensor) Calibrate(step int) (domain.CalibrationResult, string) {
	f.steps = append(f.steps, step)
	switch step {
	case 0:
		return domain.CalibrationNext, "remove load"
	case 1:
		return domain.CalibrationDone, "calibrated"
	}
	return domain.CalibrationError, "unexpected step"
}

type fakeObserver struct {
	name     string
	received *[]string
	err      error
}

func (o *fakeObserver) Begin() error { return o.err }

func (o *fakeObserver) ReceiveEvent(event domain.Event) error {
	*o.received = append(*o.received, o.name+":"+event.String())
	return o.err
}
