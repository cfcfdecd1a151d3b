package devices

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/hal"
	"github.com/berfenger/sensorhub/internal/storage"

	"go.uber.org/zap"
)

const signalState uint32 = 0

type OutputConfig struct {
	Pin  int    `json:"pin"`
	Name string `json:"name"`
}

// GenericOutput drives one digital pin. Signal "state" takes an integer payload;
// non-zero sets the pin high.
type GenericOutput struct {
	mu     sync.Mutex
	desc   domain.DeviceDescription
	config OutputConfig
	pins   hal.PinBank
	pin    hal.Pin
	file   configFile
	logger *zap.Logger
}

func NewGenericOutput(pins hal.PinBank, pin int, fileName string, store *storage.Store, logger *zap.Logger) *GenericOutput {
	return &GenericOutput{
		desc: domain.DeviceDescription{
			SignalCount: 1,
			Kind:        "output",
			Name:        "Generic Output",
			Signals:     map[string]uint32{"state": signalState},
			ID:          0,
		},
		config: OutputConfig{Pin: pin, Name: "Generic Output"},
		pins:   pins,
		file:   configFile{store: store, path: receiverConfigDir + fileName},
		logger: logger.With(zap.String("device", "output"), zap.String("file", fileName)),
	}
}

// WithName sets the name used until a stored config overrides it.
func (o *GenericOutput) WithName(name string) *GenericOutput {
	o.config.Name = name
	o.desc.Name = name
	return o
}

func (o *GenericOutput) Begin() error {
	config, ok, err := o.file.load()
	if err != nil {
		return err
	}
	if !ok {
		o.mu.Lock()
		config = encodeConfig(o.config)
		o.mu.Unlock()
	}
	return o.SetConfig(config)
}

func (o *GenericOutput) Description() domain.DeviceDescription {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.desc.Copy()
}

func (o *GenericOutput) ReceiveSignal(signal uint32, payload string) (domain.Response, error) {
	if signal != signalState {
		return domain.Response{}, unknownSignal(signal)
	}
	level, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return domain.Response{}, fmt.Errorf("state payload %q: %w", payload, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pin == nil {
		return domain.Response{}, fmt.Errorf("output %s not started", o.config.Name)
	}
	if err := o.pin.Write(level != 0); err != nil {
		return domain.Response{}, err
	}
	o.logger.Debug("output@signal", zap.Int("pin", o.config.Pin), zap.Int("level", level))
	return okResponse, nil
}

func (o *GenericOutput) GetConfig() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return encodeConfig(o.config)
}

func (o *GenericOutput) SetConfig(config string) error {
	next := OutputConfig{}
	if err := decodeConfig(config, &next); err != nil {
		return err
	}
	pin, err := o.pins.Pin(next.Pin)
	if err != nil {
		return invalidConfig(err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.file.save(encodeConfig(next)); err != nil {
		return err
	}
	o.config = next
	o.pin = pin
	o.desc.Name = next.Name
	return nil
}

// ensure interface compliance
var _ port.SignalReceiver = (*GenericOutput)(nil)
