package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/storage"
	"github.com/berfenger/sensorhub/pkg/modbusio"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type RegisterConfig struct {
	Parameter   string  `json:"parameter"`
	Unit        string  `json:"unit"`
	Address     uint16  `json:"address"`
	Input       bool    `json:"input"`
	Signed      bool    `json:"signed"`
	ScaleFactor int16   `json:"scale_factor"`
	Offset      float64 `json:"offset"`
}

type ModbusSensorConfig struct {
	Name      string           `json:"name"`
	Registers []RegisterConfig `json:"registers"`
}

// ModbusSensor reads one register per parameter and scales it by 10^scale_factor.
// Calibration is a two step zero-offset procedure: step 0 asks for the zero
// reference, step 1 stores the current readings as offsets.
type ModbusSensor struct {
	mu          sync.Mutex
	desc        domain.SensorDescription
	config      ModbusSensorConfig
	client      modbusio.Client
	calibrating bool
	file        configFile
	logger      *zap.Logger
}

func NewModbusSensor(client modbusio.Client, fileName string, defaults ModbusSensorConfig, store *storage.Store, logger *zap.Logger) *ModbusSensor {
	return &ModbusSensor{
		desc: domain.SensorDescription{
			Kind: "modbus",
			Name: defaults.Name,
			ID:   0,
		},
		config: defaults,
		client: client,
		file:   configFile{store: store, path: sensorConfigDir + fileName},
		logger: logger.With(zap.String("device", "modbussensor"), zap.String("file", fileName)),
	}
}

func (s *ModbusSensor) Begin() error {
	config, ok, err := s.file.load()
	if err != nil {
		return err
	}
	if !ok {
		s.mu.Lock()
		config = encodeConfig(s.config)
		s.mu.Unlock()
	}
	return s.SetConfig(config)
}

func (s *ModbusSensor) Description() domain.SensorDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc.Copy()
}

func (s *ModbusSensor) TakeMeasurement() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readRaw()
	if err != nil {
		return nil, err
	}
	for i, r := range s.config.Registers {
		values[i] -= r.Offset
	}
	return values, nil
}

func (s *ModbusSensor) readRaw() ([]float64, error) {
	values := make([]float64, len(s.config.Registers))
	for i, r := range s.config.Registers {
		regType := modbus.HOLDING_REGISTER
		if r.Input {
			regType = modbus.INPUT_REGISTER
		}
		regs, err := s.client.ReadRegisters(r.Address, 1, regType)
		if err != nil {
			return nil, fmt.Errorf("%s at %d: %w", r.Parameter, r.Address, err)
		}
		if r.Signed {
			values[i] = modbusio.ApplySFint16(int16(regs[0]), r.ScaleFactor)
		} else {
			values[i] = modbusio.ApplySF(regs[0], r.ScaleFactor)
		}
	}
	return values, nil
}

func (s *ModbusSensor) Calibrate(step int) (domain.CalibrationResult, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch step {
	case 0:
		s.calibrating = true
		return domain.CalibrationNext, "Bring every input to its zero reference, then continue"
	case 1:
		if !s.calibrating {
			return domain.CalibrationError, "Calibration was not started"
		}
		s.calibrating = false
		raw, err := s.readRaw()
		if err != nil {
			return domain.CalibrationError, err.Error()
		}
		next := s.config
		next.Registers = append([]RegisterConfig(nil), s.config.Registers...)
		for i := range next.Registers {
			next.Registers[i].Offset = raw[i]
		}
		if err := s.file.save(encodeConfig(next)); err != nil {
			return domain.CalibrationError, err.Error()
		}
		s.config = next
		s.logger.Info("modbussensor@calibrate offsets stored", zap.Float64s("offsets", raw))
		return domain.CalibrationDone, "Calibration complete"
	}
	s.calibrating = false
	return domain.CalibrationError, fmt.Sprintf("No calibration step %d", step)
}

func (s *ModbusSensor) GetConfig() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encodeConfig(s.config)
}

func (s *ModbusSensor) SetConfig(config string) error {
	next := ModbusSensorConfig{}
	if err := decodeConfig(config, &next); err != nil {
		return err
	}
	if len(next.Registers) == 0 {
		return invalidConfig(errors.New("no registers"))
	}
	params := make([]domain.Parameter, len(next.Registers))
	for i, r := range next.Registers {
		if r.Parameter == "" {
			return invalidConfig(fmt.Errorf("register %d has no parameter name", i))
		}
		params[i] = domain.Parameter{Name: r.Parameter, Unit: r.Unit}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.save(encodeConfig(next)); err != nil {
		return err
	}
	s.config = next
	s.desc.Name = next.Name
	s.desc.Parameters = params
	s.calibrating = false
	return nil
}

// ensure interface compliance
var _ port.Sensor = (*ModbusSensor)(nil)
