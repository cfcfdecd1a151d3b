package service

import (
	"fmt"
	"sync"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/core/registry"

	"go.uber.org/zap"
)

// SensorRegistry is the registry of sensors.
type SensorRegistry = registry.Registry[port.Sensor]

func NewSensorRegistry(logger *zap.Logger) *SensorRegistry {
	return registry.NewRegistry[port.Sensor]("sensor",
		func(d port.Sensor) string { return d.Description().Name },
		func(d port.Sensor) any { return newSensorView(d.Description()) },
		logger)
}

type sensorView struct {
	domain.SensorDescription
	ParameterQuantity int                `json:"parameterQuantity"`
	Parameters        []domain.Parameter `json:"parameters"`
}

func newSensorView(desc domain.SensorDescription) sensorView {
	desc = desc.Copy()
	return sensorView{SensorDescription: desc, ParameterQuantity: desc.ParameterQuantity(), Parameters: desc.Parameters}
}

// MeasurementCache keeps the readings of the last fully successful poll.
type MeasurementCache struct {
	sensors  *SensorRegistry
	pollMu   sync.Mutex
	mu       sync.RWMutex
	snapshot []domain.Measurement
	logger   *zap.Logger
}

func NewMeasurementCache(sensors *SensorRegistry, logger *zap.Logger) *MeasurementCache {
	return &MeasurementCache{
		sensors: sensors,
		logger:  logger.With(zap.String("component", "measurements")),
	}
}

// PollAll reads every sensor in registration order. The snapshot is replaced only when
// all of them succeed; on the first failure it is left as it was.
func (c *MeasurementCache) PollAll() error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	scratch := make([]domain.Measurement, 0, len(c.snapshot))
	for i := 0; i < c.sensors.Len(); i++ {
		id := domain.PositionID(i)
		sensor, err := c.sensors.Get(id)
		if err != nil {
			return err
		}
		desc := sensor.Description()
		values, err := c.measure(sensor)
		if err == nil && len(values) != desc.ParameterQuantity() {
			err = fmt.Errorf("got %d values for %d parameters", len(values), desc.ParameterQuantity())
		}
		if err != nil {
			c.logger.Warn("measurements@poll sensor failed", zap.Int("position", i), zap.String("name", desc.Name), zap.Error(err))
			return &domain.DeviceError{
				PositionID: id,
				Name:       desc.Name,
				Err:        fmt.Errorf("%w: %w", domain.ErrMeasurementFailed, err),
			}
		}
		for j, p := range desc.Parameters {
			scratch = append(scratch, domain.Measurement{
				Parameter: p.Name,
				Value:     values[j],
				Unit:      p.Unit,
			})
		}
	}

	c.mu.Lock()
	c.snapshot = scratch
	c.mu.Unlock()
	return nil
}

func (c *MeasurementCache) measure(sensor port.Sensor) (values []float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return sensor.TakeMeasurement()
}

// Snapshot returns a copy of the last successful poll, empty before the first one.
func (c *MeasurementCache) Snapshot() []domain.Measurement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Measurement{}, c.snapshot...)
}

// Parameters lists every parameter of every registered sensor, in snapshot order.
func (c *MeasurementCache) Parameters() []domain.Parameter {
	var params []domain.Parameter
	for i := 0; i < c.sensors.Len(); i++ {
		sensor, err := c.sensors.Get(domain.PositionID(i))
		if err != nil {
			continue
		}
		params = append(params, sensor.Description().Parameters...)
	}
	return params
}

// Calibrate relays one step to the sensor. Progress between steps is the sensor's business.
func (c *MeasurementCache) Calibrate(id domain.PositionID, step int) (domain.CalibrationResult, string, error) {
	sensor, err := c.sensors.Get(id)
	if err != nil {
		return domain.CalibrationError, "", err
	}
	result, message := sensor.Calibrate(step)
	c.logger.Info("measurements@calibrate", zap.Int("position", int(id)), zap.Int("step", step), zap.Stringer("result", result))
	return result, message, nil
}

// ensure interface compliance
var _ port.MeasurementSource = (*MeasurementCache)(nil)
