package registry

import (
	"fmt"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"

	"go.uber.org/zap"
)

// Listing is one entry of DescribeAll.
type Listing struct {
	PositionID  domain.PositionID `json:"positionID"`
	Description any               `json:"description"`
}

// Registry holds devices in registration order. Registration happens during start-up
// only; afterwards the slice is never resized and reads need no locking.
type Registry[D port.Device] struct {
	kind     string
	devices  []D
	name     func(D) string
	describe func(D) any
	validate func(D) error
	logger   *zap.Logger
}

func NewRegistry[D port.Device](kind string, name func(D) string, describe func(D) any, logger *zap.Logger) *Registry[D] {
	return &Registry[D]{
		kind:     kind,
		name:     name,
		describe: describe,
		logger:   logger.With(zap.String("registry", kind)),
	}
}

// SetValidator installs a check run on each device right after its Begin succeeds.
// A validation failure is reported like a Begin failure.
func (r *Registry[D]) SetValidator(validate func(D) error) {
	r.validate = validate
}

// Register appends a device and returns its position. It cannot fail.
func (r *Registry[D]) Register(device D) domain.PositionID {
	r.devices = append(r.devices, device)
	return domain.PositionID(len(r.devices) - 1)
}

func (r *Registry[D]) Len() int {
	return len(r.devices)
}

func (r *Registry[D]) Kind() string {
	return r.kind
}

// Get returns the device at id or ErrOutOfRange.
func (r *Registry[D]) Get(id domain.PositionID) (D, error) {
	if id < 0 || int(id) >= len(r.devices) {
		var zero D
		return zero, fmt.Errorf("%s %d: %w", r.kind, id, domain.ErrOutOfRange)
	}
	return r.devices[id], nil
}

// Name returns the device's current name, or "" for an invalid id.
func (r *Registry[D]) Name(id domain.PositionID) string {
	d, err := r.Get(id)
	if err != nil {
		return ""
	}
	return r.name(d)
}

// BeginAll starts every device in registration order and stops at the first failure.
func (r *Registry[D]) BeginAll() error {
	for i, d := range r.devices {
		id := domain.PositionID(i)
		if err := r.begin(d); err != nil {
			r.logger.Error("registry@begin could not start device", zap.Int("position", i), zap.String("name", r.name(d)), zap.Error(err))
			return &domain.DeviceError{
				PositionID: id,
				Name:       r.name(d),
				Err:        fmt.Errorf("%w: %w", domain.ErrDeviceBeginFailed, err),
			}
		}
		r.logger.Info("registry@begin started device", zap.Int("position", i), zap.String("name", r.name(d)))
	}
	return nil
}

func (r *Registry[D]) begin(d D) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if err := d.Begin(); err != nil {
		return err
	}
	if r.validate != nil {
		return r.validate(d)
	}
	return nil
}

// DescribeAll lists every device with its position, in registration order.
func (r *Registry[D]) DescribeAll() []Listing {
	listings := make([]Listing, 0, len(r.devices))
	for i, d := range r.devices {
		listings = append(listings, Listing{
			PositionID:  domain.PositionID(i),
			Description: r.describe(d),
		})
	}
	return listings
}

func (r *Registry[D]) GetConfig(id domain.PositionID) (string, error) {
	d, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return d.GetConfig(), nil
}

func (r *Registry[D]) SetConfig(id domain.PositionID, config string) error {
	d, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := d.SetConfig(config); err != nil {
		r.logger.Warn("registry@config rejected", zap.Int("position", int(id)), zap.String("name", r.name(d)), zap.Error(err))
		return err
	}
	return nil
}
