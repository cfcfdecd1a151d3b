package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange            = errors.New("position id out of range")
	ErrUnknownSignal         = errors.New("unknown signal")
	ErrInvalidSignalName     = errors.New("invalid signal name")
	ErrQueueFull             = errors.New("signal queue full")
	ErrDispatcherStopped     = errors.New("signal dispatcher stopped")
	ErrDuplicate             = errors.New("duplicate task name")
	ErrDeviceBeginFailed     = errors.New("device begin failed")
	ErrDeserializationFailed = errors.New("config deserialization failed")
	ErrDispatchFailed        = errors.New("signal dispatch failed")
	ErrMeasurementFailed     = errors.New("measurement failed")
)

// DeviceError reports which registered device an operation failed on.
type DeviceError struct {
	PositionID PositionID
	Name       string
	Err        error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %d (%s): %v", e.PositionID, e.Name, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// FailedPosition returns the position carried by a DeviceError in err's chain.
func FailedPosition(err error) (PositionID, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.PositionID, true
	}
	return 0, false
}
