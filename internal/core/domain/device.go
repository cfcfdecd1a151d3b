package domain

import (
	"regexp"
)

// PositionID addresses a device inside its registry. It is the index the device
// was registered at and never changes for the lifetime of the process.
type PositionID int

// DeviceDescription is owned by a signal receiver and describes what it is and which
// signals it understands.
type DeviceDescription struct {
	SignalCount uint32            `json:"signalQuantity"`
	Kind        string            `json:"type"`
	Name        string            `json:"name"`
	Signals     map[string]uint32 `json:"-"`
	ID          uint32            `json:"id"`
}

// Copy returns a description that does not share the signal map.
func (d DeviceDescription) Copy() DeviceDescription {
	signals := make(map[string]uint32, len(d.Signals))
	for name, id := range d.Signals {
		signals[name] = id
	}
	d.Signals = signals
	return d
}

// Parameter is one measured quantity of a sensor.
type Parameter struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// SensorDescription is owned by a sensor and lists the parameters it measures,
// in the order TakeMeasurement returns their values.
type SensorDescription struct {
	Kind       string      `json:"type"`
	Name       string      `json:"name"`
	ID         uint32      `json:"id"`
	Parameters []Parameter `json:"-"`
}

func (d SensorDescription) ParameterQuantity() int {
	return len(d.Parameters)
}

// Copy returns a description that does not share the parameter slice.
func (d SensorDescription) Copy() SensorDescription {
	d.Parameters = append([]Parameter(nil), d.Parameters...)
	return d
}

type Measurement struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// Response is what a receiver answers to an immediate dispatch.
type Response struct {
	JSON bool
	Body string
}

func JSONResponse(body string) Response {
	return Response{JSON: true, Body: body}
}

func TextResponse(body string) Response {
	return Response{JSON: false, Body: body}
}

// QueuedSignal is admitted to the dispatch queue as one unit.
type QueuedSignal struct {
	PositionID PositionID
	SignalID   uint32
	Payload    string
}

type CalibrationResult int

const (
	CalibrationError CalibrationResult = iota
	CalibrationDone
	CalibrationNext
)

func (r CalibrationResult) String() string {
	switch r {
	case CalibrationDone:
		return "done"
	case CalibrationNext:
		return "next"
	default:
		return "error"
	}
}

var signalNameRegexp = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidSignalName reports whether name is non-empty and made of letters, digits and
// underscores only.
func ValidSignalName(name string) bool {
	return signalNameRegexp.MatchString(name)
}
