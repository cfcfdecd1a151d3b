package modbusio

import (
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Client is the subset of a modbus master the hub devices use.
type Client interface {
	Open() error
	Close() error
	ReadCoils(addr uint16, quantity uint16) ([]bool, error)
	ReadDiscreteInputs(addr uint16, quantity uint16) ([]bool, error)
	WriteCoil(addr uint16, value bool) error
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegister(addr uint16, value uint16) error
	ReadUint32(addr uint16, regType modbus.RegType) (uint32, error)
	WriteUint32(addr uint16, value uint32) error
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

// NewClient creates a client for url (tcp://host:port or rtu:///dev/ttyUSB0) talking
// to unitID. The connection is not opened.
func NewClient(url string, unitID uint8, timeout time.Duration, logger *zap.Logger, instrumentation *ModbusInstrument) (*ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	// instrumentation
	var inst []ModbusInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", url)).With(zap.Uint8("unit", unitID)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	if err = client.SetUnitId(unitID); err != nil {
		return nil, err
	}
	return &ModbusClient{
		client:     client,
		instrument: inst,
	}, nil
}

func traceLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus call", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func (c *ModbusClient) Open() error {
	return c.client.Open()
}

func (c *ModbusClient) Close() error {
	return c.client.Close()
}

func (c *ModbusClient) ReadCoils(addr uint16, quantity uint16) ([]bool, error) {
	defer RecordTimer("ReadCoils", c.instrument)()
	return c.client.ReadCoils(addr, quantity)
}

func (c *ModbusClient) ReadDiscreteInputs(addr uint16, quantity uint16) ([]bool, error) {
	defer RecordTimer("ReadDiscreteInputs", c.instrument)()
	return c.client.ReadDiscreteInputs(addr, quantity)
}

func (c *ModbusClient) WriteCoil(addr uint16, value bool) error {
	defer RecordTimer("WriteCoil", c.instrument)()
	return c.client.WriteCoil(addr, value)
}

func (c *ModbusClient) ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", c.instrument)()
	return c.client.ReadRegisters(addr, quantity, regType)
}

func (c *ModbusClient) WriteRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", c.instrument)()
	return c.client.WriteRegister(addr, value)
}

func (c *ModbusClient) ReadUint32(addr uint16, regType modbus.RegType) (uint32, error) {
	defer RecordTimer("ReadUint32", c.instrument)()
	return c.client.ReadUint32(addr, regType)
}

func (c *ModbusClient) WriteUint32(addr uint16, value uint32) error {
	defer RecordTimer("WriteUint32", c.instrument)()
	return c.client.WriteUint32(addr, value)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

// ApplySF scales a raw register by 10^sf, sf being a signed scale factor.
func ApplySF(number uint16, sf int16) float64 {
	return float64(number) * math.Pow(10, float64(sf))
}

func ApplySFint16(number int16, sf int16) float64 {
	return float64(number) * math.Pow(10, float64(sf))
}

// ensure interface compliance
var _ Client = (*ModbusClient)(nil)
