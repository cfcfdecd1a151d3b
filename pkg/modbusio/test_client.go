package modbusio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/simonvetter/modbus"
)

var ErrIllegalAddress = errors.New("illegal data address")

// TestClient is an in-memory modbus slave for tests and for running without hardware.
type TestClient struct {
	mu        sync.Mutex
	Coils     map[uint16]bool
	Inputs    map[uint16]bool
	Holding   map[uint16]uint16
	InputRegs map[uint16]uint16
	Fail      error
	Opened    bool
}

func NewTestClient() *TestClient {
	return &TestClient{
		Coils:     map[uint16]bool{},
		Inputs:    map[uint16]bool{},
		Holding:   map[uint16]uint16{},
		InputRegs: map[uint16]uint16{},
	}
}

func (c *TestClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Opened = true
	return c.Fail
}

func (c *TestClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Opened = false
	return nil
}

func (c *TestClient) ReadCoils(addr uint16, quantity uint16) ([]bool, error) {
	return c.readBits(c.Coils, addr, quantity)
}

func (c *TestClient) ReadDiscreteInputs(addr uint16, quantity uint16) ([]bool, error) {
	return c.readBits(c.Inputs, addr, quantity)
}

func (c *TestClient) WriteCoil(addr uint16, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return c.Fail
	}
	c.Coils[addr] = value
	return nil
}

func (c *TestClient) ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return nil, c.Fail
	}
	bank := c.Holding
	if regType == modbus.INPUT_REGISTER {
		bank = c.InputRegs
	}
	values := make([]uint16, quantity)
	for i := range values {
		v, ok := bank[addr+uint16(i)]
		if !ok {
			return nil, fmt.Errorf("register %d: %w", addr+uint16(i), ErrIllegalAddress)
		}
		values[i] = v
	}
	return values, nil
}

func (c *TestClient) WriteRegister(addr uint16, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return c.Fail
	}
	c.Holding[addr] = value
	return nil
}

// ReadUint32 uses the library's default big-endian, high-word-first layout.
func (c *TestClient) ReadUint32(addr uint16, regType modbus.RegType) (uint32, error) {
	regs, err := c.ReadRegisters(addr, 2, regType)
	if err != nil {
		return 0, err
	}
	return uint32(regs[0])<<16 | uint32(regs[1]), nil
}

func (c *TestClient) WriteUint32(addr uint16, value uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return c.Fail
	}
	c.Holding[addr] = uint16(value >> 16)
	c.Holding[addr+1] = uint16(value)
	return nil
}

func (c *TestClient) readBits(bank map[uint16]bool, addr uint16, quantity uint16) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return nil, c.Fail
	}
	values := make([]bool, quantity)
	for i := range values {
		values[i] = bank[addr+uint16(i)]
	}
	return values, nil
}

// ensure interface compliance
var _ Client = (*TestClient)(nil)
