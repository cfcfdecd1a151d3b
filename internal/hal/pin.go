package hal

import (
	"fmt"
	"sync"

	"github.com/berfenger/sensorhub/pkg/modbusio"
)

// PinBank hands out digital pins by number.
type PinBank interface {
	Pin(number int) (Pin, error)
}

type Pin interface {
	Number() int
	Write(high bool) error
	Read() (bool, error)
}

// MemoryPinBank keeps pin levels in memory.
type MemoryPinBank struct {
	mu     sync.Mutex
	levels map[int]bool
	max    int
}

func NewMemoryPinBank(max int) *MemoryPinBank {
	return &MemoryPinBank{levels: map[int]bool{}, max: max}
}

func (b *MemoryPinBank) Pin(number int) (Pin, error) {
	if number < 0 || number >= b.max {
		return nil, fmt.Errorf("pin %d outside 0..%d", number, b.max-1)
	}
	return &memoryPin{bank: b, number: number}, nil
}

// Level returns the current level of a pin.
func (b *MemoryPinBank) Level(number int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels[number]
}

// Set drives a pin from outside, e.g. a pressed button.
func (b *MemoryPinBank) Set(number int, high bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels[number] = high
}

type memoryPin struct {
	bank   *MemoryPinBank
	number int
}

func (p *memoryPin) Number() int { return p.number }

func (p *memoryPin) Write(high bool) error {
	p.bank.Set(p.number, high)
	return nil
}

func (p *memoryPin) Read() (bool, error) {
	return p.bank.Level(p.number), nil
}

// ModbusPinBank maps pin numbers onto coils of a remote I/O module. Reads use the
// discrete inputs at the same address when inputs is set.
type ModbusPinBank struct {
	client modbusio.Client
	offset uint16
	inputs bool
}

func NewModbusPinBank(client modbusio.Client, offset uint16, inputs bool) *ModbusPinBank {
	return &ModbusPinBank{client: client, offset: offset, inputs: inputs}
}

func (b *ModbusPinBank) Pin(number int) (Pin, error) {
	if number < 0 || number > 0xFFFF-int(b.offset) {
		return nil, fmt.Errorf("pin %d outside coil range", number)
	}
	return &modbusPin{bank: b, number: number}, nil
}

type modbusPin struct {
	bank   *ModbusPinBank
	number int
}

func (p *modbusPin) Number() int { return p.number }

func (p *modbusPin) addr() uint16 {
	return p.bank.offset + uint16(p.number)
}

func (p *modbusPin) Write(high bool) error {
	return p.bank.client.WriteCoil(p.addr(), high)
}

func (p *modbusPin) Read() (bool, error) {
	var (
		values []bool
		err    error
	)
	if p.bank.inputs {
		values, err = p.bank.client.ReadDiscreteInputs(p.addr(), 1)
	} else {
		values, err = p.bank.client.ReadCoils(p.addr(), 1)
	}
	if err != nil {
		return false, err
	}
	return values[0], nil
}
