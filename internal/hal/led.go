package hal

import (
	"sync"

	"github.com/berfenger/sensorhub/pkg/modbusio"
)

type Color struct {
	R, G, B uint8
}

func (c Color) RGB() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

var (
	Off    = Color{}
	Red    = Color{R: 255}
	Green  = Color{G: 255}
	Blue   = Color{B: 255}
	Yellow = Color{R: 255, G: 255}
	Purple = Color{R: 255, B: 255}
	Cyan   = Color{G: 255, B: 255}
	White  = Color{R: 255, G: 255, B: 255}
)

// LEDStrip is an addressable RGB strip.
type LEDStrip interface {
	Len() int
	Fill(c Color) error
}

// MemoryLEDStrip records what it was asked to show.
type MemoryLEDStrip struct {
	mu      sync.Mutex
	pixels  []Color
	History []Color
}

func NewMemoryLEDStrip(n int) *MemoryLEDStrip {
	return &MemoryLEDStrip{pixels: make([]Color, n)}
}

func (s *MemoryLEDStrip) Len() int { return len(s.pixels) }

func (s *MemoryLEDStrip) Fill(c Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pixels {
		s.pixels[i] = c
	}
	s.History = append(s.History, c)
	return nil
}

func (s *MemoryLEDStrip) Pixel(i int) Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pixels[i]
}

// ModbusLEDStrip writes the fill color as a 32-bit 0x00RRGGBB value into a pair of
// holding registers of an LED controller.
type ModbusLEDStrip struct {
	client modbusio.Client
	addr   uint16
	n      int
}

func NewModbusLEDStrip(client modbusio.Client, addr uint16, n int) *ModbusLEDStrip {
	return &ModbusLEDStrip{client: client, addr: addr, n: n}
}

func (s *ModbusLEDStrip) Len() int { return s.n }

func (s *ModbusLEDStrip) Fill(c Color) error {
	return s.client.WriteUint32(s.addr, c.RGB())
}

func ColorFromRGB(rgb uint32) Color {
	return Color{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb)}
}
