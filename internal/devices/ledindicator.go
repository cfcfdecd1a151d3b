package devices

import (
	"sync"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/hal"

	"go.uber.org/zap"
)

// indexed by domain.Event
var eventColors = []hal.Color{
	hal.ColorFromRGB(0x000000), // clear
	hal.ColorFromRGB(0xFF0000), // starting
	hal.ColorFromRGB(0x007F00), // ready
	hal.ColorFromRGB(0x0000FF), // updating
	hal.ColorFromRGB(0xFF6000), // rebooting
	hal.ColorFromRGB(0xFF00C4), // running
	hal.ColorFromRGB(0xFF2800), // wifi_config
	hal.ColorFromRGB(0x00C4FF), // error
}

// LEDIndicator shows lifecycle events either as a color on an RGB strip or as a
// number of blinks, int(event), on a single LED.
type LEDIndicator struct {
	mu       sync.Mutex
	strip    hal.LEDStrip
	pins     hal.PinBank
	pinNum   int
	pin      hal.Pin
	interval time.Duration
	logger   *zap.Logger
}

func NewRGBIndicator(strip hal.LEDStrip, logger *zap.Logger) *LEDIndicator {
	return &LEDIndicator{
		strip:  strip,
		logger: logger.With(zap.String("device", "led")),
	}
}

func NewBlinkIndicator(pins hal.PinBank, pin int, interval time.Duration, logger *zap.Logger) *LEDIndicator {
	return &LEDIndicator{
		pins:     pins,
		pinNum:   pin,
		interval: interval,
		logger:   logger.With(zap.String("device", "led")),
	}
}

func (l *LEDIndicator) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strip != nil {
		return l.strip.Fill(hal.Off)
	}
	pin, err := l.pins.Pin(l.pinNum)
	if err != nil {
		return err
	}
	l.pin = pin
	return l.pin.Write(false)
}

func (l *LEDIndicator) ReceiveEvent(event domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.strip != nil {
		color := hal.Off
		if int(event) >= 0 && int(event) < len(eventColors) {
			color = eventColors[event]
		}
		return l.strip.Fill(color)
	}
	if l.pin == nil {
		return nil
	}
	for i := 0; i < int(event); i++ {
		if err := l.pin.Write(true); err != nil {
			return err
		}
		time.Sleep(l.interval)
		if err := l.pin.Write(false); err != nil {
			return err
		}
		time.Sleep(l.interval)
	}
	return nil
}

// ensure interface compliance
var _ port.EventReceiver = (*LEDIndicator)(nil)
