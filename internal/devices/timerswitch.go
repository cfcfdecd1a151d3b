package devices

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/hal"
	"github.com/berfenger/sensorhub/internal/storage"

	"go.uber.org/zap"
)

const TimerSwitchPeriod = 30 * time.Second

type TimerSwitchConfig struct {
	Pin     int    `json:"pin"`
	Name    string `json:"name"`
	OnTime  string `json:"onTime"`
	OffTime string `json:"offTime"`
	Enabled bool   `json:"enabled"`
	Active  Choice `json:"active"`
}

type clockTime struct {
	hour, minute int
}

func parseClock(s string) (clockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return clockTime{}, fmt.Errorf("time %q is not HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return clockTime{}, fmt.Errorf("time %q: bad hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return clockTime{}, fmt.Errorf("time %q: bad minute", s)
	}
	return clockTime{hour: hour, minute: minute}, nil
}

func (c clockTime) matches(t time.Time) bool {
	return t.Hour() == c.hour && t.Minute() == c.minute
}

// TimerSwitch is an output that also switches itself on and off at configured
// times of day. The check runs as a scheduler task named after the switch.
type TimerSwitch struct {
	mu      sync.Mutex
	desc    domain.DeviceDescription
	config  TimerSwitchConfig
	on, off clockTime
	pins    hal.PinBank
	pin     hal.Pin
	task    taskSlot
	now     func() time.Time
	file    configFile
	logger  *zap.Logger
}

func NewTimerSwitch(pins hal.PinBank, pin int, fileName string, store *storage.Store, tasks port.TaskRegistrar, now func() time.Time, logger *zap.Logger) *TimerSwitch {
	if now == nil {
		now = time.Now
	}
	return &TimerSwitch{
		desc: domain.DeviceDescription{
			SignalCount: 1,
			Kind:        "output",
			Name:        "Timer Switch",
			Signals:     map[string]uint32{"state": signalState},
			ID:          0,
		},
		config: TimerSwitchConfig{
			Pin:     pin,
			Name:    "Timer Switch",
			OnTime:  "9:30",
			OffTime: "22:15",
			Enabled: false,
			Active:  newChoice(ActiveHigh, activeOptions),
		},
		pins:   pins,
		task:   taskSlot{tasks: tasks},
		now:    now,
		file:   configFile{store: store, path: receiverConfigDir + fileName},
		logger: logger.With(zap.String("device", "timerswitch"), zap.String("file", fileName)),
	}
}

// WithName sets the name used until a stored config overrides it. It also names
// the scheduler task, so switches sharing a scheduler need distinct names.
func (s *TimerSwitch) WithName(name string) *TimerSwitch {
	s.config.Name = name
	s.desc.Name = name
	return s
}

func (s *TimerSwitch) Begin() error {
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

func (s *TimerSwitch) Description() domain.DeviceDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc.Copy()
}

func (s *TimerSwitch) ReceiveSignal(signal uint32, payload string) (domain.Response, error) {
	if signal != signalState {
		return domain.Response{}, unknownSignal(signal)
	}
	level, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return domain.Response{}, fmt.Errorf("state payload %q: %w", payload, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pin == nil {
		return domain.Response{}, fmt.Errorf("timer switch %s not started", s.config.Name)
	}
	if err := s.pin.Write(level != 0); err != nil {
		return domain.Response{}, err
	}
	return okResponse, nil
}

func (s *TimerSwitch) GetConfig() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encodeConfig(s.config)
}

func (s *TimerSwitch) SetConfig(config string) error {
	next := TimerSwitchConfig{}
	if err := decodeConfig(config, &next); err != nil {
		return err
	}
	active, err := next.Active.resolve(activeOptions)
	if err != nil {
		return invalidConfig(err)
	}
	next.Active = active
	on, err := parseClock(next.OnTime)
	if err != nil {
		return invalidConfig(err)
	}
	off, err := parseClock(next.OffTime)
	if err != nil {
		return invalidConfig(err)
	}
	pin, err := s.pins.Pin(next.Pin)
	if err != nil {
		return invalidConfig(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	taskName := ""
	if next.Enabled {
		taskName = next.Name
	}
	err = s.task.replace(taskName, TimerSwitchPeriod, s.runTask, func() error {
		return s.file.save(encodeConfig(next))
	})
	if err != nil {
		return err
	}
	s.config = next
	s.on, s.off = on, off
	s.pin = pin
	s.desc.Name = next.Name
	return nil
}

func (s *TimerSwitch) runTask(tick *port.Tick) error {
	if !tick.Due() {
		return nil
	}
	tick.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.Enabled || s.pin == nil {
		return nil
	}
	activeHigh := activeLevel(s.config.Active.Current)
	current, err := s.pin.Read()
	if err != nil {
		return err
	}
	now := s.now()
	switch {
	case current != activeHigh && s.on.matches(now):
		s.logger.Info("timerswitch@task turning on", zap.String("name", s.config.Name))
		return s.pin.Write(activeHigh)
	case current == activeHigh && s.off.matches(now):
		s.logger.Info("timerswitch@task turning off", zap.String("name", s.config.Name))
		return s.pin.Write(!activeHigh)
	}
	return nil
}

// ensure interface compliance
var _ port.SignalReceiver = (*TimerSwitch)(nil)
