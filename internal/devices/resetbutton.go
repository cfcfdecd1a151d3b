package devices

import (
	"sync"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/hal"
	"github.com/berfenger/sensorhub/internal/storage"

	"go.uber.org/zap"
)

const (
	signalReset           uint32 = 0
	resetButtonConfigFile        = "ResetButton.json"
	resetButtonTask              = "ResetButton"

	ResetHoldDuration = 5 * time.Second
	ResetPollPeriod   = 10 * time.Millisecond

	ModeInput         = "Input"
	ModeInputPullUp   = "Input pull-up"
	ModeInputPullDown = "Input pull-down"
)

var modeOptions = []string{ModeInput, ModeInputPullUp, ModeInputPullDown}

type ResetButtonConfig struct {
	Pin    int    `json:"pin"`
	Mode   Choice `json:"mode"`
	Active Choice `json:"active"`
}

// ResetButton wipes storage and restarts the hub, either on the "reset" signal or when
// its input is held at the active level for ResetHoldDuration.
type ResetButton struct {
	mu          sync.Mutex
	desc        domain.DeviceDescription
	config      ResetButtonConfig
	pins        hal.PinBank
	pin         hal.Pin
	held        time.Duration
	resetting   bool
	task        taskSlot
	broadcaster port.EventBroadcaster
	store       *storage.Store
	restart     func() error
	file        configFile
	logger      *zap.Logger
}

func NewResetButton(pins hal.PinBank, pin int, store *storage.Store, tasks port.TaskRegistrar, broadcaster port.EventBroadcaster, restart func() error, logger *zap.Logger) *ResetButton {
	return &ResetButton{
		desc: domain.DeviceDescription{
			SignalCount: 1,
			Kind:        "button",
			Name:        "Reset Button",
			Signals:     map[string]uint32{"reset": signalReset},
			ID:          0,
		},
		config: ResetButtonConfig{
			Pin:    pin,
			Mode:   newChoice(ModeInputPullUp, modeOptions),
			Active: newChoice(ActiveLow, activeOptions),
		},
		pins:        pins,
		task:        taskSlot{tasks: tasks},
		broadcaster: broadcaster,
		store:       store,
		restart:     restart,
		file:        configFile{store: store, path: receiverConfigDir + resetButtonConfigFile},
		logger:      logger.With(zap.String("device", "resetbutton")),
	}
}

func (r *ResetButton) Begin() error {
	config, ok, err := r.file.load()
	if err != nil {
		return err
	}
	if !ok {
		r.mu.Lock()
		config = encodeConfig(r.config)
		r.mu.Unlock()
	}
	return r.SetConfig(config)
}

func (r *ResetButton) Description() domain.DeviceDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desc.Copy()
}

func (r *ResetButton) ReceiveSignal(signal uint32, _ string) (domain.Response, error) {
	if signal != signalReset {
		return domain.Response{}, unknownSignal(signal)
	}
	if err := r.reset(); err != nil {
		return domain.Response{}, err
	}
	return okResponse, nil
}

func (r *ResetButton) GetConfig() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return encodeConfig(r.config)
}

func (r *ResetButton) SetConfig(config string) error {
	next := ResetButtonConfig{}
	if err := decodeConfig(config, &next); err != nil {
		return err
	}
	mode, err := next.Mode.resolve(modeOptions)
	if err != nil {
		return invalidConfig(err)
	}
	active, err := next.Active.resolve(activeOptions)
	if err != nil {
		return invalidConfig(err)
	}
	next.Mode, next.Active = mode, active
	pin, err := r.pins.Pin(next.Pin)
	if err != nil {
		return invalidConfig(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.task.replace(resetButtonTask, ResetPollPeriod, r.runTask, func() error {
		return r.file.save(encodeConfig(next))
	})
	if err != nil {
		return err
	}
	r.config = next
	r.pin = pin
	r.held = 0
	return nil
}

// runTask tracks how long the button has been held. Every tick counts, the period
// is only a hint for the host loop.
func (r *ResetButton) runTask(tick *port.Tick) error {
	tick.Reset()
	r.mu.Lock()
	pressed, err := r.pressed()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if !pressed {
		r.held = 0
		r.mu.Unlock()
		return nil
	}
	r.held += tick.Elapsed
	trigger := r.held >= ResetHoldDuration
	if trigger {
		r.held = 0
	}
	r.mu.Unlock()

	if trigger {
		r.logger.Warn("resetbutton@task button held, resetting")
		return r.reset()
	}
	return nil
}

func (r *ResetButton) pressed() (bool, error) {
	if r.pin == nil {
		return false, nil
	}
	level, err := r.pin.Read()
	if err != nil {
		return false, err
	}
	return level == activeLevel(r.config.Active.Current), nil
}

func (r *ResetButton) reset() error {
	r.mu.Lock()
	if r.resetting {
		r.mu.Unlock()
		return nil
	}
	r.resetting = true
	r.mu.Unlock()

	r.logger.Warn("resetbutton@reset reset requested")
	if err := r.broadcaster.Broadcast(domain.EventRebooting); err != nil {
		r.logger.Error("resetbutton@reset broadcast failed", zap.Error(err))
	}
	if err := r.store.Wipe(); err != nil {
		r.mu.Lock()
		r.resetting = false
		r.mu.Unlock()
		return err
	}
	if r.restart == nil {
		return nil
	}
	return r.restart()
}

// ensure interface compliance
var _ port.SignalReceiver = (*ResetButton)(nil)
