package main

import (
	"errors"
	"testing"

	"github.com/berfenger/sensorhub/internal/config"
	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type brokenObserver struct{}

func (brokenObserver) Begin() error                    { return nil }
func (brokenObserver) ReceiveEvent(domain.Event) error { return errors.New("led stuck") }

func TestSlugify(t *testing.T) {
	assert.Equal(t, "generic_output", slugify("Generic Output"))
	assert.Equal(t, "pump_2", slugify("  Pump #2 "))
	assert.Equal(t, "meter", slugify("Meter"))
}

func TestInitConfig(t *testing.T) {
	t.Setenv("SENSORHUB_HUB_QUEUE_CAPACITY", "3")
	t.Setenv("SENSORHUB_MQTT_BASE_TOPIC", "Garden_Hub")
	t.Setenv("SENSORHUB_LOG_LEVEL", "debug")
	t.Setenv("PORT", "9090")

	cfg, err := initConfig()
	require.NoError(t, err)
	assert.Equal(t, zap.DebugLevel, cfg.LogLevel)
	assert.Equal(t, uint(9090), cfg.Port)
	assert.Equal(t, 3, cfg.Hub.QueueCapacity)
	assert.Equal(t, uint32(10), cfg.Hub.TickIntervalMillis)
	assert.Equal(t, "garden_hub", cfg.MQTT.BaseTopic)
	assert.Equal(t, "homeassistant", cfg.MQTT.HADiscoveryTopic)
	assert.Equal(t, config.LED_INDICATOR_RGB, cfg.Devices.LedIndicator.Mode)
	assert.Equal(t, []config.PinDeviceConfig{{Name: "Generic Output", Pin: 2}}, cfg.Devices.Outputs)
}

func TestHardwareSimulation(t *testing.T) {
	cfg := config.Config{Devices: config.DevicesConfig{LedIndicator: config.LedIndicatorConfig{Mode: config.LED_INDICATOR_BLINK, Pin: 5}}}
	hw, err := initHardware(&cfg, zap.NewNop())
	require.NoError(t, err)
	defer hw.close()

	assert.NotNil(t, ledIndicator(&cfg, hw, zap.NewNop()))
	cfg.Devices.LedIndicator.Mode = config.LED_INDICATOR_NONE
	assert.Nil(t, ledIndicator(&cfg, hw, zap.NewNop()))

	pin, err := hw.outputs.Pin(3)
	require.NoError(t, err)
	require.NoError(t, pin.Write(true))
	level, err := hw.inputs.Pin(3)
	require.NoError(t, err)
	high, err := level.Read()
	require.NoError(t, err)
	assert.True(t, high)
}

func TestBroadcastFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := service.NewEventBus(zap.NewNop())
	bus.Subscribe(brokenObserver{})

	broadcast(bus, domain.EventReady, zap.New(core))

	entries := logs.FilterMessage("event broadcast failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, domain.EventReady.String(), entries[0].ContextMap()["event"])
	assert.Contains(t, entries[0].ContextMap()["error"], "led stuck")
}
