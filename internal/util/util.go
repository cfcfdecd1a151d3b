package util

import (
	"github.com/berfenger/sensorhub/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Enable:           false,
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "sensorhub",
			HADiscoveryTopic: "homeassistant",
		},
		Hub: config.HubConfig{
			TickIntervalMillis:     10,
			MeasureIntervalMillis:  100,
			MeasureEnabled:         true,
			MaintenanceCron:        "0 0 3 * * *",
			QueueCapacity:          15,
			AdmissionTimeoutMillis: 10,
			PollTimeoutMillis:      1000,
		},
		Storage: config.StorageConfig{
			Memory: true,
		},
		Modbus: config.ModbusConfig{
			Enable:        false,
			URL:           "tcp://-.-.-.-:502",
			UnitId:        1,
			TimeoutMillis: 1000,
		},
		Webhooks: config.WebhooksConfig{
			TimeoutMillis: 1000,
			Retries:       0,
		},
		Devices: config.DevicesConfig{
			Outputs:       []config.PinDeviceConfig{{Name: "Generic Output", Pin: 2}},
			TimerSwitches: []config.PinDeviceConfig{{Name: "Timer Switch", Pin: 3}},
			ResetButton:   config.ResetButtonConfig{Enable: true, Pin: 0},
			LedIndicator:  config.LedIndicatorConfig{Mode: config.LED_INDICATOR_RGB, Pin: 1, Leds: 1},
			DataTemplate:  true,
			DataLogger:    true,
			ModbusSensors: []string{"Meter"},
		},
		Port: 8080,
	}
}
