package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Hub      HubConfig      `mapstructure:"hub"`
	Storage  StorageConfig  `mapstructure:"storage"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
	Modbus   ModbusConfig   `mapstructure:"modbus"`
	Webhooks WebhooksConfig `mapstructure:"webhooks"`
	Devices  DevicesConfig  `mapstructure:"devices"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type HubConfig struct {
	TickIntervalMillis     uint32 `mapstructure:"tick_interval_millis"`
	MeasureIntervalMillis  uint32 `mapstructure:"measure_interval_millis"`
	MeasureEnabled         bool   `mapstructure:"measure_enabled"`
	MaintenanceCron        string `mapstructure:"maintenance_cron"`
	QueueCapacity          int    `mapstructure:"queue_capacity"`
	AdmissionTimeoutMillis uint32 `mapstructure:"admission_timeout_millis"`
	PollTimeoutMillis      uint32 `mapstructure:"poll_timeout_millis"`
}

type StorageConfig struct {
	Root   string
	Memory bool
}

type InfluxDBConfig struct {
	Enable bool
	URL    string `mapstructure:"url"`
	Token  string
	Org    string
	Bucket string
}

type ModbusConfig struct {
	Enable        bool
	URL           string `mapstructure:"url"`
	UnitId        uint8  `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
	CoilOffset    uint16 `mapstructure:"coil_offset"`
	LedRegister   uint16 `mapstructure:"led_register"`
}

type WebhooksConfig struct {
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
	Retries       int
}

type DevicesConfig struct {
	Outputs       []PinDeviceConfig  `mapstructure:"outputs"`
	TimerSwitches []PinDeviceConfig  `mapstructure:"timer_switches"`
	ResetButton   ResetButtonConfig  `mapstructure:"reset_button"`
	LedIndicator  LedIndicatorConfig `mapstructure:"led_indicator"`
	DataTemplate  bool               `mapstructure:"data_template"`
	DataLogger    bool               `mapstructure:"data_logger"`
	ModbusSensors []string           `mapstructure:"modbus_sensors"`
}

type PinDeviceConfig struct {
	Name string
	Pin  int
}

type ResetButtonConfig struct {
	Enable bool
	Pin    int
}

type LedIndicatorConfig struct {
	Mode string
	Pin  int
	Leds int
}

const (
	LED_INDICATOR_NONE  = "none"
	LED_INDICATOR_RGB   = "rgb"
	LED_INDICATOR_BLINK = "blink"
)

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func CheckHub(hub HubConfig) error {
	if hub.TickIntervalMillis < 10 {
		return fmt.Errorf("hub tick interval must be >= 10ms, got %d", hub.TickIntervalMillis)
	}
	if hub.QueueCapacity < 1 {
		return fmt.Errorf("hub queue capacity must be >= 1, got %d", hub.QueueCapacity)
	}
	if hub.MeasureEnabled && hub.MeasureIntervalMillis < 100 {
		return fmt.Errorf("hub measure interval must be >= 100ms, got %d", hub.MeasureIntervalMillis)
	}
	return nil
}

func CheckLedIndicator(mode string) error {
	switch mode {
	case "", LED_INDICATOR_NONE, LED_INDICATOR_RGB, LED_INDICATOR_BLINK:
		return nil
	}
	return fmt.Errorf("invalid led indicator mode %q", mode)
}
