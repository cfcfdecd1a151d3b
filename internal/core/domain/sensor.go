package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE     = "bridge"
	SENSOR_ID_LIFECYCLE        = "lifecycle"
	SENSOR_ID_QUEUED_SIGNALS   = "queued_signals"
	STATE_CLASS_MEASUREMENT    = "measurement"
	DEVICE_CLASS_TEMPERATURE   = "temperature"
	DEVICE_CLASS_HUMIDITY      = "humidity"
	DEVICE_CLASS_PRESSURE      = "pressure"
	DEVICE_CLASS_VOLTAGE       = "voltage"
	DEVICE_CLASS_CURRENT       = "current"
	DEVICE_CLASS_POWER         = "power"
	DEVICE_CLASS_CONNECTIVITY  = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC    = "diagnostic"
	SENSOR_TYPE_SENSOR         = "sensor"
	SENSOR_TYPE_BINARY         = "binary_sensor"
	MEASUREMENT_VALUE_DECIMALS = 3
)

var sensorIdRegexp = regexp.MustCompile(`[^a-z0-9_]+`)

// MeasurementSensorId turns a parameter name into a topic-safe sensor id.
func MeasurementSensorId(parameter string) string {
	id := sensorIdRegexp.ReplaceAllString(strings.ToLower(parameter), "_")
	return "m_" + strings.Trim(id, "_")
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("sensorhub_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "SensorHub",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SensorHub %s", md5HashShort(baseTopic)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})
	// Last lifecycle event
	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(bridgeDevice),
		Id:             SENSOR_ID_LIFECYCLE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Lifecycle",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_LIFECYCLE),
		Icon:           "mdi:state-machine",
	})
	// Signal queue depth
	sensors = append(sensors, GenericSensor{
		Device:           IdDevice(bridgeDevice),
		Id:               SENSOR_ID_QUEUED_SIGNALS,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Queued signals",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:         uniqueId(bridgeDevice.Id, SENSOR_ID_QUEUED_SIGNALS),
		EnabledByDefault: optionalBool(false),
		Icon:             "mdi:tray-full",
	})

	return sensors
}

// MeasurementSensors describes one sensor entity per measured parameter.
func MeasurementSensors(bridgeDevice Device, params []Parameter) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(params))
	for _, p := range params {
		id := MeasurementSensorId(p.Name)
		sensors = append(sensors, GenericSensor{
			Device:            IdDevice(bridgeDevice),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              p.Name,
			UniqueId:          uniqueId(bridgeDevice.Id, id),
			UnitOfMeasurement: p.Unit,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       deviceClassForUnit(p.Unit),
		})
	}
	return sensors
}

func deviceClassForUnit(unit string) string {
	switch unit {
	case "C", "°C", "F", "°F", "K":
		return DEVICE_CLASS_TEMPERATURE
	case "%RH":
		return DEVICE_CLASS_HUMIDITY
	case "hPa", "Pa", "kPa", "bar", "mbar":
		return DEVICE_CLASS_PRESSURE
	case "V", "mV":
		return DEVICE_CLASS_VOLTAGE
	case "A", "mA":
		return DEVICE_CLASS_CURRENT
	case "W", "kW":
		return DEVICE_CLASS_POWER
	}
	return ""
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
