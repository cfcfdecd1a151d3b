package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/berfenger/sensorhub/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("sensorhub_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:               mqtt.NewClient(opts),
		cfg:                  cfg.MQTT,
		signalCommandRegexp:  signalCommandExtractor(cfg.MQTT.BaseTopic),
		executeCommandRegexp: executeCommandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client               mqtt.Client
	cfg                  config.MQTTConfig
	signalCommandRegexp  *regexp.Regexp
	executeCommandRegexp *regexp.Regexp
}

// ParsedMQTTCommand addresses one signal of a registered receiver.
// SignalName is empty when the command carries a numeric SignalId.
type ParsedMQTTCommand struct {
	PositionId int
	SignalName string
	SignalId   uint32
	Command    string
	Payload    string
}

const (
	MQTT_COMMAND_SIGNAL  = "signal"
	MQTT_COMMAND_EXECUTE = "execute"
)

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) SensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) BinarySensorStateTopic(sensorId string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", c.baseTopic(), sensorId)
}

func (c *MQTTClient) ReceiverSignalTopic(positionId int, signal string) string {
	return fmt.Sprintf("%s/receiver/%d/%s/set", c.baseTopic(), positionId, signal)
}

func (c *MQTTClient) ReceiverExecuteTopic(positionId int, signalId uint32) string {
	return fmt.Sprintf("%s/receiver/%d/execute/%d", c.baseTopic(), positionId, signalId)
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return parseCommand(c.signalCommandRegexp, c.executeCommandRegexp, msg.Topic(), string(msg.Payload()))
}

func parseCommand(signalRegexp, executeRegexp *regexp.Regexp, topic, payload string) (*ParsedMQTTCommand, error) {
	if matches := executeRegexp.FindAllStringSubmatch(topic, 1); len(matches) > 0 {
		if len(matches[0]) != 3 {
			return nil, errors.New("invalid execute command")
		}
		positionId, err := strconv.Atoi(matches[0][1])
		if err != nil {
			return nil, err
		}
		signalId, err := strconv.ParseUint(matches[0][2], 10, 32)
		if err != nil {
			return nil, err
		}
		return &ParsedMQTTCommand{
			PositionId: positionId,
			SignalId:   uint32(signalId),
			Command:    MQTT_COMMAND_EXECUTE,
			Payload:    payload,
		}, nil
	}
	matches := signalRegexp.FindAllStringSubmatch(topic, 1)
	if len(matches) == 0 {
		return nil, errors.New("invalid command")
	}
	if len(matches[0]) != 3 {
		return nil, errors.New("invalid signal command")
	}
	positionId, err := strconv.Atoi(matches[0][1])
	if err != nil {
		return nil, err
	}
	return &ParsedMQTTCommand{
		PositionId: positionId,
		SignalName: matches[0][2],
		Command:    MQTT_COMMAND_SIGNAL,
		Payload:    payload,
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	token := c.client.Unsubscribe(topic)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT unsubscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandTopic() string {
	return fmt.Sprintf("%s/receiver/#", c.baseTopic())
}

func signalCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/receiver/([0-9]+)/([a-zA-Z0-9_]+)/set$", baseTopic))
}

func executeCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/receiver/([0-9]+)/execute/([0-9]+)$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
