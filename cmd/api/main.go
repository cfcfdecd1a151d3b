package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/sensorhub/internal/adapter/actor"
	"github.com/berfenger/sensorhub/internal/adapter/influxdb"
	"github.com/berfenger/sensorhub/internal/config"
	"github.com/berfenger/sensorhub/internal/core/actor"
	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/events"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/core/service"
	"github.com/berfenger/sensorhub/internal/devices"
	"github.com/berfenger/sensorhub/internal/hal"
	"github.com/berfenger/sensorhub/internal/server"
	"github.com/berfenger/sensorhub/internal/storage"
	"github.com/berfenger/sensorhub/internal/util/actorutil"
	"github.com/berfenger/sensorhub/internal/webhook"
	"github.com/berfenger/sensorhub/pkg/modbusio"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, restart <-chan struct{}, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal or a restart requested by a device.
	select {
	case <-ctx.Done():
		log.Println("shutting down gracefully, press Ctrl+C again to force")
	case <-restart:
		log.Println("restart requested, shutting down")
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

// hardware is the I/O the devices are bound to: a Modbus I/O module or an in-memory simulation.
type hardware struct {
	client  modbusio.Client
	outputs hal.PinBank
	inputs  hal.PinBank
	strip   hal.LEDStrip
	close   func()
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	hw, err := initHardware(cfg, logger)
	if err != nil {
		logger.Fatal("could not init hardware", zap.Error(err))
	}
	defer hw.close()

	// event bus: LED indicator and the relay to the broker
	es := &eventstream.EventStream{}
	bus := service.NewEventBus(logger)
	bus.Subscribe(events.NewEventRelay(es))
	if indicator := ledIndicator(cfg, hw, logger); indicator != nil {
		bus.Subscribe(indicator)
	}
	if err := bus.BeginAll(); err != nil {
		logger.Fatal("could not init event observers", zap.Error(err))
	}
	broadcast(bus, domain.EventStarting, logger)

	store, err := initStorage(cfg, logger)
	if err != nil {
		broadcast(bus, domain.EventError, logger)
		logger.Fatal("could not init storage", zap.Error(err))
	}

	// sensors
	sensors := service.NewSensorRegistry(logger)
	for i, name := range cfg.Devices.ModbusSensors {
		slug := slugify(name)
		sensors.Register(devices.NewModbusSensor(hw.client, slug+".json", devices.ModbusSensorConfig{
			Name:      name,
			Registers: []devices.RegisterConfig{{Parameter: slug, Address: uint16(i)}},
		}, store, logger))
	}
	if err := sensors.BeginAll(); err != nil {
		broadcast(bus, domain.EventError, logger)
		logger.Fatal("could not begin sensors", zap.Error(err))
	}

	tasks := service.NewTaskScheduler(logger)
	cache := service.NewMeasurementCache(sensors, logger)

	// receivers
	restart := make(chan struct{}, 1)
	requestRestart := func() error {
		select {
		case restart <- struct{}{}:
		default:
		}
		return nil
	}

	receivers := service.NewReceiverRegistry(logger)
	for _, out := range cfg.Devices.Outputs {
		receivers.Register(devices.NewGenericOutput(hw.outputs, out.Pin, slugify(out.Name)+".json", store, logger).
			WithName(out.Name))
	}
	for _, sw := range cfg.Devices.TimerSwitches {
		receivers.Register(devices.NewTimerSwitch(hw.outputs, sw.Pin, slugify(sw.Name)+".json", store, tasks, time.Now, logger).
			WithName(sw.Name))
	}
	if cfg.Devices.ResetButton.Enable {
		receivers.Register(devices.NewResetButton(hw.inputs, cfg.Devices.ResetButton.Pin, store, tasks, bus, requestRestart, logger))
	}
	if cfg.Devices.DataTemplate {
		receivers.Register(devices.NewDataTemplate("data_template.json", cache, store, logger))
	}
	if cfg.Devices.DataLogger {
		receivers.Register(devices.NewLocalDataLogger(cache, tasks, store, time.Now, logger))
	}
	if err := receivers.BeginAll(); err != nil {
		broadcast(bus, domain.EventError, logger)
		logger.Fatal("could not begin receivers", zap.Error(err))
	}

	dispatcher := service.NewSignalDispatcher(receivers, cfg.Hub.QueueCapacity,
		time.Duration(cfg.Hub.AdmissionTimeoutMillis)*time.Millisecond, logger)
	dispatcher.Start(context.Background())

	// optional measurement sink
	var sink port.MeasurementSink
	if cfg.InfluxDB.Enable {
		influxSink, err := influxdb.NewSink(cfg.InfluxDB, cfg.MQTT.BaseTopic, logger)
		if err != nil {
			logger.Error("influxdb sink disabled", zap.Error(err))
		} else {
			sink = influxSink
		}
	}

	services := actor.HubServices{
		Tasks:        tasks,
		Dispatcher:   dispatcher,
		Measurements: cache,
		Sink:         sink,
	}
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewHubActor(*cfg, services, es, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_HUB)
	if err != nil {
		logger.Fatal("could not spawn hub actor", zap.Error(err))
	}

	broadcast(bus, domain.EventReady, logger)

	hooks := webhook.NewManager(store, time.Duration(cfg.Webhooks.TimeoutMillis)*time.Millisecond,
		cfg.Webhooks.Retries, logger)
	if err := hooks.Begin(); err != nil {
		logger.Warn("stored webhooks ignored", zap.Error(err))
	}

	core := server.Core{
		Receivers:    receivers,
		Sensors:      sensors,
		Dispatcher:   dispatcher,
		Measurements: cache,
		Bus:          bus,
		Store:        store,
		Webhooks:     hooks,
		Restart:      requestRestart,
	}
	server := server.NewServer(*cfg, core, ctx, pid, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, restart, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	_ = ctx.StopFuture(pid).Wait()
	dispatcher.Stop()
	if sink != nil {
		sink.Close()
	}
	as.Shutdown()
}

// broadcast reports a lifecycle event. Observer failures only affect the indicator
// and the relay, so startup continues.
func broadcast(bus port.EventBroadcaster, event domain.Event, logger *zap.Logger) {
	if err := bus.Broadcast(event); err != nil {
		logger.Warn("event broadcast failed", zap.Stringer("event", event), zap.Error(err))
	}
}

func initHardware(cfg *config.Config, logger *zap.Logger) (*hardware, error) {
	if !cfg.Modbus.Enable {
		logger.Info("modbus disabled, using simulated I/O")
		pins := hal.NewMemoryPinBank(64)
		return &hardware{
			client:  modbusio.NewTestClient(),
			outputs: pins,
			inputs:  pins,
			strip:   hal.NewMemoryLEDStrip(max(cfg.Devices.LedIndicator.Leds, 1)),
			close:   func() {},
		}, nil
	}

	client, err := modbusio.NewClient(cfg.Modbus.URL, cfg.Modbus.UnitId,
		time.Duration(cfg.Modbus.TimeoutMillis)*time.Millisecond, logger, nil)
	if err != nil {
		return nil, err
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("modbus open %s: %w", cfg.Modbus.URL, err)
	}
	return &hardware{
		client:  client,
		outputs: hal.NewModbusPinBank(client, cfg.Modbus.CoilOffset, false),
		inputs:  hal.NewModbusPinBank(client, cfg.Modbus.CoilOffset, true),
		strip:   hal.NewModbusLEDStrip(client, cfg.Modbus.LedRegister, max(cfg.Devices.LedIndicator.Leds, 1)),
		close:   func() { _ = client.Close() },
	}, nil
}

func initStorage(cfg *config.Config, logger *zap.Logger) (*storage.Store, error) {
	if cfg.Storage.Memory {
		return storage.NewMemoryStore(logger), nil
	}
	return storage.NewStore(cfg.Storage.Root, logger)
}

func ledIndicator(cfg *config.Config, hw *hardware, logger *zap.Logger) port.EventReceiver {
	switch cfg.Devices.LedIndicator.Mode {
	case config.LED_INDICATOR_RGB:
		return devices.NewRGBIndicator(hw.strip, logger)
	case config.LED_INDICATOR_BLINK:
		return devices.NewBlinkIndicator(hw.outputs, cfg.Devices.LedIndicator.Pin, 200*time.Millisecond, logger)
	default:
		return nil
	}
}

var slugRegexp = regexp.MustCompile("[^a-z0-9]+")

func slugify(name string) string {
	return strings.Trim(slugRegexp.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func initConfig() (*config.Config, error) {

	// alias PORT => SENSORHUB_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SENSORHUB_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sensorhub")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := config.CheckHub(cfg.Hub); err != nil {
		return nil, err
	}
	if err := config.CheckLedIndicator(cfg.Devices.LedIndicator.Mode); err != nil {
		return nil, err
	}
	if !cfg.Storage.Memory && cfg.Storage.Root == "" {
		return nil, errors.New("config param storage.root is required unless storage.memory is set")
	}
	if cfg.InfluxDB.Enable && cfg.InfluxDB.URL == "" {
		return nil, errors.New("config param influxdb.url is required when influxdb is enabled")
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	if !cfg.MQTT.Enable {
		return nil
	}
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "sensorhub")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("hub.tick_interval_millis", 10)
	viper.SetDefault("hub.measure_interval_millis", 5000)
	viper.SetDefault("hub.measure_enabled", true)
	viper.SetDefault("hub.maintenance_cron", "0 0 3 * * *")
	viper.SetDefault("hub.queue_capacity", service.DefaultQueueCapacity)
	viper.SetDefault("hub.admission_timeout_millis", service.DefaultAdmissionTimeout.Milliseconds())
	viper.SetDefault("hub.poll_timeout_millis", 2000)
	viper.SetDefault("storage.root", "./data")
	viper.SetDefault("storage.memory", false)
	viper.SetDefault("influxdb.enable", false)
	viper.SetDefault("modbus.enable", false)
	viper.SetDefault("modbus.unit_id", 1)
	viper.SetDefault("modbus.timeout_millis", 1000)
	viper.SetDefault("webhooks.timeout_millis", 5000)
	viper.SetDefault("webhooks.retries", 2)
	viper.SetDefault("devices.outputs", []map[string]any{{"name": "Generic Output", "pin": 2}})
	viper.SetDefault("devices.reset_button.enable", true)
	viper.SetDefault("devices.reset_button.pin", 0)
	viper.SetDefault("devices.led_indicator.mode", config.LED_INDICATOR_RGB)
	viper.SetDefault("devices.led_indicator.leds", 1)
	viper.SetDefault("devices.data_template", true)
	viper.SetDefault("devices.data_logger", true)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.InfluxDB.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
