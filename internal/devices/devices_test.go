package devices

import (
	"testing"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/service"
	"github.com/berfenger/sensorhub/internal/hal"
	"github.com/berfenger/sensorhub/internal/storage"
	"github.com/berfenger/sensorhub/pkg/modbusio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  *storage.Store
	pins   *hal.MemoryPinBank
	tasks  *service.TaskScheduler
	bus    *service.EventBus
	client *modbusio.TestClient
	cache  *service.MeasurementCache
	logger *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	client := modbusio.NewTestClient()
	client.Holding[0] = 235
	client.InputRegs[1] = 0xFFF6 // -10
	store := storage.NewMemoryStore(logger)

	sensors := service.NewSensorRegistry(logger)
	sensors.Register(NewModbusSensor(client, "meter.json", ModbusSensorConfig{
		Name: "Meter",
		Registers: []RegisterConfig{
			{Parameter: "temperature", Unit: "C", Address: 0, ScaleFactor: -1},
			{Parameter: "flow", Unit: "l/min", Address: 1, Input: true, Signed: true},
		},
	}, store, logger))
	require.NoError(t, sensors.BeginAll())

	return &fixture{
		store:  store,
		pins:   hal.NewMemoryPinBank(16),
		tasks:  service.NewTaskScheduler(logger),
		bus:    service.NewEventBus(logger),
		client: client,
		cache:  service.NewMeasurementCache(sensors, logger),
		logger: logger,
	}
}

func requireRoundTrip(t *testing.T, d interface {
	GetConfig() string
	SetConfig(string) error
}) {
	t.Helper()
	first := d.GetConfig()
	require.NoError(t, d.SetConfig(first))
	assert.Equal(t, first, d.GetConfig())
}

func TestGenericOutput(t *testing.T) {
	f := newFixture(t)
	out := NewGenericOutput(f.pins, 4, "out.json", f.store, f.logger)
	require.NoError(t, out.Begin())

	stored, err := f.store.Read("/settings/sig/out.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"pin":4,"name":"Generic Output"}`, stored)

	resp, err := out.ReceiveSignal(0, "1")
	require.NoError(t, err)
	assert.True(t, resp.JSON)
	assert.True(t, f.pins.Level(4))
	_, err = out.ReceiveSignal(0, "0")
	require.NoError(t, err)
	assert.False(t, f.pins.Level(4))

	_, err = out.ReceiveSignal(0, "on")
	assert.Error(t, err)
	_, err = out.ReceiveSignal(1, "1")
	assert.ErrorIs(t, err, domain.ErrUnknownSignal)

	require.NoError(t, out.SetConfig(`{"pin":5,"name":"Pump"}`))
	assert.Equal(t, "Pump", out.Description().Name)
	assert.ErrorIs(t, out.SetConfig(`{"pin":`), domain.ErrDeserializationFailed)
	assert.ErrorIs(t, out.SetConfig(`{"pin":99,"name":"x"}`), domain.ErrDeserializationFailed)
	assert.JSONEq(t, `{"pin":5,"name":"Pump"}`, out.GetConfig())
	requireRoundTrip(t, out)

	again := NewGenericOutput(f.pins, 4, "out.json", f.store, f.logger)
	require.NoError(t, again.Begin())
	assert.Equal(t, "Pump", again.Description().Name)
}

func TestTimerSwitch(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 5, 1, 9, 30, 10, 0, time.UTC)
	sw := NewTimerSwitch(f.pins, 2, "timer.json", f.store, f.tasks, func() time.Time { return now }, f.logger)
	require.NoError(t, sw.Begin())
	assert.Empty(t, f.tasks.TaskNames())
	requireRoundTrip(t, sw)

	require.NoError(t, sw.SetConfig(`{"pin":2,"name":"Lamp","onTime":"9:30","offTime":"22:15","enabled":true,
		"active":{"current":"Active high","options":[]}}`))
	assert.Equal(t, []string{"Lamp"}, f.tasks.TaskNames())
	assert.Contains(t, sw.GetConfig(), `"options":["Active low","Active high"]`)

	f.tasks.Tick(10 * time.Second)
	assert.False(t, f.pins.Level(2))
	f.tasks.Tick(20 * time.Second)
	assert.True(t, f.pins.Level(2))

	now = time.Date(2024, 5, 1, 22, 15, 0, 0, time.UTC)
	f.tasks.Tick(30 * time.Second)
	assert.False(t, f.pins.Level(2))

	require.NoError(t, sw.SetConfig(`{"pin":2,"name":"Lamp2","onTime":"9:30","offTime":"22:15","enabled":true,
		"active":{"current":"Active low","options":[]}}`))
	assert.Equal(t, []string{"Lamp2"}, f.tasks.TaskNames())

	assert.ErrorIs(t, sw.SetConfig(`{"pin":2,"name":"x","onTime":"25:00","offTime":"1:00","active":{"current":"Active low"}}`), domain.ErrDeserializationFailed)
	assert.ErrorIs(t, sw.SetConfig(`{"pin":2,"name":"x","onTime":"1:00","offTime":"1:00","active":{"current":"sideways"}}`), domain.ErrDeserializationFailed)
	assert.Contains(t, sw.GetConfig(), `"name":"Lamp2"`)
}

func TestTimerSwitchNameCollision(t *testing.T) {
	f := newFixture(t)
	now := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	lamp := NewTimerSwitch(f.pins, 2, "a.json", f.store, f.tasks, now, f.logger)
	pump := NewTimerSwitch(f.pins, 3, "b.json", f.store, f.tasks, now, f.logger)
	require.NoError(t, lamp.SetConfig(`{"pin":2,"name":"Lamp","onTime":"9:30","offTime":"22:15","enabled":true,"active":{"current":"Active high"}}`))
	require.NoError(t, pump.SetConfig(`{"pin":3,"name":"Pump","onTime":"9:30","offTime":"22:15","enabled":true,"active":{"current":"Active high"}}`))
	before := pump.GetConfig()

	err := pump.SetConfig(`{"pin":3,"name":"Lamp","onTime":"9:30","offTime":"22:15","enabled":true,"active":{"current":"Active high"}}`)
	assert.ErrorIs(t, err, domain.ErrDeserializationFailed)
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	assert.Equal(t, before, pump.GetConfig())
	assert.Equal(t, "Pump", pump.Description().Name)
	stored, err := f.store.Read("/settings/sig/b.json")
	require.NoError(t, err)
	assert.Equal(t, before, stored)
	assert.ElementsMatch(t, []string{"Lamp", "Pump"}, f.tasks.TaskNames())

	// the data logger shares the scheduler too
	logger := NewLocalDataLogger(f.cache, f.tasks, f.store, now, f.logger)
	require.NoError(t, logger.Begin())
	assert.ErrorIs(t, logger.SetConfig(`{"name":"log.csv","enabled":true,"samplingPeriod":1000,"taskName":"Pump"}`), domain.ErrDeserializationFailed)
	assert.Contains(t, logger.GetConfig(), `"enabled":false`)
	assert.ElementsMatch(t, []string{"Lamp", "Pump"}, f.tasks.TaskNames())

	// renaming to a free name moves the task
	require.NoError(t, pump.SetConfig(`{"pin":3,"name":"Valve","onTime":"9:30","offTime":"22:15","enabled":true,"active":{"current":"Active high"}}`))
	assert.ElementsMatch(t, []string{"Lamp", "Valve"}, f.tasks.TaskNames())
}

func TestDataTemplate(t *testing.T) {
	f := newFixture(t)
	tpl := NewDataTemplate("template.json", f.cache, f.store, f.logger)
	require.NoError(t, tpl.Begin())
	requireRoundTrip(t, tpl)
	assert.Equal(t, map[string]uint32{"get_data": 0}, tpl.Description().Signals)

	resp, err := tpl.ReceiveSignal(0, "")
	require.NoError(t, err)
	assert.False(t, resp.JSON)
	assert.Equal(t, "{name=\"temperature\",type=\"C\"}23.5\n{name=\"flow\",type=\"l/min\"}-10\n", resp.Body)

	require.NoError(t, tpl.SetConfig(`{"template_start":"[","template_end":"]","template_data":"%PARAMETER%=%VALUE%%UNIT%;"}`))
	resp, err = tpl.ReceiveSignal(0, "")
	require.NoError(t, err)
	assert.Equal(t, "[temperature=23.5C;flow=-10l/min;]", resp.Body)

	f.client.Fail = assert.AnError
	_, err = tpl.ReceiveSignal(0, "")
	assert.ErrorIs(t, err, domain.ErrMeasurementFailed)
}

func TestLocalDataLogger(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	logger := NewLocalDataLogger(f.cache, f.tasks, f.store, func() time.Time { return now }, f.logger)
	require.NoError(t, logger.Begin())
	assert.Empty(t, f.tasks.TaskNames())
	requireRoundTrip(t, logger)

	require.NoError(t, logger.SetConfig(`{"name":"log.csv","enabled":true,"samplingPeriod":1000,"taskName":"logger"}`))
	assert.Equal(t, []string{"logger"}, f.tasks.TaskNames())

	f.tasks.Tick(500 * time.Millisecond)
	f.tasks.Tick(500 * time.Millisecond)
	now = now.Add(time.Second)
	f.tasks.Tick(1000 * time.Millisecond)

	data, err := f.store.Read("/data/log.csv")
	require.NoError(t, err)
	assert.Equal(t, "time,temperature (C),flow (l/min)\n"+
		"05-01-2024 08:00:00,23.5,-10\n"+
		"05-01-2024 08:00:01,23.5,-10\n", data)

	assert.ErrorIs(t, logger.SetConfig(`{"name":"../x","enabled":true,"samplingPeriod":1000,"taskName":"logger"}`), domain.ErrDeserializationFailed)
	_, err = logger.ReceiveSignal(0, "")
	assert.ErrorIs(t, err, domain.ErrUnknownSignal)
}

type recordingObserver struct {
	events []domain.Event
}

func (o *recordingObserver) Begin() error { return nil }

func (o *recordingObserver) ReceiveEvent(event domain.Event) error {
	o.events = append(o.events, event)
	return nil
}

func TestResetButtonHold(t *testing.T) {
	f := newFixture(t)
	observer := &recordingObserver{}
	f.bus.Subscribe(observer)
	restarts := 0
	button := NewResetButton(f.pins, 0, f.store, f.tasks, f.bus, func() error {
		restarts++
		return nil
	}, f.logger)

	// active low, released
	f.pins.Set(0, true)
	require.NoError(t, button.Begin())
	requireRoundTrip(t, button)
	assert.True(t, f.store.Exists("/settings/sig/ResetButton.json"))

	f.pins.Set(0, false)
	for i := 0; i < 4; i++ {
		f.tasks.Tick(time.Second)
	}
	f.pins.Set(0, true)
	f.tasks.Tick(time.Second)
	f.pins.Set(0, false)
	f.tasks.Tick(4 * time.Second)
	assert.Equal(t, 0, restarts)

	f.tasks.Tick(time.Second)
	assert.Equal(t, 1, restarts)
	assert.Equal(t, []domain.Event{domain.EventRebooting}, observer.events)
	assert.False(t, f.store.Exists("/settings/sig/ResetButton.json"))
	assert.False(t, f.store.Exists("/settings/sen/meter.json"))
}

func TestResetButtonSignal(t *testing.T) {
	f := newFixture(t)
	restarts := 0
	button := NewResetButton(f.pins, 0, f.store, f.tasks, f.bus, func() error {
		restarts++
		return nil
	}, f.logger)
	require.NoError(t, button.Begin())
	assert.Equal(t, map[string]uint32{"reset": 0}, button.Description().Signals)

	resp, err := button.ReceiveSignal(0, "")
	require.NoError(t, err)
	assert.Equal(t, `{"Response":"OK"}`, resp.Body)
	assert.Equal(t, 1, restarts)
}

func TestLEDIndicator(t *testing.T) {
	strip := hal.NewMemoryLEDStrip(3)
	led := NewRGBIndicator(strip, zap.NewNop())
	require.NoError(t, led.Begin())
	require.NoError(t, led.ReceiveEvent(domain.EventReady))
	require.NoError(t, led.ReceiveEvent(domain.EventError))
	assert.Equal(t, []hal.Color{hal.Off, {G: 0x7F}, {G: 0xC4, B: 0xFF}}, strip.History)
	assert.Equal(t, hal.Color{G: 0xC4, B: 0xFF}, strip.Pixel(2))

	pins := hal.NewMemoryPinBank(4)
	blink := NewBlinkIndicator(pins, 1, 0, zap.NewNop())
	require.NoError(t, blink.Begin())
	require.NoError(t, blink.ReceiveEvent(domain.EventUpdating))
	assert.False(t, pins.Level(1))
}

func TestModbusSensor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.PollAll())
	assert.Equal(t, []domain.Measurement{
		{Parameter: "temperature", Value: 23.5, Unit: "C"},
		{Parameter: "flow", Value: -10, Unit: "l/min"},
	}, f.cache.Snapshot())

	result, _, err := f.cache.Calibrate(0, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.CalibrationError, result)

	result, _, err = f.cache.Calibrate(0, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.CalibrationNext, result)
	result, _, err = f.cache.Calibrate(0, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.CalibrationDone, result)

	require.NoError(t, f.cache.PollAll())
	for _, m := range f.cache.Snapshot() {
		assert.InDelta(t, 0, m.Value, 1e-9)
	}
	stored, err := f.store.Read("/settings/sen/meter.json")
	require.NoError(t, err)
	assert.Contains(t, stored, `"offset":23.5`)

	result, _, _ = f.cache.Calibrate(0, 2)
	assert.Equal(t, domain.CalibrationError, result)
}

func TestModbusSensorRejectsEmptyConfig(t *testing.T) {
	f := newFixture(t)
	s := NewModbusSensor(f.client, "x.json", ModbusSensorConfig{Name: "x"}, f.store, f.logger)
	assert.ErrorIs(t, s.Begin(), domain.ErrDeserializationFailed)
}
