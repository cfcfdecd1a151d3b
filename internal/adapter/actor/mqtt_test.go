package actor

import (
	"testing"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/events"
	"github.com/berfenger/sensorhub/internal/util"
	"github.com/berfenger/sensorhub/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	es := eventstream.EventStream{}

	mqttActor := NewTestMQTTActor(&cfg, &es, logger)
	props := actor.PropsFromProducer(func() actor.Actor { return mqttActor })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)
	assert.Equal(t, domain.ACTOR_ID_MQTT, resp.Id)

	for _, ev := range events.MeasurementsToUpdateEvents([]domain.Measurement{
		{Parameter: "Temperature", Value: 23.5, Unit: "C"},
	}) {
		es.Publish(ev)
	}
	for _, ev := range events.LifecycleToUpdateEvents(domain.EventReady) {
		es.Publish(ev)
	}
	// not a sensor update
	es.Publish(domain.MeasurementsUpdatedEvent{})

	assert.Eventually(t, func() bool {
		return len(mqttActor.PublishedMessages()) == 3
	}, 2*time.Second, 20*time.Millisecond)

	published := mqttActor.PublishedMessages()
	assert.Equal(t, PublishedMessage{Topic: "sensorhub/sensor/m_temperature/state", Payload: "23.500"}, published[0])
	assert.Equal(t, PublishedMessage{Topic: "sensorhub/sensor/lifecycle/state", Payload: "ready", Retain: true}, published[1])
	assert.Equal(t, PublishedMessage{Topic: "sensorhub/bridge/state", Payload: "online", Retain: true}, published[2])

	context.Stop(pid)

	time.Sleep(100 * time.Millisecond)

	as.Shutdown()
}

func TestMQTTActorDiscovery(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.NewNop()

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	es := eventstream.EventStream{}

	mqttActor := NewTestMQTTActor(&cfg, &es, logger)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return mqttActor }))

	bridge := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	as.Root.Send(pid, domain.PublishDiscoveryRequest{Sensors: domain.BridgeSensors(bridge)})

	assert.Eventually(t, func() bool {
		return len(mqttActor.PublishedMessages()) == 3
	}, 2*time.Second, 20*time.Millisecond)

	published := mqttActor.PublishedMessages()
	assert.Equal(t, "homeassistant/binary_sensor/"+bridge.Id+"/bridge/config", published[0].Topic)
	assert.True(t, published[0].Retain)
}
