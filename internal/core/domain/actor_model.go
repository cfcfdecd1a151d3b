package domain

import "github.com/asynkron/protoactor-go/actor"

const (
	ACTOR_ID_HUB  = "hub"
	ACTOR_ID_MQTT = "mqtt"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// PollRequest asks the hub to refresh the measurement snapshot outside its period.
type PollRequest struct {
	ActorRequestMixIn
}

type PollResponse struct {
	ActorResponseMixIn
	Measurements []Measurement
}

type HubStatsRequest struct {
	ActorRequestMixIn
}

type HubStatsResponse struct {
	ActorResponseMixIn
	Ticks        uint64
	Polls        uint64
	FailedPolls  uint64
	QueuedSignal int
	Tasks        []string
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}
