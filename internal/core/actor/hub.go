package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/sensorhub/internal/adapter/actor"
	"github.com/berfenger/sensorhub/internal/config"
	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/events"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/core/service"
	. "github.com/berfenger/sensorhub/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// HubServices are the core services the hub drives from its own context.
type HubServices struct {
	Tasks        *service.TaskScheduler
	Dispatcher   *service.SignalDispatcher
	Measurements *service.MeasurementCache
	// Sink is optional
	Sink port.MeasurementSink
}

// HubActor is the main cooperative context: it ticks the task scheduler, refreshes the
// measurement cache, runs maintenance and routes broker commands to the dispatcher.
type HubActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash
	services HubServices

	timer             *scheduler.TimerScheduler
	quartz            quartz.Scheduler
	eventStream       *eventstream.EventStream
	mqttActor         *actor.PID
	mqttActorProvider MQTTActorProvider
	logger            *zap.Logger

	lastTick     time.Time
	polling      bool
	pendingPolls []*actor.PID
	stats        hubStats
	healthCheck  healthCheckResult
}

type hubStats struct {
	ticks       uint64
	polls       uint64
	failedPolls uint64
}

type healthCheckResult struct {
	mqttActorHealthy bool
	respondTo        *actor.PID
}

type hubTick struct {
}

type measureTick struct {
}

type maintenanceTick struct {
}

type pollResult struct {
	measurements []domain.Measurement
	err          error
}

const (
	measureJobKey     = "measure"
	maintenanceJobKey = "maintenance"
)

func NewHubActor(config config.Config, services HubServices, eventStream *eventstream.EventStream, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *HubActor {
	act := &HubActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		services:          services,
		eventStream:       eventStream,
		mqttActorProvider: mqttActorProvider,
		logger:            ActorLogger(domain.ACTOR_ID_HUB, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HubActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HubActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hub@starting started")

		// scheduler ticks
		state.timer = scheduler.NewTimerScheduler(ctx)
		state.lastTick = time.Now()
		state.timer.RequestOnce(state.tickInterval(), ctx.Self(), hubTick{})

		// measurement and maintenance triggers
		if err := state.startQuartz(ctx); err != nil {
			panic(err)
		}

		// start MQTT child
		if state.mqttActorProvider != nil {
			mqttActorPID, err := state.startMQTTActor(ctx)
			if err != nil {
				panic(err)
			}
			state.mqttActor = mqttActorPID
			if state.config.MQTT.HADiscoveryEnable {
				state.publishDiscovery(ctx)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hub@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HubActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case hubTick:
		now := time.Now()
		elapsed := now.Sub(state.lastTick)
		state.lastTick = now
		state.services.Tasks.Tick(elapsed)
		state.stats.ticks++
		// schedule next tick
		state.timer.RequestOnce(state.tickInterval(), ctx.Self(), hubTick{})
	case measureTick:
		state.logger.Debug("hub@default measure")
		state.poll(ctx)
	case domain.PollRequest:
		state.logger.Debug("hub@default PollRequest")
		state.pendingPolls = append(state.pendingPolls, ForRequest(msg).ReplyTo(ctx))
		state.poll(ctx)
	case pollResult:
		state.onPollResult(ctx, msg)
	case maintenanceTick:
		state.logger.Info("hub@default maintenance",
			zap.Uint64("ticks", state.stats.ticks),
			zap.Uint64("polls", state.stats.polls),
			zap.Uint64("failedPolls", state.stats.failedPolls),
			zap.Int("queuedSignals", state.services.Dispatcher.Len()),
			zap.Stringer("worker", state.services.Dispatcher.State()))
		state.eventStream.Publish(events.QueueDepthUpdateEvent(state.services.Dispatcher.Len()))
		if state.mqttActor != nil && state.config.MQTT.HADiscoveryEnable {
			state.publishDiscovery(ctx)
		}
	case domain.HubStatsRequest:
		state.logger.Debug("hub@default HubStatsRequest")
		ForRequest(msg).Respond(ctx, domain.HubStatsResponse{
			Ticks:        state.stats.ticks,
			Polls:        state.stats.polls,
			FailedPolls:  state.stats.failedPolls,
			QueuedSignal: state.services.Dispatcher.Len(),
			Tasks:        state.services.Tasks.TaskNames(),
		})
	case domain.ActorHealthRequest:
		state.logger.Debug("hub@default ActorHealthRequest")
		state.healthCheck = healthCheckResult{respondTo: ForRequest(msg).ReplyTo(ctx)}
		if state.mqttActor == nil {
			state.healthCheck.mqttActorHealthy = true
			state.healthCheck.respond(ctx, state.services.Dispatcher.State())
			return
		}
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		ctx.SetReceiveTimeout(1 * time.Second)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		state.logger.Debug("hub@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			if err := state.routeCommand(msg); err != nil {
				state.logger.Warn("hub@default command rejected", zap.Any("command", msg.Command), zap.Error(err))
			}
		}
	case *actor.Stopping:
		state.stopQuartz()
	case *actor.Terminated:
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_HUB, domain.ACTOR_ID_MQTT) {
			state.logger.Error("hub@default mqtt terminated")
			state.mqttActor = nil
		}
	default:
		state.logger.Debug("hub@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HubActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.healthCheck.respond(ctx, state.services.Dispatcher.State())
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("hub@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		ctx.CancelReceiveTimeout()
		state.healthCheck.mqttActorHealthy = msg.Healthy
		state.healthCheck.respond(ctx, state.services.Dispatcher.State())
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case hubTick, pollResult:
		// keep the tick cadence and poll completion during a health check
		state.DefaultReceive(ctx)
	default:
		state.logger.Debug("hub@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HubActor) routeCommand(msg adactor.ParsedCommand) error {
	cmd := msg.Command
	id := domain.PositionID(cmd.PositionId)
	if cmd.SignalName != "" {
		return state.services.Dispatcher.EnqueueByName(id, cmd.SignalName, cmd.Payload)
	}
	return state.services.Dispatcher.Enqueue(id, cmd.SignalId, cmd.Payload)
}

func (state *HubActor) poll(ctx actor.Context) {
	if state.polling {
		return
	}
	state.polling = true
	cache := state.services.Measurements
	NewBackgroundTask(ctx, func() (*pollResult, error) {
		if err := cache.PollAll(); err != nil {
			return &pollResult{err: err}, nil
		}
		return &pollResult{measurements: cache.Snapshot()}, nil
	}).WithTimeout(state.pollTimeout()).Recover(func(err error) pollResult {
		return pollResult{err: err}
	}).PipeTo(ctx.Self())
}

func (state *HubActor) onPollResult(ctx actor.Context, msg pollResult) {
	state.polling = false
	state.stats.polls++
	if msg.err != nil {
		state.stats.failedPolls++
		state.logger.Warn("hub@default poll failed", zap.Error(msg.err))
	} else {
		state.eventStream.Publish(domain.MeasurementsUpdatedEvent{Measurements: msg.measurements})
		for _, ev := range events.MeasurementsToUpdateEvents(msg.measurements) {
			state.eventStream.Publish(ev)
		}
		state.eventStream.Publish(events.QueueDepthUpdateEvent(state.services.Dispatcher.Len()))
		if state.services.Sink != nil {
			if err := state.services.Sink.WriteMeasurements(msg.measurements); err != nil {
				state.logger.Warn("hub@default sink write failed", zap.Error(err))
			}
		}
	}
	for _, pid := range state.pendingPolls {
		if pid == nil {
			continue
		}
		ctx.Send(pid, domain.PollResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: msg.err,
			},
			Measurements: msg.measurements,
		})
	}
	state.pendingPolls = nil
}

func (state *HubActor) publishDiscovery(ctx actor.Context) {
	bridge := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	sensors := domain.BridgeSensors(bridge)
	sensors = append(sensors, domain.MeasurementSensors(bridge, state.services.Measurements.Parameters())...)
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{Sensors: sensors})
}

func (state *HubActor) startQuartz(ctx actor.Context) error {
	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return err
	}
	state.quartz = sched
	state.quartz.Start(context.Background())

	system := ctx.ActorSystem()
	self := ctx.Self()
	sendJob := func(message any) *job.FunctionJob[bool] {
		return job.NewFunctionJob(func(_ context.Context) (bool, error) {
			system.Root.Send(self, message)
			return true, nil
		})
	}

	if state.config.Hub.MeasureEnabled {
		interval := time.Duration(state.config.Hub.MeasureIntervalMillis) * time.Millisecond
		err := state.quartz.ScheduleJob(quartz.NewJobDetail(sendJob(measureTick{}), quartz.NewJobKey(measureJobKey)),
			quartz.NewSimpleTrigger(interval))
		if err != nil {
			return fmt.Errorf("schedule measure job: %w", err)
		}
	}
	if state.config.Hub.MaintenanceCron != "" {
		trigger, err := quartz.NewCronTrigger(state.config.Hub.MaintenanceCron)
		if err != nil {
			return fmt.Errorf("maintenance cron: %w", err)
		}
		err = state.quartz.ScheduleJob(quartz.NewJobDetail(sendJob(maintenanceTick{}), quartz.NewJobKey(maintenanceJobKey)), trigger)
		if err != nil {
			return fmt.Errorf("schedule maintenance job: %w", err)
		}
	}
	return nil
}

func (state *HubActor) stopQuartz() {
	if state.quartz == nil {
		return
	}
	state.quartz.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	state.quartz.Wait(ctx)
	state.quartz = nil
}

func (state *HubActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *HubActor) tickInterval() time.Duration {
	return time.Duration(state.config.Hub.TickIntervalMillis) * time.Millisecond
}

func (state *HubActor) pollTimeout() time.Duration {
	if state.config.Hub.PollTimeoutMillis == 0 {
		return 5 * time.Second
	}
	return time.Duration(state.config.Hub.PollTimeoutMillis) * time.Millisecond
}

func (state *healthCheckResult) respond(ctx actor.Context, worker service.WorkerState) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_HUB,
		Healthy: state.mqttActorHealthy,
		State:   worker.String(),
	}
	if !state.mqttActorHealthy {
		resp.ResponseError = errors.New("mqtt actor not healthy")
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
