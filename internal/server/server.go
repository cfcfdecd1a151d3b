package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/sensorhub/internal/config"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/core/service"
	"github.com/berfenger/sensorhub/internal/storage"
	"github.com/berfenger/sensorhub/internal/webhook"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

// Core is what the HTTP layer needs from the hub core.
type Core struct {
	Receivers    *service.ReceiverRegistry
	Sensors      *service.SensorRegistry
	Dispatcher   *service.SignalDispatcher
	Measurements *service.MeasurementCache
	Bus          port.EventBroadcaster
	Store        *storage.Store
	Webhooks     *webhook.Manager
	// Restart asks the process to shut down and start over.
	Restart func() error
}

type Server struct {
	port        uint
	httpLog     bool
	core        Core
	rootContext *actor.RootContext
	hubActor    *actor.PID
	logger      *zap.Logger
}

func NewServer(cfg config.Config, core Core, rootContext *actor.RootContext, hubActor *actor.PID, logger *zap.Logger) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		hubActor:    hubActor,
		httpLog:     cfg.HttpLog,
		core:        core,
		logger:      logger.With(zap.String("component", "server")),
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
