package influxdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/sensorhub/internal/config"
	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	MEASUREMENT_NAME = "sensorhub"
	pingTimeout      = 5 * time.Second
)

var ErrNotHealthy = errors.New("influxdb server not healthy")

// pointWriter is the part of the non-blocking write API the sink uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink writes every successful measurement snapshot as one point per parameter.
type Sink struct {
	client influxdb2.Client
	writer pointWriter
	hub    string
	now    func() time.Time
	logger *zap.Logger
}

func NewSink(cfg config.InfluxDBConfig, hub string, logger *zap.Logger) (*Sink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrNotHealthy
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	sink := newSink(writeAPI, hub, logger)
	sink.client = client

	// writes are async, report failures as they come
	go func() {
		for err := range writeAPI.Errors() {
			sink.logger.Warn("influxdb@write error", zap.Error(err))
		}
	}()
	return sink, nil
}

func newSink(writer pointWriter, hub string, logger *zap.Logger) *Sink {
	return &Sink{
		writer: writer,
		hub:    hub,
		now:    time.Now,
		logger: logger.With(zap.String("component", "influxdb")),
	}
}

func (s *Sink) WriteMeasurements(measurements []domain.Measurement) error {
	ts := s.now()
	for _, m := range measurements {
		s.writer.WritePoint(write.NewPoint(
			MEASUREMENT_NAME,
			map[string]string{
				"hub":       s.hub,
				"parameter": m.Parameter,
				"unit":      m.Unit,
			},
			map[string]interface{}{
				"value": m.Value,
			},
			ts,
		))
	}
	s.logger.Debug("influxdb@write measurements", zap.Int("points", len(measurements)))
	return nil
}

func (s *Sink) Close() {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}

// ensure interface compliance
var _ port.MeasurementSink = (*Sink)(nil)
