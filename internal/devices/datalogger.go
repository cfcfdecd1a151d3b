package devices

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/storage"

	"go.uber.org/zap"
)

const (
	dataDir              = "/data/"
	dataLoggerConfigFile = "LocalDataLogger.json"
	dataLoggerTimeLayout = "01-02-2006 15:04:05"
)

type DataLoggerConfig struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	SamplingPeriod int64  `json:"samplingPeriod"`
	TaskName       string `json:"taskName"`
}

// LocalDataLogger appends a CSV row with every measurement to /data/<name> once per
// sampling period. It has no signals.
type LocalDataLogger struct {
	mu     sync.Mutex
	desc   domain.DeviceDescription
	config DataLoggerConfig
	source port.MeasurementSource
	task   taskSlot
	store  *storage.Store
	now    func() time.Time
	file   configFile
	logger *zap.Logger
}

func NewLocalDataLogger(source port.MeasurementSource, tasks port.TaskRegistrar, store *storage.Store, now func() time.Time, logger *zap.Logger) *LocalDataLogger {
	if now == nil {
		now = time.Now
	}
	return &LocalDataLogger{
		desc: domain.DeviceDescription{
			SignalCount: 0,
			Kind:        "datalogger",
			Name:        "Local Data Logger",
			Signals:     map[string]uint32{},
			ID:          1,
		},
		config: DataLoggerConfig{
			Name:           "LocalData.csv",
			Enabled:        false,
			SamplingPeriod: 10000,
			TaskName:       "LocalDataLogger",
		},
		source: source,
		task:   taskSlot{tasks: tasks},
		store:  store,
		now:    now,
		file:   configFile{store: store, path: receiverConfigDir + dataLoggerConfigFile},
		logger: logger.With(zap.String("device", "datalogger")),
	}
}

func (l *LocalDataLogger) Begin() error {
	config, ok, err := l.file.load()
	if err != nil {
		return err
	}
	if !ok {
		l.mu.Lock()
		config = encodeConfig(l.config)
		l.mu.Unlock()
	}
	return l.SetConfig(config)
}

func (l *LocalDataLogger) Description() domain.DeviceDescription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.desc.Copy()
}

func (l *LocalDataLogger) ReceiveSignal(signal uint32, _ string) (domain.Response, error) {
	return domain.Response{}, unknownSignal(signal)
}

func (l *LocalDataLogger) GetConfig() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return encodeConfig(l.config)
}

func (l *LocalDataLogger) SetConfig(config string) error {
	next := DataLoggerConfig{}
	if err := decodeConfig(config, &next); err != nil {
		return err
	}
	if next.Name == "" || strings.ContainsAny(next.Name, "/\\") {
		return invalidConfig(fmt.Errorf("bad file name %q", next.Name))
	}
	if next.TaskName == "" {
		return invalidConfig(errors.New("empty task name"))
	}
	if next.SamplingPeriod <= 0 {
		return invalidConfig(fmt.Errorf("sampling period %d", next.SamplingPeriod))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	taskName := ""
	if next.Enabled {
		if err := l.writeHeader(dataDir + next.Name); err != nil {
			return err
		}
		taskName = next.TaskName
	}
	period := time.Duration(next.SamplingPeriod) * time.Millisecond
	err := l.task.replace(taskName, period, l.runTask, func() error {
		return l.file.save(encodeConfig(next))
	})
	if err != nil {
		return err
	}
	l.config = next
	return nil
}

func (l *LocalDataLogger) path() string {
	return dataDir + l.config.Name
}

func (l *LocalDataLogger) writeHeader(path string) error {
	if l.store.Exists(path) {
		return nil
	}
	var b strings.Builder
	b.WriteString("time")
	for _, p := range l.source.Parameters() {
		fmt.Fprintf(&b, ",%s (%s)", p.Name, p.Unit)
	}
	b.WriteByte('\n')
	return l.store.Write(path, b.String())
}

func (l *LocalDataLogger) runTask(tick *port.Tick) error {
	if !tick.Due() {
		return nil
	}
	tick.Reset()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.config.Enabled {
		return nil
	}
	if err := l.writeHeader(l.path()); err != nil {
		return err
	}
	if err := l.source.PollAll(); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(l.now().Format(dataLoggerTimeLayout))
	for _, m := range l.source.Snapshot() {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(m.Value, 'f', -1, 64))
	}
	b.WriteByte('\n')
	return l.store.Append(l.path(), b.String())
}

// ensure interface compliance
var _ port.SignalReceiver = (*LocalDataLogger)(nil)
