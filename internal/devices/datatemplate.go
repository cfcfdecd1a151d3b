package devices

import (
	"strconv"
	"strings"
	"sync"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/storage"

	"go.uber.org/zap"
)

const signalGetData uint32 = 0

type DataTemplateConfig struct {
	TemplateStart string `json:"template_start"`
	TemplateEnd   string `json:"template_end"`
	TemplateData  string `json:"template_data"`
}

// DataTemplate renders fresh measurements as text. Each measurement is written with
// TemplateData, where %PARAMETER%, %UNIT% and %VALUE% are substituted; %N% anywhere
// in the output becomes a newline.
type DataTemplate struct {
	mu     sync.Mutex
	desc   domain.DeviceDescription
	config DataTemplateConfig
	source port.MeasurementSource
	file   configFile
	logger *zap.Logger
}

func NewDataTemplate(fileName string, source port.MeasurementSource, store *storage.Store, logger *zap.Logger) *DataTemplate {
	return &DataTemplate{
		desc: domain.DeviceDescription{
			SignalCount: 1,
			Kind:        "dataformat",
			Name:        "Data Template",
			Signals:     map[string]uint32{"get_data": signalGetData},
			ID:          3,
		},
		config: DataTemplateConfig{
			TemplateData: `{name="%PARAMETER%",type="%UNIT%"}%VALUE%%N%`,
		},
		source: source,
		file:   configFile{store: store, path: receiverConfigDir + fileName},
		logger: logger.With(zap.String("device", "datatemplate"), zap.String("file", fileName)),
	}
}

func (d *DataTemplate) Begin() error {
	config, ok, err := d.file.load()
	if err != nil {
		return err
	}
	if !ok {
		d.mu.Lock()
		config = encodeConfig(d.config)
		d.mu.Unlock()
	}
	return d.SetConfig(config)
}

func (d *DataTemplate) Description() domain.DeviceDescription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc.Copy()
}

func (d *DataTemplate) ReceiveSignal(signal uint32, _ string) (domain.Response, error) {
	if signal != signalGetData {
		return domain.Response{}, unknownSignal(signal)
	}
	if err := d.source.PollAll(); err != nil {
		return domain.Response{}, err
	}
	measurements := d.source.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.TextResponse(Render(d.config, measurements)), nil
}

// Render applies a template to a list of measurements.
func Render(config DataTemplateConfig, measurements []domain.Measurement) string {
	var b strings.Builder
	b.WriteString(config.TemplateStart)
	for _, m := range measurements {
		line := strings.NewReplacer(
			"%PARAMETER%", m.Parameter,
			"%UNIT%", m.Unit,
			"%VALUE%", strconv.FormatFloat(m.Value, 'f', -1, 64),
		).Replace(config.TemplateData)
		b.WriteString(line)
	}
	b.WriteString(config.TemplateEnd)
	return strings.ReplaceAll(b.String(), "%N%", "\n")
}

func (d *DataTemplate) GetConfig() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encodeConfig(d.config)
}

func (d *DataTemplate) SetConfig(config string) error {
	next := DataTemplateConfig{}
	if err := decodeConfig(config, &next); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.file.save(encodeConfig(next)); err != nil {
		return err
	}
	d.config = next
	return nil
}

// ensure interface compliance
var _ port.SignalReceiver = (*DataTemplate)(nil)
