package devices

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/storage"
)

const (
	receiverConfigDir = "/settings/sig/"
	sensorConfigDir   = "/settings/sen/"

	ActiveLow  = "Active low"
	ActiveHigh = "Active high"
)

var activeOptions = []string{ActiveLow, ActiveHigh}

// configFile is where a device persists its JSON configuration.
type configFile struct {
	store *storage.Store
	path  string
}

// load returns the stored config, or ok=false when none was saved yet.
func (f configFile) load() (config string, ok bool, err error) {
	if !f.store.Exists(f.path) {
		return "", false, nil
	}
	config, err = f.store.Read(f.path)
	if err != nil {
		return "", false, err
	}
	return config, true, nil
}

func (f configFile) save(config string) error {
	if err := f.store.Write(f.path, config); err != nil {
		return fmt.Errorf("saving %s: %w", f.path, err)
	}
	return nil
}

// Choice is a selectable value together with the options a UI may offer.
type Choice struct {
	Current string   `json:"current"`
	Options []string `json:"options"`
}

func newChoice(current string, options []string) Choice {
	return Choice{Current: current, Options: slices.Clone(options)}
}

// resolve keeps Current but always reports the fixed option list.
func (c Choice) resolve(options []string) (Choice, error) {
	if !slices.Contains(options, c.Current) {
		return Choice{}, fmt.Errorf("%q not one of %v", c.Current, options)
	}
	return newChoice(c.Current, options), nil
}

func activeLevel(active string) bool {
	return active == ActiveHigh
}

func decodeConfig(config string, v any) error {
	if err := json.Unmarshal([]byte(config), v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeserializationFailed, err)
	}
	return nil
}

func invalidConfig(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrDeserializationFailed, err)
}

func encodeConfig(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unknownSignal(signal uint32) error {
	return fmt.Errorf("signal %d: %w", signal, domain.ErrUnknownSignal)
}

var okResponse = domain.JSONResponse(`{"Response":"OK"}`)
