package mainloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultMaxWait = 10 * time.Second

// Tuning carries the runtime knobs embedded builds ship in a
// configuration file next to the binary.
type Tuning struct {
	// MaxWait caps a single blocking wait in the poller, so the loop
	// periodically re-checks for quit requests even when no deadline is
	// pending. Zero means the default of 10s.
	MaxWait time.Duration
	// Metrics enables OpenTelemetry instrumentation of loop passes.
	Metrics bool
}

func defaultTuning() Tuning {
	return Tuning{MaxWait: defaultMaxWait}
}

func (t Tuning) validate() error {
	if t.MaxWait < 0 {
		return fmt.Errorf("mainloop: negative max_wait %v", t.MaxWait)
	}
	return nil
}

// rawTuning is the file representation; durations are strings in Go
// duration syntax ("250ms", "10s").
type rawTuning struct {
	MaxWait string `yaml:"max_wait" json:"max_wait"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

func (t *Tuning) fromRaw(raw rawTuning) error {
	*t = defaultTuning()
	if raw.MaxWait != "" {
		d, err := time.ParseDuration(raw.MaxWait)
		if err != nil {
			return fmt.Errorf("mainloop: parse max_wait: %w", err)
		}
		t.MaxWait = d
	}
	t.Metrics = raw.Metrics
	return t.validate()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Tuning) UnmarshalYAML(value *yaml.Node) error {
	var raw rawTuning
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return t.fromRaw(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tuning) UnmarshalJSON(data []byte) error {
	var raw rawTuning
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return t.fromRaw(raw)
}

// TuningFromFile loads a tuning from a file, auto-detecting the format
// by extension. Supported extensions: .yaml, .yml, .json
func TuningFromFile(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("mainloop: read tuning file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return TuningFromYAML(data)
	case ".json":
		return TuningFromJSON(data)
	default:
		return Tuning{}, fmt.Errorf("mainloop: unsupported tuning file extension: %s", ext)
	}
}

// TuningFromYAML parses YAML data into a Tuning.
func TuningFromYAML(data []byte) (Tuning, error) {
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("mainloop: parse yaml: %w", err)
	}
	return t, nil
}

// TuningFromJSON parses JSON data into a Tuning.
func TuningFromJSON(data []byte) (Tuning, error) {
	var t Tuning
	if err := json.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("mainloop: parse json: %w", err)
	}
	return t, nil
}
