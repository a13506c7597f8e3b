// config.go defines the configuration of a decoding run and its YAML file format.

// Package config provides the configuration of the omxdecode tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/xaionaro-go/avomx/engine"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate.
type ErrInvalid struct {
	Field  string
	Reason string
}

func (e ErrInvalid) Error() string {
	return fmt.Sprintf("invalid '%s': %s", e.Field, e.Reason)
}

// PortConfig overrides the engine-reported definition of a port; zero
// values keep the engine's values.
type PortConfig struct {
	Index       uint32   `yaml:"index"`
	BufferCount uint32   `yaml:"buffer_count,omitempty"`
	BufferSize  ByteSize `yaml:"buffer_size,omitempty"`
}

// Apply writes the overrides into the port definition and reports whether
// anything was changed.
func (p PortConfig) Apply(def *engine.PortDefinition) bool {
	changed := false
	if p.BufferCount != 0 && p.BufferCount != def.BufferCount {
		def.BufferCount = p.BufferCount
		changed = true
	}
	if p.BufferSize != 0 && uint32(p.BufferSize) != def.BufferSize {
		def.BufferSize = uint32(p.BufferSize)
		changed = true
	}
	return changed
}

// Simulated configures the in-process engine (used with library names
// prefixed by "sim:").
type Simulated struct {
	// Transform is one of "copy", "upper", "reverse".
	Transform           string `yaml:"transform"`
	EmitSettingsChanged bool   `yaml:"emit_settings_changed"`
}

type Config struct {
	Library    string `yaml:"library"`
	Component  string `yaml:"component"`
	InputPort  uint32 `yaml:"input_port"`
	OutputPort uint32 `yaml:"output_port"`

	Ports []PortConfig `yaml:"ports,omitempty"`

	// DeferredSettingsChanged makes the tool poll for output port changes
	// instead of handling them on the engine's thread.
	DeferredSettingsChanged bool `yaml:"deferred_settings_changed"`

	Simulated Simulated `yaml:"simulated"`
}

func Default() Config {
	return Config{
		InputPort:  0,
		OutputPort: 1,
		Simulated: Simulated{
			Transform: "copy",
		},
	}
}

// LoadFile reads the YAML file on top of Default.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("unable to parse '%s': %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default; unknown fields are rejected.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Bytes() ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Port returns the overrides of the given port.
func (cfg Config) Port(index uint32) (PortConfig, bool) {
	for _, p := range cfg.Ports {
		if p.Index == index {
			return p, true
		}
	}
	return PortConfig{}, false
}

func (cfg Config) Validate() error {
	var result []error
	if cfg.Library == "" {
		result = append(result, ErrInvalid{Field: "library", Reason: "is required"})
	}
	if cfg.Component == "" {
		result = append(result, ErrInvalid{Field: "component", Reason: "is required"})
	}
	if cfg.InputPort == cfg.OutputPort {
		result = append(result, ErrInvalid{Field: "output_port", Reason: "must differ from input_port"})
	}
	seen := map[uint32]struct{}{}
	for _, p := range cfg.Ports {
		if _, ok := seen[p.Index]; ok {
			result = append(result, ErrInvalid{Field: "ports", Reason: fmt.Sprintf("port #%d is configured twice", p.Index)})
		}
		seen[p.Index] = struct{}{}
		if p.BufferCount == 0 && p.BufferSize == 0 {
			result = append(result, ErrInvalid{Field: "ports", Reason: fmt.Sprintf("port #%d needs a buffer count or a buffer size > 0", p.Index)})
		}
		if p.BufferSize > ByteSize(^uint32(0)) {
			result = append(result, ErrInvalid{Field: "ports", Reason: fmt.Sprintf("buffer size of port #%d is too large: %s", p.Index, p.BufferSize)})
		}
	}
	switch cfg.Simulated.Transform {
	case "", "copy", "upper", "reverse":
	default:
		result = append(result, ErrInvalid{Field: "simulated.transform", Reason: fmt.Sprintf("unknown transform '%s'", cfg.Simulated.Transform)})
	}
	return errors.Join(result...)
}
