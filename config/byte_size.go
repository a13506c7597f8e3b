// byte_size.go implements a byte amount accepting human-readable units.

package config

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is an amount of bytes; in YAML and flags it accepts values
// like "4096", "64KiB" or "1 MB".
type ByteSize uint64

func (s ByteSize) String() string {
	return humanize.IBytes(uint64(s))
}

// Set implements pflag.Value.
func (s *ByteSize) Set(value string) error {
	v, err := humanize.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("unable to parse byte size '%s': %w", value, err)
	}
	*s = ByteSize(v)
	return nil
}

// Type implements pflag.Value.
func (s *ByteSize) Type() string {
	return "bytes"
}

func (s *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: a byte size must be a scalar", value.Line)
	}
	return s.Set(value.Value)
}

func (s ByteSize) MarshalYAML() (any, error) {
	return s.String(), nil
}
