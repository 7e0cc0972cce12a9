//go:build !tinygo

package config

import (
	"encoding/json"
	"os"
)

// LoadConfig parses a JSON configuration. Fields missing from the JSON keep
// their Default values.
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	config := Default()
	config.Divisors = nil

	err := json.Unmarshal(jsonData, config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFile reads and parses a JSON configuration file.
func LoadFile(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadConfig(data)
}

// applyDefaults fills in values that a partial file may have zeroed
func applyDefaults(config *MachineConfig) {
	defaults := Default()

	if len(config.Divisors) == 0 {
		config.Divisors = defaults.Divisors
	}
	if config.EncoderPolarity == 0 {
		config.EncoderPolarity = defaults.EncoderPolarity
	}
	if config.EndstopTicks == 0 {
		config.EndstopTicks = defaults.EndstopTicks
	}
	if config.ClockHz == 0 {
		config.ClockHz = defaults.ClockHz
	}
	if config.Link.Baud == 0 {
		config.Link.Baud = defaults.Link.Baud
	}
	if config.Display.Address == 0 {
		config.Display.Address = defaults.Display.Address
	}
}
