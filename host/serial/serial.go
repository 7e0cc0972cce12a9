// Package serial opens the USB serial link to a power feed controller.
package serial

import (
	"io"
)

// DefaultBaud matches the controller's UART setting.
const DefaultBaud = 115200

// Port is an open serial connection.
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered data in both directions
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the controller's default port settings.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
