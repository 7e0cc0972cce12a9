package display

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"
)

// Screen is the subset of a character LCD the panel draws with.
// *hd44780i2c.Device implements it.
type Screen interface {
	ClearDisplay()
	SetCursor(col, row uint8)
	Print(data []byte)
	CreateCharacter(cgramAddr uint8, data []byte)
}

// NewLCD configures an HD44780 behind a PCF8574 I2C backpack.
func NewLCD(bus drivers.I2C, cfg Config) (*hd44780i2c.Device, error) {
	lcd := hd44780i2c.New(bus, cfg.Address)
	err := lcd.Configure(hd44780i2c.Config{
		Width:  cfg.Width,
		Height: cfg.Height,
	})
	if err != nil {
		return nil, err
	}
	return &lcd, nil
}
