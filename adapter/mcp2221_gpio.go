package adapter

import (
	"context"
	"fmt"
)

// mcp2221Pins is the number of GP pins of the bridge.
const mcp2221Pins = 4

// flash sub-command addressing the GP pin settings
const flashGPSettings byte = 0x01

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

// GPIODesignation selects the function of a GP pin. The same code means a
// different function on each pin.
type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b000

	GPIO0LedUartRx GPIODesignation = 0b001
	GPIO0SSPND     GPIODesignation = 0b010

	GPIO1ClockOutput        GPIODesignation = 0b001
	GPIO1ADC1               GPIODesignation = 0b010
	GPIO1LedUartTx          GPIODesignation = 0b011
	GPIO1InterruptDetection GPIODesignation = 0b100

	GPIO2ClockOutput GPIODesignation = 0b001
	GPIO2ADC2        GPIODesignation = 0b010
	GPIO2DAC1        GPIODesignation = 0b011

	GPIO3LEDI2C GPIODesignation = 0b001
	GPIO3ADC3   GPIODesignation = 0b010
	GPIO3DAC2   GPIODesignation = 0b011
)

const (
	gpioModeMask        = 0b00001000
	gpioDesignationMask = 0b00000111
)

type GPIOPin struct {
	Mode  GPIOMode `yaml:"mode"`
	Value byte     `yaml:"value"`
}

// MCP2221GPIOValues holds GP0..GP3. Pins not configured for GPIO operation
// report GPIOModeNoOperation.
type MCP2221GPIOValues [mcp2221Pins]GPIOPin

type GPIOSetting struct {
	Mode        GPIOMode        `yaml:"mode"`
	Designation GPIODesignation `yaml:"designation"`
}

type MCP2221GPIOParameters [mcp2221Pins]GPIOSetting

// ReadGPIO returns the direction and level of every GP pin.
func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var res MCP2221GPIOValues
	d.prepare(cmdGPIOGet)
	if err := d.exchange(ctx); err != nil {
		return res, fmt.Errorf("read GPIO values command failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return res, ErrCommandFailed
	}
	for i := range res {
		value, dir := d.response[2+2*i], d.response[3+2*i]
		res[i] = GPIOPin{Mode: GPIOModeNoOperation, Value: value}
		if dir != byte(GPIOModeNoOperation) {
			res[i].Mode = GPIOMode(dir << 3)
		}
	}
	return res, nil
}

// GetGPIOParameters reads the GP pin settings from flash.
func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var res MCP2221GPIOParameters
	d.prepare(cmdFlashRead)
	d.request[1] = flashGPSettings
	if err := d.exchange(ctx); err != nil {
		return res, fmt.Errorf("get GP parameters command failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return res, ErrCommandUnsupported
	}
	for i := range res {
		b := d.response[4+i]
		res[i] = GPIOSetting{
			Mode:        GPIOMode(b & gpioModeMask),
			Designation: GPIODesignation(b & gpioDesignationMask),
		}
	}
	return res, nil
}

// SetGPIOParameters writes the GP pin settings to flash. They take effect at
// the next power up.
func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdFlashWrite)
	d.request[1] = flashGPSettings
	for i, p := range params {
		d.request[2+i] = byte(p.Designation) | byte(p.Mode)
	}
	if err := d.exchange(ctx); err != nil {
		return fmt.Errorf("set GP parameters command failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}
