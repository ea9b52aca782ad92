// Package dexterind contains drivers for the Dexter Industries NXT sensors.
package dexterind

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
	"github.com/mklimuk/nxtsensors/calib"
)

// 7-bit bus addresses.
const (
	CompassAddress   byte = 0x1E
	ThermalIRAddress byte = 0x07
	GyroAddress      byte = 0x69
	AccelAddress     byte = 0x1D
)

const settleDelay = 50 * time.Millisecond

type Config struct {
	Address        byte
	Port           string
	TxOptions      []bustx.Option
	Calibration    nxtsensors.CalibrationStore
	SampleInterval time.Duration
}

type Option func(*Config)

func WithAddress(address byte) Option {
	return func(c *Config) {
		c.Address = address
	}
}

func WithPort(port string) Option {
	return func(c *Config) {
		c.Port = port
	}
}

func WithTxOptions(opts ...bustx.Option) Option {
	return func(c *Config) {
		c.TxOptions = append(c.TxOptions, opts...)
	}
}

func WithCalibration(store nxtsensors.CalibrationStore) Option {
	return func(c *Config) {
		c.Calibration = store
	}
}

// WithSampleInterval sets the delay between calibration samples and the time
// given to the sensor to settle after a register change.
func WithSampleInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SampleInterval = interval
	}
}

func newConfig(address byte, opts []Option) Config {
	c := Config{Address: address, SampleInterval: settleDelay}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) conn(bus nxtsensors.I2CBus) *bustx.Conn {
	return bustx.New(bus, c.Address, c.TxOptions...)
}

func (c Config) calibrationKey(device string) string {
	if c.Port == "" {
		return "dexterind-" + device
	}
	return "dexterind-" + device + "-" + c.Port
}

// load fills v from the calibration store and reports whether anything was
// found.
func (c Config) load(device string, v any) bool {
	if c.Calibration == nil {
		return false
	}
	err := c.Calibration.Load(c.calibrationKey(device), v)
	if errors.Is(err, calib.ErrNotFound) {
		return false
	}
	if err != nil {
		slog.Warn("could not load calibration", "device", device, "port", c.Port, "error", err)
		return false
	}
	return true
}

func (c Config) save(device string, v any) error {
	if c.Calibration == nil {
		return nil
	}
	return c.Calibration.Save(c.calibrationKey(device), v)
}
