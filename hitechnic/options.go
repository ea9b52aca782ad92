// Package hitechnic contains drivers for the HiTechnic NXT sensors, the
// motor multiplexer and the sensor multiplexer.
package hitechnic

import (
	"time"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

// 7-bit bus addresses; HiTechnic documents them as 0x02 and 0x10.
const (
	DefaultAddress   byte = 0x01
	IRSeekerAddress  byte = 0x08
	MotorMuxAddress  byte = 0x08
	SensorMuxAddress byte = 0x08
)

const (
	calibrationSamples  = 50
	calibrationInterval = 50 * time.Millisecond
)

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

// WithPort names the port the sensor is plugged in; it is used in logs and
// as the calibration key suffix.
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

// WithSampleInterval sets the delay between samples averaged during
// calibration.
func WithSampleInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SampleInterval = interval
	}
}

func newConfig(address byte, opts []Option) Config {
	c := Config{
		Address:        address,
		SampleInterval: calibrationInterval,
	}
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
		return "hitechnic-" + device
	}
	return "hitechnic-" + device + "-" + c.Port
}
