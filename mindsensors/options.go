// Package mindsensors contains drivers for the Mindsensors NXT and EV3
// peripherals.
package mindsensors

import (
	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

// 7-bit bus addresses.
const (
	IRThermometerAddress byte = 0x15
	EV3SMUXAddress       byte = 0x50
	GroveAddress         byte = 0x21
	MagicWandAddress     byte = 0x38
	IMUAddress           byte = 0x11
	NXTCamAddress        byte = 0x01
)

const cmdReg byte = 0x41

type Config struct {
	Address   byte
	TxOptions []bustx.Option
}

type Option func(*Config)

func WithAddress(address byte) Option {
	return func(c *Config) {
		c.Address = address
	}
}

func WithTxOptions(opts ...bustx.Option) Option {
	return func(c *Config) {
		c.TxOptions = append(c.TxOptions, opts...)
	}
}

func newConfig(address byte, opts []Option) Config {
	c := Config{Address: address}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) conn(bus nxtsensors.I2CBus) *bustx.Conn {
	return bustx.New(bus, c.Address, c.TxOptions...)
}
