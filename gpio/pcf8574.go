package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
)

const DefaultPCF8574Address = 0x20

var ErrInvalidPin = fmt.Errorf("invalid pin")

// PCF8574 is an 8-bit quasi-bidirectional expander. It has no registers: a
// one byte write sets the outputs and a one byte read samples the pins. A pin
// written high is weakly pulled up and can be used as an input.
type PCF8574 struct {
	mx         sync.Mutex
	transport  nxtsensors.I2CBus
	address    byte
	retryLimit int
}

func NewPCF8574(bus nxtsensors.I2CBus, address byte) *PCF8574 {
	return &PCF8574{retryLimit: defaultRetryLimit, transport: bus, address: address}
}

func (p *PCF8574) Address() byte {
	return p.address
}

func (p *PCF8574) Read(ctx context.Context) (byte, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.read(ctx)
}

func (p *PCF8574) Write(ctx context.Context, value byte) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.write(ctx, value)
}

// Set drives a single pin (0..7) leaving the others as they are.
func (p *PCF8574) Set(ctx context.Context, pin int, high bool) error {
	return p.update(ctx, pin, func(state, mask byte) byte {
		if high {
			return state | mask
		}
		return state &^ mask
	})
}

func (p *PCF8574) Toggle(ctx context.Context, pin int) error {
	return p.update(ctx, pin, func(state, mask byte) byte {
		return state ^ mask
	})
}

func (p *PCF8574) update(ctx context.Context, pin int, f func(state, mask byte) byte) error {
	if pin < 0 || pin > 7 {
		return fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	state, err := p.read(ctx)
	if err != nil {
		return err
	}
	return p.write(ctx, f(state, 1<<pin))
}

func (p *PCF8574) read(ctx context.Context) (byte, error) {
	buf := make([]byte, 1)
	err := retry(ctx, p.transport, p.retryLimit, "read pcf8574 pins", func() error {
		return p.transport.ReadFromAddr(ctx, p.address, buf)
	})
	return buf[0], err
}

func (p *PCF8574) write(ctx context.Context, value byte) error {
	return retry(ctx, p.transport, p.retryLimit, "write pcf8574 pins", func() error {
		return p.transport.WriteToAddr(ctx, p.address, []byte{value})
	})
}
