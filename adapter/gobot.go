package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/nxtsensors"
)

var _ nxtsensors.I2CBus = &GobotBus{}

// GobotBus exposes the I2C bus of any gobot platform adaptor (NanoPi,
// Raspberry Pi, BeagleBone...) to the drivers. Connections are opened lazily,
// one per device address.
type GobotBus struct {
	mx        sync.Mutex
	connector i2c.Connector
	busNr     int
	conns     map[byte]i2c.Connection
}

// NewGobotBus wraps a connected adaptor. A negative busNr selects the
// adaptor's default bus.
func NewGobotBus(connector i2c.Connector, busNr int) *GobotBus {
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]i2c.Connection),
	}
}

func (b *GobotBus) connection(address byte) (i2c.Connection, error) {
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %x: %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	c, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := c.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short write to %x: %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close connection to %x: %w", addr, err))
		}
		delete(b.conns, addr)
	}
	return errors.Join(errs...)
}

// AnalogPinReader is implemented by gobot adaptors with analog inputs.
type AnalogPinReader interface {
	AnalogRead(pin string) (int, error)
}

// GobotAnalog scales an adaptor's analog pin to the 10-bit range of the NXT
// analog sensor ports.
type GobotAnalog struct {
	reader AnalogPinReader
	pin    string
	max    int
}

var _ nxtsensors.AnalogReader = &GobotAnalog{}

// NewGobotAnalog binds pin; max is the full scale value returned by the
// adaptor (1023 for 10-bit converters).
func NewGobotAnalog(reader AnalogPinReader, pin string, max int) *GobotAnalog {
	if max <= 0 {
		max = 1023
	}
	return &GobotAnalog{reader: reader, pin: pin, max: max}
}

func (a *GobotAnalog) ReadAnalog(ctx context.Context) (int, error) {
	v, err := a.reader.AnalogRead(a.pin)
	if err != nil {
		return 0, fmt.Errorf("could not read analog pin %s: %w", a.pin, err)
	}
	return nxtsensors.Clip(v*1023/a.max, 0, 1023), nil
}
