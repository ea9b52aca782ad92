package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
)

const DefaultMCP23017Address = 0x21

type register int

const (
	IODIR register = iota
	IOPOL
	GPINTEN
	DEFVAL
	INTCON
	IOCON
	GPPU
	INTF
	INTCAP
	GPIO
	OLAT
)

type Port int

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	if p == PortB {
		return "B"
	}
	return "A"
}

// registerAddr returns the address of r for port p. In bank 0 the A and B
// registers are interleaved, in bank 1 the B registers start at 0x10.
func registerAddr(bank int, p Port, r register) byte {
	if bank == 1 {
		return byte(p)*0x10 + byte(r)
	}
	return byte(r)*2 + byte(p)
}

/*
	Steps to read GPIO:

1. Set 0xFF to IODIR register (all inputs)
2. Configure pull-up (GPPU)
3. Read the GPIO register
*/
type MCP23017 struct {
	mx         sync.Mutex
	transport  nxtsensors.I2CBus
	bank       int
	address    byte
	retryLimit int
}

func NewMCP23017(bus nxtsensors.I2CBus, address byte) *MCP23017 {
	return &MCP23017{retryLimit: defaultRetryLimit, transport: bus, address: address}
}

// SetDirection sets the IODIR register of a port; set bits are inputs.
func (m *MCP23017) SetDirection(ctx context.Context, p Port, inout byte) error {
	return m.writeRegister(ctx, p, IODIR, inout, "set direction")
}

// PullUp enables the pull-up resistors of a port.
func (m *MCP23017) PullUp(ctx context.Context, p Port, settings byte) error {
	return m.writeRegister(ctx, p, GPPU, settings, "set pull-up")
}

func (m *MCP23017) Settings(ctx context.Context, p Port) (byte, error) {
	return m.readRegister(ctx, p, IOCON, "read settings")
}

func (m *MCP23017) WriteSettings(ctx context.Context, p Port, settings byte) error {
	return m.writeRegister(ctx, p, IOCON, settings, "write settings")
}

func (m *MCP23017) ReadPort(ctx context.Context, p Port) (byte, error) {
	return m.readRegister(ctx, p, GPIO, "read pins")
}

// WritePort sets the output latch of a port.
func (m *MCP23017) WritePort(ctx context.Context, p Port, value byte) error {
	return m.writeRegister(ctx, p, OLAT, value, "write pins")
}

// Read returns the pins of port A followed by port B.
func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	res := make([]byte, 2)
	var err error
	for _, p := range []Port{PortA, PortB} {
		res[p], err = m.ReadPort(ctx, p)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (m *MCP23017) readRegister(ctx context.Context, p Port, r register, what string) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	addr := registerAddr(m.bank, p, r)
	buf := make([]byte, 1)
	err := retry(ctx, m.transport, m.retryLimit, fmt.Sprintf("%s of gpio %s set", what, p), func() error {
		if err := m.transport.WriteToAddr(ctx, m.address, []byte{addr}); err != nil {
			return err
		}
		return m.transport.ReadFromAddr(ctx, m.address, buf)
	})
	return buf[0], err
}

func (m *MCP23017) writeRegister(ctx context.Context, p Port, r register, value byte, what string) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	addr := registerAddr(m.bank, p, r)
	return retry(ctx, m.transport, m.retryLimit, fmt.Sprintf("%s of gpio %s set", what, p), func() error {
		return m.transport.WriteToAddr(ctx, m.address, []byte{addr, value})
	})
}
