package mindsensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	groveCmdReg    byte = 0x41
	groveModeReg   byte = 0x42
	groveAnalogReg byte = 0x44
	groveReadAddr  byte = 0x47
	groveReadData  byte = 0x4A
	groveWriteAddr byte = 0x6A
	groveCmdPoll   byte = 0x50
	groveCmdWrite  byte = 0x54
)

const (
	groveMaxPayload     = 32
	defaultPollInterval = 50 * time.Millisecond
)

type GroveMode byte

const (
	GroveAnalog   GroveMode = 1
	GroveDigital0 GroveMode = 2
	GroveDigital1 GroveMode = 3
	GroveI2C      GroveMode = 4
)

// GroveTransfer describes a transaction the adapter runs on the Grove
// sensor's own bus. Address is 7-bit.
type GroveTransfer struct {
	Address  byte   `yaml:"address"`
	Register byte   `yaml:"register"`
	Length   int    `yaml:"length,omitempty"`
	Data     []byte `yaml:"data,omitempty"`
}

// GroveI2CConfig makes the adapter send Init once and then repeat Poll every
// PollInterval (50ms when zero), keeping the last reply ready to be read.
type GroveI2CConfig struct {
	Init         GroveTransfer `yaml:"init"`
	Poll         GroveTransfer `yaml:"poll"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Grove is the Mindsensors EV3 Grove adapter.
type Grove struct {
	mx   sync.Mutex
	conn *bustx.Conn
	mode GroveMode
	poll GroveTransfer
}

func NewGrove(bus nxtsensors.I2CBus, opts ...Option) *Grove {
	config := newConfig(GroveAddress, opts)
	return &Grove{conn: config.conn(bus)}
}

// ConfigureAnalog switches the adapter to analog voltage reads.
func (g *Grove) ConfigureAnalog(ctx context.Context) error {
	g.mx.Lock()
	defer g.mx.Unlock()
	if err := g.conn.WriteReg(ctx, groveModeReg, byte(GroveAnalog)); err != nil {
		return fmt.Errorf("msgrove: could not set analog mode: %w", err)
	}
	g.mode = GroveAnalog
	return nil
}

// ConfigureI2C switches the adapter to I2C pass-through with auto-poll.
func (g *Grove) ConfigureI2C(ctx context.Context, config GroveI2CConfig) error {
	if len(config.Init.Data) > groveMaxPayload || config.Poll.Length <= 0 || config.Poll.Length > groveMaxPayload {
		return fmt.Errorf("msgrove: %w: init %d, poll %d, max %d", nxtsensors.ErrPayloadTooLarge, len(config.Init.Data), config.Poll.Length, groveMaxPayload)
	}
	g.mx.Lock()
	defer g.mx.Unlock()
	if err := g.conn.WriteReg(ctx, groveCmdReg, groveCmdWrite, byte(GroveI2C)); err != nil {
		return fmt.Errorf("msgrove: could not set i2c mode: %w", err)
	}
	initTx := append([]byte{config.Init.Address << 1, byte(len(config.Init.Data)), config.Init.Register}, config.Init.Data...)
	if err := g.conn.WriteReg(ctx, groveWriteAddr, initTx...); err != nil {
		return fmt.Errorf("msgrove: could not send init transfer: %w", err)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	interval := byte(min(config.PollInterval.Milliseconds(), 255))
	if err := g.conn.WriteReg(ctx, groveCmdReg, groveCmdPoll, byte(GroveI2C), interval); err != nil {
		return fmt.Errorf("msgrove: could not enable auto-poll: %w", err)
	}
	poll := []byte{config.Poll.Address << 1, byte(config.Poll.Length), config.Poll.Register}
	if err := g.conn.WriteReg(ctx, groveReadAddr, poll...); err != nil {
		return fmt.Errorf("msgrove: could not set poll transfer: %w", err)
	}
	g.mode = GroveI2C
	g.poll = config.Poll
	return nil
}

// ReadAnalog returns the 10-bit analog sample.
func (g *Grove) ReadAnalog(ctx context.Context) (int, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	if g.mode != GroveAnalog {
		return 0, fmt.Errorf("msgrove: %w: not in analog mode", nxtsensors.ErrNotSupported)
	}
	buf := make([]byte, 2)
	if err := g.conn.ReadReg(ctx, groveAnalogReg, buf); err != nil {
		return 0, fmt.Errorf("msgrove: could not read analog value: %w", err)
	}
	return int(binary.LittleEndian.Uint16(buf)), nil
}

// ReadI2C returns the last reply of the polled transfer.
func (g *Grove) ReadI2C(ctx context.Context) ([]byte, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	if g.mode != GroveI2C {
		return nil, fmt.Errorf("msgrove: %w: not in i2c mode", nxtsensors.ErrNotSupported)
	}
	buf := make([]byte, g.poll.Length)
	if err := g.conn.ReadReg(ctx, groveReadData, buf); err != nil {
		return nil, fmt.Errorf("msgrove: could not read i2c data: %w", err)
	}
	return buf, nil
}

// TSL2561 digital light sensor as wired to the Grove adapter.
const (
	groveLightAddress byte = 0x29
	tslCommand        byte = 0x80
	tslData0          byte = 0x0C
	tslPowerOn        byte = 0x03
)

var GroveDigitalLightConfig = GroveI2CConfig{
	Init:         GroveTransfer{Address: groveLightAddress, Register: tslCommand, Data: []byte{tslPowerOn}},
	Poll:         GroveTransfer{Address: groveLightAddress, Register: tslCommand | tslData0, Length: 4},
	PollInterval: 50 * time.Millisecond,
}

type GroveLightReading struct {
	Broadband int `yaml:"broadband"`
	Infrared  int `yaml:"infrared"`
}

// GroveLight reads the Grove digital light sensor through the adapter.
type GroveLight struct {
	grove *Grove
}

func NewGroveLight(bus nxtsensors.I2CBus, opts ...Option) *GroveLight {
	return &GroveLight{grove: NewGrove(bus, opts...)}
}

func (l *GroveLight) Configure(ctx context.Context) error {
	return l.grove.ConfigureI2C(ctx, GroveDigitalLightConfig)
}

func (l *GroveLight) Read(ctx context.Context) (GroveLightReading, error) {
	data, err := l.grove.ReadI2C(ctx)
	if err != nil {
		return GroveLightReading{}, err
	}
	return GroveLightReading{
		Broadband: int(binary.LittleEndian.Uint16(data[0:2])),
		Infrared:  int(binary.LittleEndian.Uint16(data[2:4])),
	}, nil
}
