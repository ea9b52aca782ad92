package hitechnic

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	pirDeadbandReg byte = 0x41
	pirValueReg    byte = 0x42

	DefaultPIRDeadband = 12
	MaxPIRDeadband     = 47
)

type PIRConfig struct {
	// Deadband is the half width of the band around zero that is reported as
	// no motion.
	Deadband int `yaml:"deadband"`
}

type PIRReading struct {
	// Value is negative or positive depending on the side the heat source
	// moves on, zero when nothing moves.
	Value int `yaml:"value"`
}

// PIR is the HiTechnic passive infrared motion sensor.
type PIR struct {
	mx    sync.Mutex
	conn  *bustx.Conn
	muxed bool
}

func NewPIR(bus nxtsensors.I2CBus, opts ...Option) *PIR {
	config := newConfig(DefaultAddress, opts)
	return &PIR{conn: config.conn(bus), muxed: behindMux(bus)}
}

// Configure sets the deadband. Behind a sensor mux the sensor keeps its
// default.
func (p *PIR) Configure(ctx context.Context, config PIRConfig) error {
	if p.muxed {
		return nil
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	deadband := nxtsensors.Clip(config.Deadband, 0, MaxPIRDeadband)
	if err := p.conn.WriteReg(ctx, pirDeadbandReg, byte(deadband)); err != nil {
		return fmt.Errorf("htpir: could not set deadband: %w", err)
	}
	return nil
}

func (p *PIR) Read(ctx context.Context) (PIRReading, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	buf := make([]byte, 1)
	if err := p.conn.ReadReg(ctx, pirValueReg, buf); err != nil {
		return PIRReading{}, fmt.Errorf("htpir: could not read sensor: %w", err)
	}
	return PIRReading{Value: int(int8(buf[0]))}, nil
}
