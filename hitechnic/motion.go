package hitechnic

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	dataReg byte = 0x42
	cmdReg  byte = 0x41

	angleCmdMeasure          byte = 0x00
	angleCmdResetAngle       byte = 0x43
	angleCmdResetAccumulated byte = 0x52
)

type AccelReading struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// Accelerometer is the HiTechnic 3-axis acceleration sensor; 200 units are
// about 1g.
type Accelerometer struct {
	mx   sync.Mutex
	conn *bustx.Conn
}

func NewAccelerometer(bus nxtsensors.I2CBus, opts ...Option) *Accelerometer {
	config := newConfig(DefaultAddress, opts)
	return &Accelerometer{conn: config.conn(bus)}
}

func (a *Accelerometer) Read(ctx context.Context) (AccelReading, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	buf := make([]byte, 6)
	if err := a.conn.ReadReg(ctx, dataReg, buf); err != nil {
		return AccelReading{}, fmt.Errorf("htac: could not read sensor: %w", err)
	}
	// upper 8 bits first for all axes, then the 2 lower bits
	axis := func(i int) int {
		return int(int8(buf[i]))*4 + int(buf[i+3]&0x03)
	}
	return AccelReading{X: axis(0), Y: axis(1), Z: axis(2)}, nil
}

type AngleReading struct {
	Angle            int `yaml:"angle"`
	AccumulatedAngle int `yaml:"accumulated_angle"`
	RPM              int `yaml:"rpm"`
}

// Angle is the HiTechnic angle sensor (rotary encoder).
type Angle struct {
	mx   sync.Mutex
	conn *bustx.Conn
}

func NewAngle(bus nxtsensors.I2CBus, opts ...Option) *Angle {
	config := newConfig(DefaultAddress, opts)
	return &Angle{conn: config.conn(bus)}
}

func (a *Angle) Read(ctx context.Context) (AngleReading, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	buf := make([]byte, 8)
	if err := a.conn.ReadReg(ctx, dataReg, buf); err != nil {
		return AngleReading{}, fmt.Errorf("htang: could not read sensor: %w", err)
	}
	return AngleReading{
		Angle:            int(buf[0])*2 + int(buf[1]),
		AccumulatedAngle: int(int32(binary.BigEndian.Uint32(buf[2:6]))),
		RPM:              int(int16(binary.BigEndian.Uint16(buf[6:8]))),
	}, nil
}

// ResetAngle makes the current position the zero of Angle.
func (a *Angle) ResetAngle(ctx context.Context) error {
	return a.command(ctx, angleCmdResetAngle)
}

func (a *Angle) ResetAccumulated(ctx context.Context) error {
	return a.command(ctx, angleCmdResetAccumulated)
}

func (a *Angle) command(ctx context.Context, cmd byte) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := a.conn.WriteReg(ctx, cmdReg, cmd); err != nil {
		return fmt.Errorf("htang: could not send command %#x: %w", cmd, err)
	}
	return nil
}

const (
	mInHgToHPa = 0.03386389
	mInHgToPsi = 0.491098 / 1000
)

type BarometerReading struct {
	Celsius    float64 `yaml:"celsius"`
	Fahrenheit float64 `yaml:"fahrenheit"`
	MInHg      int     `yaml:"minhg"`
	HPa        float64 `yaml:"hpa"`
	Psi        float64 `yaml:"psi"`
}

// Barometer is the HiTechnic barometric pressure and temperature sensor.
type Barometer struct {
	mx   sync.Mutex
	conn *bustx.Conn
}

func NewBarometer(bus nxtsensors.I2CBus, opts ...Option) *Barometer {
	config := newConfig(DefaultAddress, opts)
	return &Barometer{conn: config.conn(bus)}
}

func (b *Barometer) Read(ctx context.Context) (BarometerReading, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	buf := make([]byte, 4)
	if err := b.conn.ReadReg(ctx, dataReg, buf); err != nil {
		return BarometerReading{}, fmt.Errorf("htbm: could not read sensor: %w", err)
	}
	celsius := float64(binary.BigEndian.Uint16(buf[0:2])) / 10
	mInHg := int(binary.BigEndian.Uint16(buf[2:4]))
	return BarometerReading{
		Celsius:    celsius,
		Fahrenheit: celsius*1.8 + 32,
		MInHg:      mInHg,
		HPa:        float64(mInHg) * mInHgToHPa,
		Psi:        float64(mInHg) * mInHgToPsi,
	}, nil
}

// IRReceiverBrake is reported for a channel whose remote button requests
// braking.
const IRReceiverBrake = -128

type IRReceiverReading struct {
	// Motors holds the A and B speeds (-100..100) for remote channels 1 to 4.
	Motors [4][2]int `yaml:"motors"`
}

// IRReceiver is the HiTechnic receiver for LEGO Power Functions remotes.
type IRReceiver struct {
	mx   sync.Mutex
	conn *bustx.Conn
}

func NewIRReceiver(bus nxtsensors.I2CBus, opts ...Option) *IRReceiver {
	config := newConfig(DefaultAddress, opts)
	return &IRReceiver{conn: config.conn(bus)}
}

func (r *IRReceiver) Read(ctx context.Context) (IRReceiverReading, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	buf := make([]byte, 8)
	if err := r.conn.ReadReg(ctx, dataReg, buf); err != nil {
		return IRReceiverReading{}, fmt.Errorf("htirr: could not read sensor: %w", err)
	}
	var reading IRReceiverReading
	for ch := 0; ch < 4; ch++ {
		reading.Motors[ch][0] = int(int8(buf[ch*2]))
		reading.Motors[ch][1] = int(int8(buf[ch*2+1]))
	}
	return reading, nil
}
