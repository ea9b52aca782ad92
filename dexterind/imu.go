package dexterind

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
	gyroCtrl1     byte = 0x20
	gyroCtrl2     byte = 0x21
	gyroCtrl3     byte = 0x22
	gyroCtrl4     byte = 0x23
	gyroCtrl5     byte = 0x24
	gyroAxes      byte = 0x28
	gyroAutoIncr  byte = 0x80
	gyroBlockData byte = 0x80

	accelAxes      byte = 0x00
	accelAxes8Bit  byte = 0x06
	accelDriftBase byte = 0x10
	accelModeCtrl  byte = 0x16
	accelMeasure   byte = 0x01
)

const (
	gyroCalibrationSamples = 10
	accelOneG10Bit         = 64
)

type GyroRange byte

const (
	GyroRange250  GyroRange = 0x00
	GyroRange500  GyroRange = 0x10
	GyroRange2000 GyroRange = 0x20
)

// dps per LSB
func (r GyroRange) sensitivity() float64 {
	switch r {
	case GyroRange500:
		return 0.0175
	case GyroRange2000:
		return 0.07
	default:
		return 0.00875
	}
}

type GyroConfig struct {
	Range   GyroRange `yaml:"range"`
	LowPass bool      `yaml:"low_pass"`
}

type GyroReading struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// IMUGyro is the gyroscope (L3G4200D) of the Dexter Industries dIMU. Rates
// are in degrees per second.
type IMUGyro struct {
	mx          sync.Mutex
	conn        *bustx.Conn
	config      Config
	sensitivity float64
	offset      GyroReading
	last        GyroReading
}

func NewIMUGyro(bus nxtsensors.I2CBus, opts ...Option) *IMUGyro {
	config := newConfig(GyroAddress, opts)
	return &IMUGyro{
		conn:        config.conn(bus),
		config:      config,
		sensitivity: GyroRange250.sensitivity(),
	}
}

func (g *IMUGyro) Configure(ctx context.Context, config GyroConfig) error {
	g.mx.Lock()
	defer g.mx.Unlock()
	var lowPass byte
	if config.LowPass {
		lowPass = 0x02
	}
	writes := []struct {
		reg, value byte
	}{
		{gyroCtrl2, 0x00},
		// data ready interrupt only
		{gyroCtrl3, 0x08},
		{gyroCtrl4, byte(config.Range) | gyroBlockData},
		{gyroCtrl5, lowPass},
		// normal mode, all axes on
		{gyroCtrl1, 0x0F},
	}
	for _, w := range writes {
		if err := g.conn.WriteReg(ctx, w.reg, w.value); err != nil {
			return fmt.Errorf("dimu gyro: could not write register %#x: %w", w.reg, err)
		}
	}
	g.sensitivity = config.Range.sensitivity()
	return nil
}

func (g *IMUGyro) Read(ctx context.Context) (GyroReading, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	r, err := g.read(ctx)
	if err != nil {
		return g.last, err
	}
	g.last = GyroReading{X: r.X - g.offset.X, Y: r.Y - g.offset.Y, Z: r.Z - g.offset.Z}
	return g.last, nil
}

func (g *IMUGyro) read(ctx context.Context) (GyroReading, error) {
	buf := make([]byte, 6)
	if err := g.conn.ReadReg(ctx, gyroAxes|gyroAutoIncr, buf); err != nil {
		return GyroReading{}, fmt.Errorf("dimu gyro: could not read axes: %w", err)
	}
	axis := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(buf[i:i+2]))) * g.sensitivity
	}
	// the chip is mounted with X and Y swapped
	return GyroReading{Y: axis(0), X: axis(2), Z: axis(4)}, nil
}

// Calibrate averages the rates of the stationary sensor and subtracts them
// from subsequent readings.
func (g *IMUGyro) Calibrate(ctx context.Context) (GyroReading, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	var sum GyroReading
	for i := 0; i < gyroCalibrationSamples; i++ {
		if i > 0 {
			if err := sleep(ctx, g.config.SampleInterval); err != nil {
				return g.offset, err
			}
		}
		r, err := g.read(ctx)
		if err != nil {
			return g.offset, fmt.Errorf("dimu gyro: could not calibrate: %w", err)
		}
		sum.X += r.X
		sum.Y += r.Y
		sum.Z += r.Z
	}
	g.offset = GyroReading{
		X: sum.X / gyroCalibrationSamples,
		Y: sum.Y / gyroCalibrationSamples,
		Z: sum.Z / gyroCalibrationSamples,
	}
	return g.offset, nil
}

type AccelRange byte

const (
	AccelRange2G AccelRange = 0x04
	AccelRange4G AccelRange = 0x08
	AccelRange8G AccelRange = 0x00
)

// LSB per g of the 8-bit outputs
func (r AccelRange) divisor() float64 {
	switch r {
	case AccelRange2G:
		return 64
	case AccelRange4G:
		return 32
	default:
		return 16
	}
}

type AccelConfig struct {
	Range AccelRange `yaml:"range"`
}

// AccelReading holds accelerations in g.
type AccelReading struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// IMUAccel is the accelerometer (MMA7455L) of the Dexter Industries dIMU.
type IMUAccel struct {
	mx      sync.Mutex
	conn    *bustx.Conn
	config  Config
	divisor float64
	last    AccelReading
}

func NewIMUAccel(bus nxtsensors.I2CBus, opts ...Option) *IMUAccel {
	config := newConfig(AccelAddress, opts)
	return &IMUAccel{conn: config.conn(bus), config: config, divisor: AccelRange8G.divisor()}
}

func (a *IMUAccel) Configure(ctx context.Context, config AccelConfig) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	if err := a.conn.WriteReg(ctx, accelModeCtrl, byte(config.Range)|accelMeasure); err != nil {
		return fmt.Errorf("dimu accel: could not set mode: %w", err)
	}
	a.divisor = config.Range.divisor()
	return nil
}

// Read returns the 10-bit outputs, which are always 64 LSB per g.
func (a *IMUAccel) Read(ctx context.Context) (AccelReading, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	buf := make([]byte, 6)
	if err := a.conn.ReadReg(ctx, accelAxes, buf); err != nil {
		return a.last, fmt.Errorf("dimu accel: could not read axes: %w", err)
	}
	a.last = AccelReading{
		X: float64(accel10Bit(buf[0:2])) / accelOneG10Bit,
		Y: float64(accel10Bit(buf[2:4])) / accelOneG10Bit,
		Z: float64(accel10Bit(buf[4:6])) / accelOneG10Bit,
	}
	return a.last, nil
}

// Read8Bit returns the 8-bit outputs scaled by the configured range.
func (a *IMUAccel) Read8Bit(ctx context.Context) (AccelReading, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	buf := make([]byte, 3)
	if err := a.conn.ReadReg(ctx, accelAxes8Bit, buf); err != nil {
		return AccelReading{}, fmt.Errorf("dimu accel: could not read axes: %w", err)
	}
	return AccelReading{
		X: float64(int8(buf[0])) / a.divisor,
		Y: float64(int8(buf[1])) / a.divisor,
		Z: float64(int8(buf[2])) / a.divisor,
	}, nil
}

func accel10Bit(b []byte) int {
	v := int(binary.LittleEndian.Uint16(b) & 0x3FF)
	if v > 511 {
		v -= 1024
	}
	return v
}

// Calibrate writes drift offsets so that a sensor lying flat reads 0g on X
// and Y and 1g on Z.
func (a *IMUAccel) Calibrate(ctx context.Context) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	targets := []struct {
		axis   byte
		target int
	}{
		{0, 0},
		{2, 0},
		{4, accelOneG10Bit},
	}
	for _, t := range targets {
		if err := a.setDrift(ctx, t.axis, 0); err != nil {
			return err
		}
		if err := sleep(ctx, a.config.SampleInterval); err != nil {
			return err
		}
		buf := make([]byte, 2)
		if err := a.conn.ReadReg(ctx, accelAxes+t.axis, buf); err != nil {
			return fmt.Errorf("dimu accel: could not read axis %d: %w", t.axis/2, err)
		}
		if err := sleep(ctx, a.config.SampleInterval); err != nil {
			return err
		}
		if err := a.setDrift(ctx, t.axis, (t.target-accel10Bit(buf))*2); err != nil {
			return err
		}
	}
	return nil
}

func (a *IMUAccel) setDrift(ctx context.Context, axis byte, drift int) error {
	reg := accelDriftBase + axis
	if err := a.conn.WriteReg(ctx, reg, byte(drift)); err != nil {
		return fmt.Errorf("dimu accel: could not write drift register %#x: %w", reg, err)
	}
	if err := a.conn.WriteReg(ctx, reg+1, byte(drift>>8)); err != nil {
		return fmt.Errorf("dimu accel: could not write drift register %#x: %w", reg+1, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
