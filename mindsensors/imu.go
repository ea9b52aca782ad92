package mindsensors

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	imuTiltReg    byte = 0x42
	imuAccelReg   byte = 0x45
	imuHeadingReg byte = 0x4B
	imuMagReg     byte = 0x4D
	imuGyroReg    byte = 0x53
	imuFilterReg  byte = 0x5A

	imuCmdStartCalibration byte = 'C'
	imuCmdStopCalibration  byte = 'c'
)

type IMURange byte

const (
	IMURange2G  IMURange = '1'
	IMURange4G  IMURange = '2'
	IMURange8G  IMURange = '3'
	IMURange16G IMURange = '4'
)

type IMUConfig struct {
	Range IMURange `yaml:"range"`
	// GyroFilter is the gyro low pass filter level, 0 (none) to 7.
	GyroFilter int `yaml:"gyro_filter"`
}

var DefaultIMUConfig = IMUConfig{Range: IMURange2G, GyroFilter: 4}

type Vector struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

type IMUReading struct {
	Heading int `yaml:"heading"`
	// Magnetic field components used to compute Heading.
	Mag Vector `yaml:"mag"`
	// Accel is in milli-g.
	Accel Vector `yaml:"accel"`
	Tilt  Vector `yaml:"tilt"`
	Gyro  Vector `yaml:"gyro"`
}

// IMU is the Mindsensors AbsoluteIMU (compass, accelerometer and gyro).
type IMU struct {
	mx   sync.Mutex
	conn *bustx.Conn
}

func NewIMU(bus nxtsensors.I2CBus, opts ...Option) *IMU {
	config := newConfig(IMUAddress, opts)
	return &IMU{conn: config.conn(bus)}
}

func (m *IMU) Configure(ctx context.Context, config IMUConfig) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.conn.WriteReg(ctx, cmdReg, byte(config.Range)); err != nil {
		return fmt.Errorf("msimu: could not set range: %w", err)
	}
	filter := nxtsensors.Clip(config.GyroFilter, 0, 7)
	if err := m.conn.WriteReg(ctx, imuFilterReg, byte(filter)); err != nil {
		return fmt.Errorf("msimu: could not set gyro filter: %w", err)
	}
	return nil
}

func (m *IMU) Heading(ctx context.Context) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	buf := make([]byte, 2)
	if err := m.conn.ReadReg(ctx, imuHeadingReg, buf); err != nil {
		return 0, fmt.Errorf("msimu: could not read heading: %w", err)
	}
	return int(binary.LittleEndian.Uint16(buf)), nil
}

func (m *IMU) MagneticField(ctx context.Context) (Vector, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.vector(ctx, imuMagReg, "magnetic field")
}

func (m *IMU) Read(ctx context.Context) (IMUReading, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	var r IMUReading
	tilt := make([]byte, 3)
	if err := m.conn.ReadReg(ctx, imuTiltReg, tilt); err != nil {
		return r, fmt.Errorf("msimu: could not read tilt: %w", err)
	}
	r.Tilt = Vector{X: int(tilt[0]), Y: int(tilt[1]), Z: int(tilt[2])}
	var err error
	if r.Accel, err = m.vector(ctx, imuAccelReg, "acceleration"); err != nil {
		return r, err
	}
	// heading and magnetic field are contiguous
	buf := make([]byte, 8)
	if err := m.conn.ReadReg(ctx, imuHeadingReg, buf); err != nil {
		return r, fmt.Errorf("msimu: could not read compass: %w", err)
	}
	r.Heading = int(binary.LittleEndian.Uint16(buf[0:2]))
	r.Mag = decodeVector(buf[2:])
	if r.Gyro, err = m.vector(ctx, imuGyroReg, "gyro"); err != nil {
		return r, err
	}
	return r, nil
}

// StartCalibration puts the compass in calibration mode; the sensor should be
// turned slowly in every direction until StopCalibration.
func (m *IMU) StartCalibration(ctx context.Context) error {
	return m.command(ctx, imuCmdStartCalibration)
}

func (m *IMU) StopCalibration(ctx context.Context) error {
	return m.command(ctx, imuCmdStopCalibration)
}

func (m *IMU) command(ctx context.Context, cmd byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.conn.WriteReg(ctx, cmdReg, cmd); err != nil {
		return fmt.Errorf("msimu: could not send command %q: %w", cmd, err)
	}
	return nil
}

func (m *IMU) vector(ctx context.Context, reg byte, what string) (Vector, error) {
	buf := make([]byte, 6)
	if err := m.conn.ReadReg(ctx, reg, buf); err != nil {
		return Vector{}, fmt.Errorf("msimu: could not read %s: %w", what, err)
	}
	return decodeVector(buf), nil
}

func decodeVector(buf []byte) Vector {
	axis := func(i int) int {
		return int(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	return Vector{X: axis(0), Y: axis(1), Z: axis(2)}
}
