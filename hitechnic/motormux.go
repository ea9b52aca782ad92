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
	mmuxCmdOffset  byte = 0x40
	mmuxEntrySize  byte = 0x0A
	mmuxTargetEnc  byte = 0x00
	mmuxPower      byte = 0x04
	mmuxModeStatus byte = 0x05
	mmuxCurrentEnc byte = 0x06
)

const MotorMuxChannels = 4

type MotorCommand byte

const (
	MotorBrake         MotorCommand = 0x00
	MotorRunConstSpeed MotorCommand = 0x01
	MotorRunConstPower MotorCommand = 0x02
	MotorFloat         MotorCommand = 0x03
	MotorRunToPosition MotorCommand = 0x04
	MotorResetEncoder  MotorCommand = 0x05
)

type MotorStatus byte

const (
	MotorStatusUnavailable MotorStatus = 0x10
	MotorStatusNoBattery   MotorStatus = 0x40
	MotorStatusBusy        MotorStatus = 0x80
)

func (s MotorStatus) Has(bit MotorStatus) bool {
	return s&bit != 0
}

var ErrInvalidChannel = fmt.Errorf("hitechnic: invalid channel")

// MotorMux is the HiTechnic motor multiplexer driving up to four NXT motors
// from a single sensor port.
type MotorMux struct {
	mx     sync.Mutex
	conn   *bustx.Conn
	motors [MotorMuxChannels]*MuxMotor
}

func NewMotorMux(bus nxtsensors.I2CBus, opts ...Option) *MotorMux {
	config := newConfig(MotorMuxAddress, opts)
	m := &MotorMux{conn: config.conn(bus)}
	for i := range m.motors {
		m.motors[i] = &MuxMotor{mux: m, channel: byte(i), brake: true, pid: true}
	}
	return m
}

func mmuxReg(channel, r byte) byte {
	return mmuxCmdOffset + mmuxEntrySize*channel + r
}

func checkChannel(channel int) error {
	if channel < 0 || channel >= MotorMuxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

func (m *MotorMux) Status(ctx context.Context, channel int) (MotorStatus, error) {
	if err := checkChannel(channel); err != nil {
		return 0, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	buf := make([]byte, 1)
	if err := m.conn.ReadReg(ctx, mmuxReg(byte(channel), mmuxModeStatus), buf); err != nil {
		return 0, fmt.Errorf("htmmux: could not read status of channel %d: %w", channel, err)
	}
	return MotorStatus(buf[0]), nil
}

func (m *MotorMux) SendCommand(ctx context.Context, channel int, cmd MotorCommand) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.conn.WriteReg(ctx, mmuxReg(byte(channel), mmuxModeStatus), byte(cmd)); err != nil {
		return fmt.Errorf("htmmux: could not send command %d to channel %d: %w", cmd, channel, err)
	}
	return nil
}

// Run writes power (-100..100) and the run mode in one transaction.
func (m *MotorMux) Run(ctx context.Context, channel int, power int, cmd MotorCommand) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	p := int8(nxtsensors.Clip(power, -100, 100))
	if err := m.conn.WriteReg(ctx, mmuxReg(byte(channel), mmuxPower), byte(p), byte(cmd)); err != nil {
		return fmt.Errorf("htmmux: could not run channel %d: %w", channel, err)
	}
	return nil
}

func (m *MotorMux) SetEncoderTarget(ctx context.Context, channel int, target int32) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, uint32(target))
	if err := m.conn.WriteReg(ctx, mmuxReg(byte(channel), mmuxTargetEnc), data...); err != nil {
		return fmt.Errorf("htmmux: could not set encoder target of channel %d: %w", channel, err)
	}
	return nil
}

func (m *MotorMux) Encoder(ctx context.Context, channel int) (int32, error) {
	if err := checkChannel(channel); err != nil {
		return 0, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	buf := make([]byte, 4)
	if err := m.conn.ReadReg(ctx, mmuxReg(byte(channel), mmuxCurrentEnc), buf); err != nil {
		return 0, fmt.Errorf("htmmux: could not read encoder of channel %d: %w", channel, err)
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

func (m *MotorMux) ResetEncoder(ctx context.Context, channel int) error {
	return m.SendCommand(ctx, channel, MotorResetEncoder)
}

func (m *MotorMux) Stop(ctx context.Context, channel int, brake bool) error {
	if brake {
		return m.SendCommand(ctx, channel, MotorBrake)
	}
	return m.SendCommand(ctx, channel, MotorFloat)
}

// Motor returns the handle of one channel (0..3).
func (m *MotorMux) Motor(channel int) (*MuxMotor, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	return m.motors[channel], nil
}

// MuxMotor keeps the per-channel run settings used when power is applied.
// New handles brake on stop and use PID speed control.
type MuxMotor struct {
	mx          sync.Mutex
	mux         *MotorMux
	channel     byte
	brake       bool
	pid         bool
	runToTarget bool
}

func (mm *MuxMotor) Channel() int {
	return int(mm.channel)
}

// SetPower drives the motor. Zero stops it (brake or float), a pending
// encoder target turns the next run into a run-to-position.
func (mm *MuxMotor) SetPower(ctx context.Context, power int) error {
	mm.mx.Lock()
	defer mm.mx.Unlock()
	ch := int(mm.channel)
	switch {
	case power == 0:
		return mm.mux.Stop(ctx, ch, mm.brake)
	case mm.runToTarget:
		err := mm.mux.Run(ctx, ch, power, MotorRunToPosition)
		if err == nil {
			mm.runToTarget = false
		}
		return err
	case mm.pid:
		return mm.mux.Run(ctx, ch, power, MotorRunConstSpeed)
	default:
		return mm.mux.Run(ctx, ch, power, MotorRunConstPower)
	}
}

func (mm *MuxMotor) SetEncoderTarget(ctx context.Context, target int32) error {
	mm.mx.Lock()
	defer mm.mx.Unlock()
	if err := mm.mux.SetEncoderTarget(ctx, int(mm.channel), target); err != nil {
		return err
	}
	mm.runToTarget = true
	return nil
}

func (mm *MuxMotor) Encoder(ctx context.Context) (int32, error) {
	return mm.mux.Encoder(ctx, int(mm.channel))
}

func (mm *MuxMotor) ResetEncoder(ctx context.Context) error {
	return mm.mux.ResetEncoder(ctx, int(mm.channel))
}

// Busy reports whether a run-to-position is still in progress.
func (mm *MuxMotor) Busy(ctx context.Context) (bool, error) {
	status, err := mm.mux.Status(ctx, int(mm.channel))
	if err != nil {
		return false, err
	}
	return status.Has(MotorStatusBusy), nil
}

func (mm *MuxMotor) SetBrake(brake bool) {
	mm.mx.Lock()
	defer mm.mx.Unlock()
	mm.brake = brake
}

func (mm *MuxMotor) SetPIDControl(pid bool) {
	mm.mx.Lock()
	defer mm.mx.Unlock()
	mm.pid = pid
}
