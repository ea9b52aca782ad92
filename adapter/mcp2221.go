package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/snsctx"
)

const (
	VendorID  = 0x04D8
	ProductID = 0x00DD
)

var (
	ErrCommandUnsupported = errors.New("unsupported command")
	ErrCommandFailed      = errors.New("command failed")
	ErrInvalidADCChannel  = errors.New("invalid ADC channel")
	ErrDeviceNotFound     = errors.New("MCP2221 device not found")
	ErrAmbiguousDevice    = errors.New("more than one MCP2221 connected, select one by index")
)

var (
	_ nxtsensors.I2CBus       = &MCP2221{}
	_ nxtsensors.StatusPoller = &MCP2221{}
	_ nxtsensors.Clearer      = &MCP2221{}
)

// HID reports are fixed size in both directions.
const reportSize = 64

// an I2C write or read moves at most this many bytes per report
const maxTransfer = 60

const (
	cmdStatus      byte = 0x10
	cmdI2CReadData byte = 0x40
	cmdGPIOGet     byte = 0x51
	cmdI2CWrite    byte = 0x90
	cmdI2CRead     byte = 0x91
	cmdFlashRead   byte = 0xB0
	cmdFlashWrite  byte = 0xB1
)

// status command argument cancelling the current I2C transfer
const cancelTransfer byte = 0x10

// I2C engine states reported in byte 8 of the status response.
const (
	i2cStateIdle            byte = 0x00
	i2cStateStartTimeout    byte = 0x12
	i2cStateRepStartTimeout byte = 0x17
	i2cStateAddrTimeout     byte = 0x23
	i2cStateAddrNACK        byte = 0x25
	i2cStateWriteTimeout    byte = 0x44
	i2cStateReadTimeout     byte = 0x52
	i2cStateStopTimeout     byte = 0x62
	i2cStateReadError       byte = 0x7F
)

// MCP2221 drives a Microchip MCP2221 USB to I2C bridge through its HID
// interface. The device is opened for every report so several processes can
// share it.
type MCP2221 struct {
	mx           sync.Mutex
	index        int
	request      [reportSize]byte
	response     [reportSize]byte
	responseWait time.Duration
}

type MCP2221Option func(*MCP2221)

// WithResponseWait sets the delay between a HID request and reading its
// response.
func WithResponseWait(wait time.Duration) MCP2221Option {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

// WithDeviceIndex selects one of several connected bridges in enumeration
// order.
func WithDeviceIndex(index int) MCP2221Option {
	return func(d *MCP2221) {
		d.index = index
	}
}

func NewMCP2221(opts ...MCP2221Option) *MCP2221 {
	d := &MCP2221{
		index:        -1,
		responseWait: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("write to %#x: %w", address, nxtsensors.ErrPayloadTooLarge)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdI2CWrite)
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.exchange(ctx); err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		slog.Debug("adapter busy", "address", address)
		return nxtsensors.ErrBusBusy
	}
	return nil
}

// ReadFromAddr issues the read and then collects the data the I2C engine
// buffered.
func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("read from %#x: %w", address, nxtsensors.ErrPayloadTooLarge)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdI2CRead)
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 | 1
	if err := d.exchange(ctx); err != nil {
		return fmt.Errorf("read from %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return nxtsensors.ErrBusBusy
	}
	d.prepare(cmdI2CReadData)
	if err := d.exchange(ctx); err != nil {
		return fmt.Errorf("could not fetch data read from %#x: %w", address, err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("read from %#x: %w", address, nxtsensors.ErrBusError)
	}
	if n := int(d.response[3]); n == 127 || n != len(buffer) {
		return fmt.Errorf("read from %#x: expected %d bytes, got %d", address, len(buffer), n)
	}
	copy(buffer, d.response[4:])
	return nil
}

type MCP2221Status struct {
	I2CState               byte   `yaml:"i2c_state"`
	I2CDataBufferCounter   int    `yaml:"i2c_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
	ADC                    [3]int `yaml:"adc"`
}

// BusState translates the I2C engine state into the generic bus status.
func (s *MCP2221Status) BusState() nxtsensors.BusStatus {
	switch s.I2CState {
	case i2cStateIdle:
		return nxtsensors.StatusReady
	case i2cStateStartTimeout, i2cStateRepStartTimeout, i2cStateAddrTimeout, i2cStateAddrNACK,
		i2cStateWriteTimeout, i2cStateReadTimeout, i2cStateStopTimeout, i2cStateReadError:
		return nxtsensors.StatusError
	default:
		return nxtsensors.StatusPending
	}
}

// parseStatus decodes the reply to the status command. Bytes 9..12 hold the
// requested and transferred lengths, 16..17 the address in use and 50..55 the
// three ADC conversions.
func parseStatus(buf []byte) *MCP2221Status {
	status := &MCP2221Status{
		I2CState:               buf[8],
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buf[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buf[11:13]),
		I2CDataBufferCounter:   int(buf[13]),
		I2CSpeedDivider:        int(buf[14]),
		I2CTimeout:             int(buf[15]),
		CurrentAddress:         hex.EncodeToString(buf[16:18]),
		ReadPending:            int(buf[25]),
	}
	for i := range status.ADC {
		status.ADC[i] = int(binary.LittleEndian.Uint16(buf[50+2*i:]))
	}
	return status
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, false)
}

func (d *MCP2221) status(ctx context.Context, cancel bool) (*MCP2221Status, error) {
	d.prepare(cmdStatus)
	if cancel {
		d.request[2] = cancelTransfer
	}
	if err := d.exchange(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return parseStatus(d.response[:]), nil
}

// BusStatus implements the bus-ready poll using the status command.
func (d *MCP2221) BusStatus(ctx context.Context, address byte) (nxtsensors.BusStatus, error) {
	status, err := d.Status(ctx)
	if err != nil {
		return nxtsensors.StatusError, err
	}
	return status.BusState(), nil
}

// Clear cancels the current I2C transfer, which also frees a bus held low by
// a confused slave.
func (d *MCP2221) Clear(ctx context.Context, address byte) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

// ReleaseBus cancels the current transfer and returns the status after the
// cancellation.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx, true)
}

// ReadADC returns the last conversion of one of the three ADC channels. The
// corresponding GP pin has to be configured with its ADC designation.
func (d *MCP2221) ReadADC(ctx context.Context, channel int) (int, error) {
	if channel < 0 || channel > 2 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidADCChannel, channel)
	}
	status, err := d.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.ADC[channel], nil
}

// ADCInput binds one ADC channel as an analog sensor port.
type ADCInput struct {
	dev     *MCP2221
	channel int
}

var _ nxtsensors.AnalogReader = &ADCInput{}

func (d *MCP2221) ADCInput(channel int) *ADCInput {
	return &ADCInput{dev: d, channel: channel}
}

func (a *ADCInput) ReadAnalog(ctx context.Context) (int, error) {
	return a.dev.ReadADC(ctx, a.channel)
}

func (d *MCP2221) prepare(cmd byte) {
	clear(d.request[:])
	clear(d.response[:])
	d.request[0] = cmd
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	switch {
	case len(devs) == 0:
		return nil, ErrDeviceNotFound
	case d.index < 0 && len(devs) > 1:
		return nil, ErrAmbiguousDevice
	case d.index >= len(devs):
		return nil, fmt.Errorf("%w: no device with index %d", ErrDeviceNotFound, d.index)
	}
	info := devs[max(d.index, 0)]
	dev, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", info.Path, err)
	}
	return dev, nil
}

// exchange writes the prepared request and reads the reply into d.response.
// The caller holds d.mx.
func (d *MCP2221) exchange(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		snsctx.Logger(ctx).Debug("sending message to adapter", "dump", "\n"+hex.Dump(d.request[:]))
	}
	n, err := dev.Write(d.request[:])
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.responseWait):
	}
	n, err = dev.Read(d.response[:])
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		snsctx.Logger(ctx).Debug("read message from adapter", "dump", "\n"+hex.Dump(d.response[:]))
	}
	return nil
}
