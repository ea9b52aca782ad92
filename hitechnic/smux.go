package hitechnic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/bustx"
)

const (
	smuxCommandReg  byte = 0x20
	smuxStatusReg   byte = 0x21
	smuxChannelBase byte = 0x22
	smuxChannelSize byte = 5
	smuxAnalogBase  byte = 0x36
	smuxBufferBase  byte = 0x40
	smuxCommandHalt byte = 0x00
	smuxCommandScan byte = 0x01
	smuxCommandRun  byte = 0x02
)

const (
	smuxBufferSize    = 16
	SensorMuxChannels = 4
)

// delays the mux needs to settle; tests shorten them
var (
	smuxHaltDelay   = 50 * time.Millisecond
	smuxDetectDelay = 500 * time.Millisecond
)

type SMUXStatus byte

const (
	SMUXBatteryLow SMUXStatus = 0x01
	SMUXBusy       SMUXStatus = 0x02
	SMUXHalted     SMUXStatus = 0x04
	SMUXError      SMUXStatus = 0x08
)

func (s SMUXStatus) Has(bit SMUXStatus) bool {
	return s&bit != 0
}

type SMUXMode byte

const (
	SMUXModeI2C     SMUXMode = 0x01
	SMUXMode9V      SMUXMode = 0x02
	SMUXModeDig0    SMUXMode = 0x04
	SMUXModeDig1    SMUXMode = 0x08
	SMUXModeSlowI2C SMUXMode = 0x10
)

// SMUXSensorType is what autodetect found on a channel.
type SMUXSensorType byte

const (
	SMUXSensorAnalog     SMUXSensorType = 0x00
	SMUXSensorUltrasonic SMUXSensorType = 0x01
	SMUXSensorCompass    SMUXSensorType = 0x02
	SMUXSensorColour     SMUXSensorType = 0x03
	SMUXSensorAccel      SMUXSensorType = 0x04
	SMUXSensorIRSeeker   SMUXSensorType = 0x05
	SMUXSensorProto      SMUXSensorType = 0x06
	SMUXSensorColourV2   SMUXSensorType = 0x07
	SMUXSensorAngle      SMUXSensorType = 0x08
	SMUXSensorIRSeekerV2 SMUXSensorType = 0x09
	SMUXSensorCustom     SMUXSensorType = 0x0A
	SMUXSensorNone       SMUXSensorType = 0xFF
)

func (t SMUXSensorType) String() string {
	switch t {
	case SMUXSensorAnalog:
		return "analog"
	case SMUXSensorUltrasonic:
		return "ultrasonic"
	case SMUXSensorCompass:
		return "compass"
	case SMUXSensorColour:
		return "colour"
	case SMUXSensorAccel:
		return "accelerometer"
	case SMUXSensorIRSeeker:
		return "irseeker"
	case SMUXSensorProto:
		return "proto"
	case SMUXSensorColourV2:
		return "colour-v2"
	case SMUXSensorAngle:
		return "angle"
	case SMUXSensorIRSeekerV2:
		return "irseeker-v2"
	case SMUXSensorCustom:
		return "custom"
	case SMUXSensorNone:
		return "none"
	default:
		return fmt.Sprintf("type(%#x)", byte(t))
	}
}

// SMUXChannelConfig tells the mux how to poll the sensor behind a channel.
// Address is the 7-bit address of the sensor, Register the first register
// copied into the channel buffer and Count the number of bytes copied.
type SMUXChannelConfig struct {
	Mode     SMUXMode       `yaml:"mode"`
	Type     SMUXSensorType `yaml:"type"`
	Count    int            `yaml:"count"`
	Address  byte           `yaml:"address"`
	Register byte           `yaml:"register"`
}

// Channel settings for sensors autodetect does not recognise.
var (
	SMUXColourConfig    = SMUXChannelConfig{Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 4, Address: DefaultAddress, Register: 0x42}
	SMUXAccelConfig     = SMUXChannelConfig{Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 6, Address: DefaultAddress, Register: 0x42}
	SMUXAngleConfig     = SMUXChannelConfig{Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 8, Address: DefaultAddress, Register: 0x42}
	SMUXBarometerConfig = SMUXChannelConfig{Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 4, Address: DefaultAddress, Register: 0x42}
	SMUXCompassConfig   = SMUXChannelConfig{Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 2, Address: DefaultAddress, Register: 0x42}
	SMUXIRSeekerConfig  = SMUXChannelConfig{Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 13, Address: IRSeekerAddress, Register: 0x42}
)

// SensorMux is the HiTechnic sensor multiplexer. Channels have to be
// configured while the mux is halted; readings are only refreshed while it
// runs.
type SensorMux struct {
	mx       sync.Mutex
	conn     *bustx.Conn
	channels [SensorMuxChannels]*SMUXChannel
}

func NewSensorMux(bus nxtsensors.I2CBus, opts ...Option) *SensorMux {
	config := newConfig(SensorMuxAddress, opts)
	m := &SensorMux{conn: config.conn(bus)}
	for i := range m.channels {
		m.channels[i] = &SMUXChannel{mux: m, index: i}
	}
	return m
}

func checkSMUXChannel(channel int) error {
	if channel < 0 || channel >= SensorMuxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

func (m *SensorMux) Status(ctx context.Context) (SMUXStatus, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	buf := make([]byte, 1)
	if err := m.conn.ReadReg(ctx, smuxStatusReg, buf); err != nil {
		return 0, fmt.Errorf("htsmux: could not read status: %w", err)
	}
	return SMUXStatus(buf[0]), nil
}

func (m *SensorMux) command(ctx context.Context, cmd byte, settle time.Duration) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.conn.WriteReg(ctx, smuxCommandReg, cmd); err != nil {
		return fmt.Errorf("htsmux: could not send command %d: %w", cmd, err)
	}
	return sleep(ctx, settle)
}

func (m *SensorMux) Halt(ctx context.Context) error {
	return m.command(ctx, smuxCommandHalt, smuxHaltDelay)
}

func (m *SensorMux) Run(ctx context.Context) error {
	return m.command(ctx, smuxCommandRun, 0)
}

// Scan halts the mux, runs autodetection on all channels and starts polling
// again. Cached channel configurations are dropped.
func (m *SensorMux) Scan(ctx context.Context) error {
	if err := m.Halt(ctx); err != nil {
		return err
	}
	if err := m.command(ctx, smuxCommandScan, smuxDetectDelay); err != nil {
		return err
	}
	for _, ch := range m.channels {
		ch.forget()
	}
	return m.Run(ctx)
}

func (m *SensorMux) ChannelConfig(ctx context.Context, channel int) (SMUXChannelConfig, error) {
	if err := checkSMUXChannel(channel); err != nil {
		return SMUXChannelConfig{}, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	buf := make([]byte, smuxChannelSize)
	if err := m.conn.ReadReg(ctx, smuxChannelBase+smuxChannelSize*byte(channel), buf); err != nil {
		return SMUXChannelConfig{}, fmt.Errorf("htsmux: could not read channel %d config: %w", channel, err)
	}
	return SMUXChannelConfig{
		Mode:     SMUXMode(buf[0]),
		Type:     SMUXSensorType(buf[1]),
		Count:    int(buf[2]),
		Address:  nxtsensors.Addr8To7(buf[3]),
		Register: buf[4],
	}, nil
}

// ConfigureChannel writes the channel settings; the mux must be halted.
func (m *SensorMux) ConfigureChannel(ctx context.Context, channel int, config SMUXChannelConfig) error {
	if err := checkSMUXChannel(channel); err != nil {
		return err
	}
	if config.Count < 0 || config.Count > smuxBufferSize {
		return fmt.Errorf("htsmux: channel %d: %w: count %d", channel, nxtsensors.ErrPayloadTooLarge, config.Count)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	reg := smuxChannelBase + smuxChannelSize*byte(channel)
	err := m.conn.WriteReg(ctx, reg, byte(config.Mode), byte(config.Type), byte(config.Count), config.Address<<1, config.Register)
	if err != nil {
		return fmt.Errorf("htsmux: could not configure channel %d: %w", channel, err)
	}
	m.channels[channel].remember(config)
	return nil
}

// ChannelType returns the sensor type detected on a channel.
func (m *SensorMux) ChannelType(ctx context.Context, channel int) (SMUXSensorType, error) {
	config, err := m.ChannelConfig(ctx, channel)
	if err != nil {
		return SMUXSensorNone, err
	}
	return config.Type, nil
}

// ReadAnalog returns the 10-bit value sampled on an analog channel.
func (m *SensorMux) ReadAnalog(ctx context.Context, channel int) (int, error) {
	if err := checkSMUXChannel(channel); err != nil {
		return 0, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	buf := make([]byte, 2)
	if err := m.conn.ReadReg(ctx, smuxAnalogBase+2*byte(channel), buf); err != nil {
		return 0, fmt.Errorf("htsmux: could not read analog channel %d: %w", channel, err)
	}
	return int(buf[0])*4 + int(buf[1]&0x03), nil
}

// ReadBuffer copies the polled I2C data of a channel starting at offset.
func (m *SensorMux) ReadBuffer(ctx context.Context, channel, offset int, buf []byte) error {
	if err := checkSMUXChannel(channel); err != nil {
		return err
	}
	if offset < 0 || offset+len(buf) > smuxBufferSize {
		return fmt.Errorf("htsmux: channel %d: %w: offset %d, length %d", channel, nxtsensors.ErrPayloadTooLarge, offset, len(buf))
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	reg := smuxBufferBase + smuxBufferSize*byte(channel) + byte(offset)
	if err := m.conn.ReadReg(ctx, reg, buf); err != nil {
		return fmt.Errorf("htsmux: could not read channel %d buffer: %w", channel, err)
	}
	return nil
}

// setMode rewrites the mode byte of a channel, halting the mux around the
// change.
func (m *SensorMux) setMode(ctx context.Context, channel int, set, clear SMUXMode) (SMUXChannelConfig, error) {
	config, err := m.ChannelConfig(ctx, channel)
	if err != nil {
		return config, err
	}
	config.Mode = config.Mode&^clear | set
	if err := m.Halt(ctx); err != nil {
		return config, err
	}
	if err := m.ConfigureChannel(ctx, channel, config); err != nil {
		return config, err
	}
	return config, m.Run(ctx)
}

func (m *SensorMux) Channel(channel int) (*SMUXChannel, error) {
	if err := checkSMUXChannel(channel); err != nil {
		return nil, err
	}
	return m.channels[channel], nil
}

var (
	_ nxtsensors.I2CBus            = &SMUXChannel{}
	_ nxtsensors.AnalogReader      = &SMUXChannel{}
	_ nxtsensors.AnalogPowerSetter = &SMUXChannel{}
)

// behindMux reports whether bus is a sensor mux channel. The channel config
// sets up the sensor behind it and its registers cannot be written.
func behindMux(bus nxtsensors.I2CBus) bool {
	_, ok := bus.(*SMUXChannel)
	return ok
}

// SMUXChannel exposes one mux channel as a bus so sensor drivers can be used
// behind the mux. A one byte write selects the register to read from, which
// must fall inside the configured buffer; other writes are not supported.
type SMUXChannel struct {
	mx     sync.Mutex
	mux    *SensorMux
	index  int
	config *SMUXChannelConfig
	offset int
}

func (c *SMUXChannel) Index() int {
	return c.index
}

func (c *SMUXChannel) forget() {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.config = nil
	c.offset = 0
}

func (c *SMUXChannel) remember(config SMUXChannelConfig) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.config = &config
	c.offset = 0
}

func (c *SMUXChannel) channelConfig(ctx context.Context) (SMUXChannelConfig, error) {
	c.mx.Lock()
	cached := c.config
	c.mx.Unlock()
	if cached != nil {
		return *cached, nil
	}
	config, err := c.mux.ChannelConfig(ctx, c.index)
	if err != nil {
		return config, err
	}
	c.remember(config)
	return config, nil
}

func (c *SMUXChannel) checkAddress(ctx context.Context, address byte) (SMUXChannelConfig, error) {
	config, err := c.channelConfig(ctx)
	if err != nil {
		return config, err
	}
	if config.Mode&SMUXModeI2C == 0 {
		return config, fmt.Errorf("htsmux: channel %d is analog: %w", c.index, nxtsensors.ErrNotSupported)
	}
	if address != config.Address {
		return config, fmt.Errorf("htsmux: channel %d polls %#x, not %#x: %w", c.index, config.Address, address, nxtsensors.ErrNotSupported)
	}
	return config, nil
}

func (c *SMUXChannel) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) == 0 {
		return nil
	}
	config, err := c.checkAddress(ctx, address)
	if err != nil {
		return err
	}
	if len(buffer) > 1 {
		return fmt.Errorf("htsmux: channel %d: write to register %#x: %w", c.index, buffer[0], nxtsensors.ErrNotSupported)
	}
	offset := int(buffer[0]) - int(config.Register)
	if offset < 0 || offset >= smuxBufferSize {
		return fmt.Errorf("htsmux: channel %d: register %#x outside buffer: %w", c.index, buffer[0], nxtsensors.ErrNotSupported)
	}
	c.mx.Lock()
	c.offset = offset
	c.mx.Unlock()
	return nil
}

func (c *SMUXChannel) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if _, err := c.checkAddress(ctx, address); err != nil {
		return err
	}
	c.mx.Lock()
	offset := c.offset
	c.mx.Unlock()
	return c.mux.ReadBuffer(ctx, c.index, offset, buffer)
}

func (c *SMUXChannel) Release(ctx context.Context) error {
	return nil
}

func (c *SMUXChannel) ReadAnalog(ctx context.Context) (int, error) {
	return c.mux.ReadAnalog(ctx, c.index)
}

// SetAnalogActive drives the DIG0 line of the channel, which powers the
// emitter of active analog sensors.
func (c *SMUXChannel) SetAnalogActive(ctx context.Context, active bool) error {
	var err error
	var config SMUXChannelConfig
	if active {
		config, err = c.mux.setMode(ctx, c.index, SMUXModeDig0, 0)
	} else {
		config, err = c.mux.setMode(ctx, c.index, 0, SMUXModeDig0)
	}
	if err != nil {
		return err
	}
	c.remember(config)
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
