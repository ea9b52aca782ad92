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
	ev3smuxCmdReg  byte = 0x52
	ev3smuxDataReg byte = 0x54

	EV3SMUXChannels = 3
)

var (
	ErrInvalidChannel = fmt.Errorf("mindsensors: invalid channel")
	ErrInvalidMode    = fmt.Errorf("mindsensors: invalid sensor mode")
)

// EV3Mode combines the EV3 sensor type (high nibble) and its mode (low
// nibble). Only the mode is sent to the multiplexer.
type EV3Mode byte

const (
	EV3ColourReflected EV3Mode = 0x00
	EV3ColourAmbient   EV3Mode = 0x01
	EV3ColourMeasure   EV3Mode = 0x02
	EV3GyroAngle       EV3Mode = 0x10
	EV3GyroRate        EV3Mode = 0x11
	EV3IRProximity     EV3Mode = 0x20
	EV3IRBeacon        EV3Mode = 0x21
	EV3IRRemote        EV3Mode = 0x22
	EV3SonarCM         EV3Mode = 0x30
	EV3SonarInches     EV3Mode = 0x31
	EV3SonarPresence   EV3Mode = 0x32
	EV3TouchBump       EV3Mode = 0x4F
)

var ev3ModeNames = map[EV3Mode]string{
	EV3ColourReflected: "colour-reflected",
	EV3ColourAmbient:   "colour-ambient",
	EV3ColourMeasure:   "colour",
	EV3GyroAngle:       "gyro-angle",
	EV3GyroRate:        "gyro-rate",
	EV3IRProximity:     "ir-proximity",
	EV3IRBeacon:        "ir-beacon",
	EV3IRRemote:        "ir-remote",
	EV3SonarCM:         "sonar-cm",
	EV3SonarInches:     "sonar-inches",
	EV3SonarPresence:   "sonar-presence",
	EV3TouchBump:       "touch",
}

func (m EV3Mode) String() string {
	if name, ok := ev3ModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%#x)", byte(m))
}

// ParseEV3Mode returns the mode with the given name.
func ParseEV3Mode(name string) (EV3Mode, error) {
	for m, n := range ev3ModeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, name)
}

func (m EV3Mode) replyLen() int {
	switch m {
	case EV3IRProximity, EV3SonarPresence:
		return 1
	case EV3IRRemote:
		return 4
	case EV3IRBeacon:
		return 8
	case EV3TouchBump, EV3ColourReflected, EV3ColourAmbient, EV3ColourMeasure,
		EV3GyroAngle, EV3GyroRate, EV3SonarCM, EV3SonarInches:
		return 2
	}
	return 0
}

// EV3Reading holds the fields decoded for the current mode; the others stay
// zero.
type EV3Reading struct {
	Mode            EV3Mode `yaml:"mode"`
	Touch           bool    `yaml:"touch,omitempty"`
	BumpCount       int     `yaml:"bump_count,omitempty"`
	Light           int     `yaml:"light,omitempty"`
	Colour          int     `yaml:"colour,omitempty"`
	Angle           int     `yaml:"angle,omitempty"`
	Rate            int     `yaml:"rate,omitempty"`
	Distance        int     `yaml:"distance,omitempty"`
	Presence        bool    `yaml:"presence,omitempty"`
	BeaconProximity [4]int  `yaml:"beacon_proximity,omitempty"`
	BeaconHeading   [4]int  `yaml:"beacon_heading,omitempty"`
	Remote          [4]int  `yaml:"remote,omitempty"`
}

// EV3SMUX is the Mindsensors EV3 sensor multiplexer. Every channel answers on
// its own address.
type EV3SMUX struct {
	bus    nxtsensors.I2CBus
	config Config
}

func NewEV3SMUX(bus nxtsensors.I2CBus, opts ...Option) *EV3SMUX {
	return &EV3SMUX{bus: bus, config: newConfig(EV3SMUXAddress, opts)}
}

// Sensor returns the sensor on channel 0..2. The mode is sent by Configure.
func (m *EV3SMUX) Sensor(channel int, mode EV3Mode) (*EV3Sensor, error) {
	if channel < 0 || channel >= EV3SMUXChannels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if mode.replyLen() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	return &EV3Sensor{
		conn:    bustx.New(m.bus, m.config.Address+byte(channel), m.config.TxOptions...),
		channel: channel,
		mode:    mode,
	}, nil
}

type EV3Sensor struct {
	mx      sync.Mutex
	conn    *bustx.Conn
	channel int
	mode    EV3Mode
}

func (s *EV3Sensor) Channel() int {
	return s.channel
}

func (s *EV3Sensor) Mode() EV3Mode {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.mode
}

// Configure sends the current mode to the multiplexer.
func (s *EV3Sensor) Configure(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.sendMode(ctx)
}

func (s *EV3Sensor) SetMode(ctx context.Context, mode EV3Mode) error {
	if mode.replyLen() == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.mode = mode
	return s.sendMode(ctx)
}

func (s *EV3Sensor) sendMode(ctx context.Context) error {
	if err := s.conn.WriteReg(ctx, ev3smuxCmdReg, byte(s.mode)&0x0F); err != nil {
		return fmt.Errorf("msev3smux: could not set channel %d to %s: %w", s.channel, s.mode, err)
	}
	return nil
}

func (s *EV3Sensor) Read(ctx context.Context) (EV3Reading, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	buf := make([]byte, s.mode.replyLen())
	if err := s.conn.ReadReg(ctx, ev3smuxDataReg, buf); err != nil {
		return EV3Reading{}, fmt.Errorf("msev3smux: could not read channel %d: %w", s.channel, err)
	}
	return decodeEV3(s.mode, buf), nil
}

func decodeEV3(mode EV3Mode, buf []byte) EV3Reading {
	r := EV3Reading{Mode: mode}
	word := func() int {
		return int(int16(binary.LittleEndian.Uint16(buf)))
	}
	switch mode {
	case EV3TouchBump:
		r.Touch = buf[0] == 1
		r.BumpCount = int(buf[1])
	case EV3ColourReflected, EV3ColourAmbient:
		r.Light = word()
	case EV3ColourMeasure:
		r.Colour = word()
	case EV3GyroAngle:
		r.Angle = word()
	case EV3GyroRate:
		r.Rate = word()
	case EV3IRProximity:
		r.Distance = int(buf[0])
	case EV3IRBeacon:
		for i := 0; i < 4; i++ {
			r.BeaconProximity[i] = int(buf[i*2])
			r.BeaconHeading[i] = int(int8(buf[i*2+1]))
		}
	case EV3IRRemote:
		for i := 0; i < 4; i++ {
			r.Remote[i] = int(buf[i])
		}
	case EV3SonarCM, EV3SonarInches:
		r.Distance = word()
	case EV3SonarPresence:
		r.Presence = buf[0] == 1
	}
	return r
}
