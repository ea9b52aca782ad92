package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/adapter"
	"github.com/mklimuk/nxtsensors/calib"
	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/hitechnic"
	"github.com/mklimuk/nxtsensors/i2c"
	"github.com/mklimuk/nxtsensors/snsctx"
)

const (
	AdapterI2C     = "i2c"
	AdapterMCP2221 = "mcp2221"
	AdapterGobot   = "gobot"
)

const defaultInterval = 100 * time.Millisecond

// Rig describes the hardware the commands talk to. It is read from the
// --config file, command line flags take precedence.
type Rig struct {
	Adapter string `yaml:"adapter"`
	// Bus is the periph bus name for the i2c adapter and the bus number for
	// gobot.
	Bus string `yaml:"bus"`
	// ADC is the MCP2221 ADC channel analog sensors are wired to.
	ADC int `yaml:"adc"`
	// SMUX routes the sensor through a HiTechnic sensor mux channel.
	SMUX           *int          `yaml:"smux,omitempty"`
	Interval       time.Duration `yaml:"interval"`
	MQTT           string        `yaml:"mqtt"`
	CalibrationDir string        `yaml:"calibration_dir"`
	Modem          ModemRig      `yaml:"modem"`
}

type ModemRig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

func defaultRig() Rig {
	return Rig{
		Adapter:        AdapterI2C,
		ADC:            1,
		Interval:       defaultInterval,
		CalibrationDir: calib.DefaultDir(),
		Modem:          ModemRig{Port: "/dev/ttyUSB0", Baud: 9600},
	}
}

// LoadRig reads a rig file over the defaults. A missing file is not an
// error.
func LoadRig(path string) (Rig, error) {
	rig := defaultRig()
	if path == "" {
		return rig, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("rig file not found, using defaults", "path", path)
		return rig, nil
	}
	if err != nil {
		return rig, fmt.Errorf("could not read rig file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rig); err != nil {
		return rig, fmt.Errorf("could not decode rig file %s: %w", path, err)
	}
	if err := rig.validate(); err != nil {
		return rig, fmt.Errorf("invalid rig file %s: %w", path, err)
	}
	return rig, nil
}

func (r *Rig) validate() error {
	switch r.Adapter {
	case AdapterI2C, AdapterMCP2221, AdapterGobot:
	default:
		return fmt.Errorf("unknown adapter %q", r.Adapter)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", r.Interval)
	}
	if r.SMUX != nil && (*r.SMUX < 0 || *r.SMUX >= hitechnic.SensorMuxChannels) {
		return fmt.Errorf("smux channel %d out of range", *r.SMUX)
	}
	return nil
}

func (r *Rig) applyFlags(c *cli.Context) error {
	if c.IsSet("adapter") {
		r.Adapter = c.String("adapter")
	}
	if c.IsSet("bus") {
		r.Bus = c.String("bus")
	}
	if c.IsSet("adc") {
		r.ADC = c.Int("adc")
	}
	if c.IsSet("smux") {
		ch := c.Int("smux")
		r.SMUX = &ch
	}
	if c.IsSet("interval") {
		r.Interval = c.Duration("interval")
	}
	if c.IsSet("mqtt") {
		r.MQTT = c.String("mqtt")
	}
	if c.IsSet("calibration-dir") {
		r.CalibrationDir = c.String("calibration-dir")
	}
	return r.validate()
}

// session holds the bus and helpers opened for one command.
type session struct {
	rig   Rig
	bus   nxtsensors.I2CBus
	mcp   *adapter.MCP2221
	store *calib.Store
	// address overrides the device default when set
	address *byte
	smux    *hitechnic.SensorMux
	closers []func() error
}

func openSession(c *cli.Context) (*session, error) {
	rig, err := LoadRig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := rig.applyFlags(c); err != nil {
		return nil, err
	}
	s := &session{rig: rig, store: calib.NewStore(rig.CalibrationDir)}
	if c.IsSet("address") {
		addr, err := parseAddress(c.String("address"))
		if err != nil {
			return nil, err
		}
		s.address = &addr
	}
	switch rig.Adapter {
	case AdapterMCP2221:
		s.mcp = adapter.NewMCP2221()
		s.bus = s.mcp
	case AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		busNr := -1
		if rig.Bus != "" {
			busNr, err = strconv.Atoi(rig.Bus)
			if err != nil {
				_ = npi.I2cBusAdaptor.Finalize()
				return nil, fmt.Errorf("invalid gobot bus number %q: %w", rig.Bus, err)
			}
		}
		bus := adapter.NewGobotBus(npi, busNr)
		s.bus = bus
		s.closers = append(s.closers, bus.Close, npi.I2cBusAdaptor.Finalize)
	default:
		bus, err := i2c.NewGenericBus(rig.Bus)
		if err != nil {
			return nil, err
		}
		s.bus = bus
		s.closers = append(s.closers, bus.Close)
	}
	slog.Debug("bus opened", "adapter", rig.Adapter, "bus", rig.Bus)
	return s, nil
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Debug("could not close", "error", err)
		}
	}
}

// port names the connection of the device for calibration keys.
func (s *session) port() string {
	if s.rig.SMUX != nil {
		return fmt.Sprintf("smux%d", *s.rig.SMUX)
	}
	return ""
}

func (s *session) sensorMux() *hitechnic.SensorMux {
	if s.smux == nil {
		s.smux = hitechnic.NewSensorMux(s.bus)
	}
	return s.smux
}

// deviceBus is the bus a digital sensor is reached through: the adapter bus
// or a sensor mux channel.
func (s *session) deviceBus() (nxtsensors.I2CBus, error) {
	if s.rig.SMUX == nil {
		return s.bus, nil
	}
	ch, err := s.sensorMux().Channel(*s.rig.SMUX)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// analogInput is the port an analog sensor is read from: a sensor mux channel
// or an MCP2221 ADC channel.
func (s *session) analogInput() (nxtsensors.AnalogReader, error) {
	if s.rig.SMUX != nil {
		ch, err := s.sensorMux().Channel(*s.rig.SMUX)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	if s.mcp != nil {
		return s.mcp.ADCInput(s.rig.ADC), nil
	}
	return nil, fmt.Errorf("analog sensors need the %s adapter or a sensor mux channel: %w", AdapterMCP2221, nxtsensors.ErrNotSupported)
}

func parseAddress(s string) (byte, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("invalid address %q: expected one hex byte", s)
	}
	if b[0] > 0x7F {
		return 0, fmt.Errorf("invalid address %#x: expected a 7-bit address", b[0])
	}
	return b[0], nil
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// withSession opens the rig before running action and closes it afterwards.
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "could not open rig: %s", console.Red(err))
		}
		defer s.Close()
		return action(c, s)
	}
}
