package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/asl"
	"github.com/mklimuk/nxtsensors/calib"
	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/lego"
)

var legoCmd = cli.Command{
	Name:  "lego",
	Usage: "poll LEGO sensors",
	Subcommands: []*cli.Command{
		&legoLightCmd,
	},
}

func (s *session) legoLight() (*lego.Light, error) {
	input, err := s.analogInput()
	if err != nil {
		return nil, err
	}
	return lego.NewLight(input, lego.WithCalibration(s.store), lego.WithPort(s.port())), nil
}

var legoLightCmd = cli.Command{
	Name:  "light",
	Usage: "reflected or ambient light, 0..100 between the calibrated limits",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "ambient", Usage: "switch the floodlight off (sensor mux only)"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		light, err := s.legoLight()
		if err != nil {
			return err
		}
		err = light.SetActive(commandContext(c), !c.Bool("ambient"))
		if err != nil && (c.Bool("ambient") || !errors.Is(err, nxtsensors.ErrNotSupported)) {
			console.Warnf("could not switch the floodlight: %s", err)
		}
		return poll(c, s, "lego/light", light.Read)
	}),
}

// aslLevelKey stores the background noise level measured by calibrate asl.
const aslLevelKey = "asl-level"

type aslLevel struct {
	Level int `yaml:"level"`
}

type aslReading struct {
	asl.Reading `yaml:",inline"`
	Angle       int `yaml:"angle"`
}

func (s *session) locator(c *cli.Context) (*asl.Locator, error) {
	bus, err := s.deviceBus()
	if err != nil {
		return nil, err
	}
	opts := []asl.Option{asl.WithReversed(c.Bool("reversed"))}
	if s.address != nil {
		opts = append(opts, asl.WithAddress(*s.address))
	}
	return asl.New(bus, opts...), nil
}

var aslCmd = cli.Command{
	Name:  "asl",
	Usage: "direction of sounds heard by the acoustic sound locator",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "reversed", Usage: "the sensor is mounted upside down"},
		&cli.IntFlag{Name: "threshold", Usage: "level under which no angle is reported, defaults to the calibrated level"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		locator, err := s.locator(c)
		if err != nil {
			return err
		}
		threshold := c.Int("threshold")
		if !c.IsSet("threshold") {
			var stored aslLevel
			err := s.store.Load(aslLevelKey, &stored)
			switch {
			case err == nil:
				threshold = stored.Level
			case !errors.Is(err, calib.ErrNotFound):
				console.Warnf("could not load the calibrated level: %s", err)
			}
		}
		return poll(c, s, "asl", func(ctx context.Context) (aslReading, error) {
			r, err := locator.Read(ctx)
			if err != nil {
				return aslReading{}, err
			}
			angle, err := locator.ThresholdAngle(ctx, threshold)
			if err != nil {
				return aslReading{}, err
			}
			return aslReading{Reading: r, Angle: angle}, nil
		})
	}),
}
