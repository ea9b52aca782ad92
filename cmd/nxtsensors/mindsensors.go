package main

import (
	"context"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/mindsensors"
)

func (s *session) mindsensorsOptions() []mindsensors.Option {
	if s.address == nil {
		return nil
	}
	return []mindsensors.Option{mindsensors.WithAddress(*s.address)}
}

var imuRanges = map[int]mindsensors.IMURange{
	2:  mindsensors.IMURange2G,
	4:  mindsensors.IMURange4G,
	8:  mindsensors.IMURange8G,
	16: mindsensors.IMURange16G,
}

var mindsensorsCmd = cli.Command{
	Name:    "mindsensors",
	Aliases: []string{"ms"},
	Usage:   "poll Mindsensors devices",
	Subcommands: []*cli.Command{
		&msIRThermometerCmd,
		&msEV3SMUXCmd,
		&msGroveCmd,
		&msWandCmd,
		&msIMUCmd,
		&msNXTCamCmd,
	},
}

var msIRThermometerCmd = cli.Command{
	Name:    "irthermometer",
	Aliases: []string{"irt"},
	Usage:   "ambient and target temperature",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "fahrenheit", Aliases: []string{"f"}},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		config := mindsensors.IRThermometerConfig{Unit: mindsensors.Celsius}
		if c.Bool("fahrenheit") {
			config.Unit = mindsensors.Fahrenheit
		}
		irt := mindsensors.NewIRThermometer(bus, s.mindsensorsOptions()...)
		if err := irt.Configure(commandContext(c), config); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "mindsensors/irthermometer", irt.Read)
	}),
}

var msEV3SMUXCmd = cli.Command{
	Name:  "ev3smux",
	Usage: "an EV3 sensor behind the EV3 sensor multiplexer",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "channel", Usage: "mux channel, 0..2"},
		&cli.StringFlag{
			Name:  "mode",
			Value: mindsensors.EV3TouchBump.String(),
			Usage: "touch, colour, colour-reflected, colour-ambient, gyro-angle, gyro-rate, ir-proximity, ir-beacon, ir-remote, sonar-cm, sonar-inches or sonar-presence",
		},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		mode, err := mindsensors.ParseEV3Mode(c.String("mode"))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		sensor, err := mindsensors.NewEV3SMUX(bus, s.mindsensorsOptions()...).Sensor(c.Int("channel"), mode)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := sensor.Configure(commandContext(c)); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "mindsensors/ev3smux/"+strconv.Itoa(sensor.Channel()), sensor.Read)
	}),
}

var msGroveCmd = cli.Command{
	Name:  "grove",
	Usage: "Grove sensors behind the EV3 Grove adapter",
	Subcommands: []*cli.Command{
		{
			Name:  "analog",
			Usage: "voltage of an analog Grove sensor",
			Flags: withPollFlags(),
			Action: withSession(func(c *cli.Context, s *session) error {
				bus, err := s.deviceBus()
				if err != nil {
					return err
				}
				grove := mindsensors.NewGrove(bus, s.mindsensorsOptions()...)
				if err := grove.ConfigureAnalog(commandContext(c)); err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return poll(c, s, "mindsensors/grove/analog", grove.ReadAnalog)
			}),
		},
		{
			Name:  "light",
			Usage: "Grove digital light sensor",
			Flags: withPollFlags(),
			Action: withSession(func(c *cli.Context, s *session) error {
				bus, err := s.deviceBus()
				if err != nil {
					return err
				}
				light := mindsensors.NewGroveLight(bus, s.mindsensorsOptions()...)
				if err := light.Configure(commandContext(c)); err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return poll(c, s, "mindsensors/grove/light", light.Read)
			}),
		},
	},
}

var msWandCmd = cli.Command{
	Name:  "wand",
	Usage: "Magic Wand LEDs",
	Subcommands: []*cli.Command{
		{
			Name:  "state",
			Usage: "poll the lit LEDs",
			Flags: withPollFlags(),
			Action: withSession(func(c *cli.Context, s *session) error {
				bus, err := s.deviceBus()
				if err != nil {
					return err
				}
				return poll(c, s, "mindsensors/wand", mindsensors.NewMagicWand(bus, s.mindsensorsOptions()...).State)
			}),
		},
		{
			Name:      "set",
			Usage:     "light the LEDs of a bit mask",
			ArgsUsage: "<hex mask>",
			Action: withSession(func(c *cli.Context, s *session) error {
				if c.NArg() != 1 {
					return console.Exit(1, "expected 1 argument, got %d", c.NArg())
				}
				mask, err := strconv.ParseUint(c.Args().Get(0), 16, 8)
				if err != nil {
					return console.Exit(1, "could not decode mask: %v", err)
				}
				bus, err := s.deviceBus()
				if err != nil {
					return err
				}
				wand := mindsensors.NewMagicWand(bus, s.mindsensorsOptions()...)
				if err := wand.SetLEDs(commandContext(c), byte(mask)); err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return nil
			}),
		},
		{
			Name:      "toggle",
			ArgsUsage: "<led 0..7>",
			Action: withSession(func(c *cli.Context, s *session) error {
				led, err := strconv.Atoi(c.Args().First())
				if err != nil {
					return console.Exit(1, "invalid led %q", c.Args().First())
				}
				bus, err := s.deviceBus()
				if err != nil {
					return err
				}
				wand := mindsensors.NewMagicWand(bus, s.mindsensorsOptions()...)
				if err := wand.ToggleLED(commandContext(c), led); err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return nil
			}),
		},
		{
			Name:  "flash",
			Usage: "flash all LEDs and clear them",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "times", Value: 3},
			},
			Action: withSession(func(c *cli.Context, s *session) error {
				bus, err := s.deviceBus()
				if err != nil {
					return err
				}
				wand := mindsensors.NewMagicWand(bus, s.mindsensorsOptions()...)
				if err := wand.FlashAndClear(commandContext(c), c.Int("times")); err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return nil
			}),
		},
	},
}

var msIMUCmd = cli.Command{
	Name:    "imu",
	Aliases: []string{"absimu"},
	Usage:   "AbsoluteIMU heading, magnetic field, acceleration, tilt and rotation",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "range", Value: 2, Usage: "accelerometer range, 2, 4, 8 or 16 g"},
		&cli.IntFlag{Name: "gyro-filter", Value: mindsensors.DefaultIMUConfig.GyroFilter, Usage: "0 (none) to 7"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		r, ok := imuRanges[c.Int("range")]
		if !ok {
			return console.Exit(1, "unsupported range %d", c.Int("range"))
		}
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		imu := mindsensors.NewIMU(bus, s.mindsensorsOptions()...)
		if err := imu.Configure(commandContext(c), mindsensors.IMUConfig{Range: r, GyroFilter: c.Int("gyro-filter")}); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "mindsensors/imu", imu.Read)
	}),
}

type camReading struct {
	Blobs   []mindsensors.Blob `yaml:"blobs"`
	CentreX int                `yaml:"centre_x,omitempty"`
	CentreY int                `yaml:"centre_y,omitempty"`
	Found   bool               `yaml:"found"`
}

var msNXTCamCmd = cli.Command{
	Name:  "nxtcam",
	Usage: "blobs tracked by the NXTCam",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "lines", Usage: "track lines instead of objects"},
		&cli.BoolFlag{Name: "merge", Usage: "merge overlapping blobs of the same colour"},
		&cli.IntFlag{Name: "colour", Value: 0, Usage: "colour map entry the centre is computed for"},
		&cli.IntFlag{Name: "min-area", Value: 4, Usage: "smallest blob counted in the centre"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		config := mindsensors.NXTCamConfig{Mode: mindsensors.TrackObjects, Merge: c.Bool("merge")}
		if c.Bool("lines") {
			config.Mode = mindsensors.TrackLines
		}
		cam := mindsensors.NewNXTCam(bus, s.mindsensorsOptions()...)
		ctx := commandContext(c)
		if err := cam.Configure(ctx, config); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = cam.Command(context.WithoutCancel(ctx), mindsensors.CamDisable) }()
		colour, minArea := c.Int("colour"), c.Int("min-area")
		return poll(c, s, "mindsensors/nxtcam", func(ctx context.Context) (camReading, error) {
			r, err := cam.Read(ctx)
			if err != nil {
				return camReading{}, err
			}
			x, y, ok := mindsensors.AverageCentre(r.Blobs, colour, minArea)
			return camReading{Blobs: r.Blobs, CentreX: x, CentreY: y, Found: ok}, nil
		})
	}),
}
