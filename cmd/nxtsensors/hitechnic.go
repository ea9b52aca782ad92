package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/hitechnic"
)

func (s *session) hitechnicOptions() []hitechnic.Option {
	opts := []hitechnic.Option{
		hitechnic.WithCalibration(s.store),
		hitechnic.WithPort(s.port()),
	}
	if s.address != nil {
		opts = append(opts, hitechnic.WithAddress(*s.address))
	}
	return opts
}

var hitechnicCmd = cli.Command{
	Name:    "hitechnic",
	Aliases: []string{"ht"},
	Usage:   "poll HiTechnic sensors",
	Subcommands: []*cli.Command{
		&htCompassCmd,
		&htGyroCmd,
		&htForceCmd,
		&htPIRCmd,
		&htColourCmd,
		&htIRSeekerCmd,
		&htAccelCmd,
		&htAngleCmd,
		&htBarometerCmd,
		&htEOPDCmd,
		&htIRReceiverCmd,
		&htMagFieldCmd,
		&htTouchMuxCmd,
		&htSMUXCmd,
	},
}

var htCompassCmd = cli.Command{
	Name:  "compass",
	Usage: "heading and heading relative to a target",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "target", Usage: "heading the relative heading is measured from"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		compass := hitechnic.NewCompass(bus, s.hitechnicOptions()...)
		compass.SetTarget(c.Int("target"))
		return poll(c, s, "hitechnic/compass", compass.Read)
	}),
}

var htGyroCmd = cli.Command{
	Name:  "gyro",
	Usage: "rotation speed of the analog gyro",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/gyro", hitechnic.NewGyro(input, s.hitechnicOptions()...).Read)
	}),
}

var htForceCmd = cli.Command{
	Name:  "force",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/force", hitechnic.NewForce(input).Read)
	}),
}

var htPIRCmd = cli.Command{
	Name:  "pir",
	Usage: "passive infrared motion",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "deadband", Value: hitechnic.DefaultPIRDeadband, Usage: fmt.Sprintf("0..%d", hitechnic.MaxPIRDeadband)},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		pir := hitechnic.NewPIR(bus, s.hitechnicOptions()...)
		if err := pir.Configure(commandContext(c), hitechnic.PIRConfig{Deadband: c.Int("deadband")}); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "hitechnic/pir", pir.Read)
	}),
}

var colourModes = map[string]hitechnic.ColourMode{
	hitechnic.ColourModeActive.String():  hitechnic.ColourModeActive,
	hitechnic.ColourModePassive.String(): hitechnic.ColourModePassive,
	hitechnic.ColourModeRaw.String():     hitechnic.ColourModeRaw,
	hitechnic.ColourMode50Hz.String():    hitechnic.ColourMode50Hz,
	hitechnic.ColourMode60Hz.String():    hitechnic.ColourMode60Hz,
}

var htColourCmd = cli.Command{
	Name:    "colour",
	Aliases: []string{"color"},
	Usage:   "colour number, RGB and HSV",
	Flags: withPollFlags(
		&cli.StringFlag{Name: "mode", Value: "active", Usage: "active, passive, raw, 50Hz or 60Hz"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		mode, ok := colourModes[c.String("mode")]
		if !ok {
			return console.Exit(1, "unknown colour mode %q", c.String("mode"))
		}
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		sensor := hitechnic.NewColour(bus, s.hitechnicOptions()...)
		if err := sensor.Configure(commandContext(c), hitechnic.ColourConfig{Mode: mode}); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "hitechnic/colour", sensor.Read)
	}),
}

var htIRSeekerCmd = cli.Command{
	Name:  "irseeker",
	Usage: "direction and strength of an infrared beacon",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "600hz", Usage: "tune the AC channels to 600Hz instead of 1200Hz"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		config := hitechnic.IRSeekerConfig{Mode: hitechnic.IRSeeker1200Hz}
		if c.Bool("600hz") {
			config.Mode = hitechnic.IRSeeker600Hz
		}
		seeker := hitechnic.NewIRSeeker(bus, s.hitechnicOptions()...)
		if err := seeker.Configure(commandContext(c), config); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "hitechnic/irseeker", seeker.Read)
	}),
}

var htAccelCmd = cli.Command{
	Name:    "accel",
	Aliases: []string{"acceleration"},
	Flags:   withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/accel", hitechnic.NewAccelerometer(bus, s.hitechnicOptions()...).Read)
	}),
}

var htAngleCmd = cli.Command{
	Name:  "angle",
	Usage: "angle, accumulated angle and rpm",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "reset", Usage: "reset the angle and the accumulated angle first"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		angle := hitechnic.NewAngle(bus, s.hitechnicOptions()...)
		if c.Bool("reset") {
			ctx := commandContext(c)
			if err := angle.ResetAngle(ctx); err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			if err := angle.ResetAccumulated(ctx); err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		return poll(c, s, "hitechnic/angle", angle.Read)
	}),
}

var htBarometerCmd = cli.Command{
	Name:  "barometer",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/barometer", hitechnic.NewBarometer(bus, s.hitechnicOptions()...).Read)
	}),
}

var htEOPDCmd = cli.Command{
	Name:  "eopd",
	Usage: "electro optical proximity",
	Flags: withPollFlags(
		&cli.BoolFlag{Name: "long-range"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		eopd := hitechnic.NewEOPD(input)
		if err := eopd.Configure(commandContext(c), hitechnic.EOPDConfig{LongRange: c.Bool("long-range")}); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return poll(c, s, "hitechnic/eopd", eopd.Read)
	}),
}

var htIRReceiverCmd = cli.Command{
	Name:  "irreceiver",
	Usage: "motor speeds sent by Power Functions remotes",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/irreceiver", hitechnic.NewIRReceiver(bus, s.hitechnicOptions()...).Read)
	}),
}

var htMagFieldCmd = cli.Command{
	Name:  "magfield",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/magfield", hitechnic.NewMagField(input, s.hitechnicOptions()...).Read)
	}),
}

var htTouchMuxCmd = cli.Command{
	Name:  "touchmux",
	Usage: "buttons of the touch sensor multiplexer",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/touchmux", hitechnic.NewTouchMux(input).Read)
	}),
}

var htSMUXCmd = cli.Command{
	Name:  "smux",
	Usage: "sensor multiplexer management",
	Subcommands: []*cli.Command{
		&htSMUXStatusCmd,
		&htSMUXScanCmd,
		&htSMUXConfigureCmd,
	},
}

var htSMUXStatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the mux status and the configuration of every channel",
	Action: withSession(func(c *cli.Context, s *session) error {
		ctx := commandContext(c)
		mux := s.sensorMux()
		status, err := mux.Status(ctx)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Printf("status: %#02x", byte(status))
		for _, flag := range []struct {
			bit  hitechnic.SMUXStatus
			name string
		}{
			{hitechnic.SMUXBatteryLow, "battery-low"},
			{hitechnic.SMUXBusy, "busy"},
			{hitechnic.SMUXHalted, "halted"},
			{hitechnic.SMUXError, "error"},
		} {
			if status.Has(flag.bit) {
				console.Printf(" %s", console.Yellow(flag.name))
			}
		}
		console.Printf("\n")
		w := tabwriter.NewWriter(os.Stdout, 8, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "CHANNEL\tTYPE\tMODE\tADDRESS\tREGISTER\tCOUNT\n")
		for ch := 0; ch < hitechnic.SensorMuxChannels; ch++ {
			config, err := mux.ChannelConfig(ctx, ch)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%#02x\t%#02x\t%#02x\t%d\n",
				ch, config.Type, byte(config.Mode), config.Address, config.Register, config.Count)
		}
		_ = w.Flush()
		return nil
	}),
}

var htSMUXScanCmd = cli.Command{
	Name:  "scan",
	Usage: "autodetect the sensors plugged into the mux",
	Action: withSession(func(c *cli.Context, s *session) error {
		ctx := commandContext(c)
		mux := s.sensorMux()
		if err := mux.Scan(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		for ch := 0; ch < hitechnic.SensorMuxChannels; ch++ {
			t, err := mux.ChannelType(ctx, ch)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			console.PInfof(console.PictoPin, "channel %d: %s", ch, console.White(t))
		}
		return nil
	}),
}

var smuxSensorConfigs = map[string]hitechnic.SMUXChannelConfig{
	"colour":    hitechnic.SMUXColourConfig,
	"accel":     hitechnic.SMUXAccelConfig,
	"angle":     hitechnic.SMUXAngleConfig,
	"barometer": hitechnic.SMUXBarometerConfig,
	"compass":   hitechnic.SMUXCompassConfig,
	"irseeker":  hitechnic.SMUXIRSeekerConfig,
}

var htSMUXConfigureCmd = cli.Command{
	Name:      "configure",
	Usage:     "set up a channel for a sensor autodetect does not recognise",
	ArgsUsage: "<channel> <colour|accel|angle|barometer|compass|irseeker>",
	Action: withSession(func(c *cli.Context, s *session) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		var ch int
		if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &ch); err != nil {
			return console.Exit(1, "invalid channel %q", c.Args().Get(0))
		}
		config, ok := smuxSensorConfigs[c.Args().Get(1)]
		if !ok {
			return console.Exit(1, "unknown sensor %q", c.Args().Get(1))
		}
		ctx := commandContext(c)
		mux := s.sensorMux()
		if err := mux.Halt(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := mux.ConfigureChannel(ctx, ch, config); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := mux.Run(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "channel %d configured for %s", ch, console.White(c.Args().Get(1)))
		return nil
	}),
}
