package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/firgelli"
	"github.com/mklimuk/nxtsensors/hitechnic"
)

func (s *session) muxMotor(channel int) (*hitechnic.MuxMotor, error) {
	bus, err := s.deviceBus()
	if err != nil {
		return nil, err
	}
	var opts []hitechnic.Option
	if s.address != nil {
		opts = append(opts, hitechnic.WithAddress(*s.address))
	}
	motor, err := hitechnic.NewMotorMux(bus, opts...).Motor(channel)
	if err != nil {
		return nil, console.Exit(1, "%s", console.Red(err))
	}
	return motor, nil
}

func channelArg(c *cli.Context) (int, error) {
	ch, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return 0, console.Exit(1, "invalid channel %q", c.Args().First())
	}
	return ch, nil
}

var motormuxCmd = cli.Command{
	Name:  "motormux",
	Usage: "drive the HiTechnic motor multiplexer",
	Subcommands: []*cli.Command{
		&motormuxRunCmd,
		&motormuxStopCmd,
		&motormuxEncoderCmd,
		&motormuxResetCmd,
	},
}

var motormuxRunCmd = cli.Command{
	Name:      "run",
	ArgsUsage: "<channel 0..3> <power -100..100>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "pid", Usage: "constant speed control"},
		&cli.BoolFlag{Name: "float", Usage: "float instead of braking when stopped"},
		&cli.IntFlag{Name: "target", Usage: "run to this encoder position"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		ch, err := channelArg(c)
		if err != nil {
			return err
		}
		power, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "invalid power %q", c.Args().Get(1))
		}
		motor, err := s.muxMotor(ch)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		motor.SetBrake(!c.Bool("float"))
		motor.SetPIDControl(c.Bool("pid"))
		if c.IsSet("target") {
			if err := motor.SetEncoderTarget(ctx, int32(c.Int("target"))); err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		if err := motor.SetPower(ctx, power); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoGear, "motor %d running at %s", ch, console.White(power))
		return nil
	}),
}

var motormuxStopCmd = cli.Command{
	Name:      "stop",
	ArgsUsage: "<channel 0..3>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "float", Usage: "let the motor coast"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		ch, err := channelArg(c)
		if err != nil {
			return err
		}
		motor, err := s.muxMotor(ch)
		if err != nil {
			return err
		}
		motor.SetBrake(!c.Bool("float"))
		if err := motor.SetPower(commandContext(c), 0); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return nil
	}),
}

type encoderReading struct {
	Encoder int32 `yaml:"encoder"`
	Busy    bool  `yaml:"busy"`
}

var motormuxEncoderCmd = cli.Command{
	Name:      "encoder",
	Usage:     "poll the encoder of a channel",
	ArgsUsage: "<channel 0..3>",
	Flags:     withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		ch, err := channelArg(c)
		if err != nil {
			return err
		}
		motor, err := s.muxMotor(ch)
		if err != nil {
			return err
		}
		return poll(c, s, "hitechnic/motormux/"+strconv.Itoa(ch), func(ctx context.Context) (encoderReading, error) {
			enc, err := motor.Encoder(ctx)
			if err != nil {
				return encoderReading{}, err
			}
			busy, err := motor.Busy(ctx)
			if err != nil {
				return encoderReading{}, err
			}
			return encoderReading{Encoder: enc, Busy: busy}, nil
		})
	}),
}

var motormuxResetCmd = cli.Command{
	Name:      "reset",
	Usage:     "reset the encoder of a channel",
	ArgsUsage: "<channel 0..3>",
	Action: withSession(func(c *cli.Context, s *session) error {
		ch, err := channelArg(c)
		if err != nil {
			return err
		}
		motor, err := s.muxMotor(ch)
		if err != nil {
			return err
		}
		if err := motor.ResetEncoder(commandContext(c)); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return nil
	}),
}

var actuatorFlags = []cli.Flag{
	&cli.IntFlag{Name: "channel", Usage: "motor mux channel the actuator is wired to"},
	&cli.IntFlag{Name: "speed", Value: 100, Usage: "0..100"},
	&cli.IntFlag{Name: "ticks", Usage: "encoder ticks to travel, 0 runs to the end stop"},
	&cli.BoolFlag{Name: "reversed", Usage: "swap extend and retract"},
	&cli.DurationFlag{Name: "stall-window", Value: firgelli.DefaultStallWindow, Usage: "how long the encoder may stand still before the move ends"},
}

var actuatorCmd = cli.Command{
	Name:  "actuator",
	Usage: "move a Firgelli linear actuator",
	Subcommands: []*cli.Command{
		{
			Name:   "extend",
			Flags:  actuatorFlags,
			Action: withSession(moveActuator(true)),
		},
		{
			Name:   "retract",
			Flags:  actuatorFlags,
			Action: withSession(moveActuator(false)),
		},
	},
}

func moveActuator(extend bool) func(c *cli.Context, s *session) error {
	return func(c *cli.Context, s *session) error {
		motor, err := s.muxMotor(c.Int("channel"))
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt)
		defer stop()
		a := firgelli.New(motor,
			firgelli.WithReversed(c.Bool("reversed")),
			firgelli.WithStallWindow(c.Duration("stall-window")),
		)
		if extend {
			err = a.Extend(ctx, c.Int("speed"), c.Int("ticks"))
		} else {
			err = a.Retract(ctx, c.Int("speed"), c.Int("ticks"))
		}
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		err = a.Wait(context.WithoutCancel(ctx))
		if err != nil && ctx.Err() == nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		switch {
		case ctx.Err() != nil:
			console.PInfof(console.PictoStop, "interrupted after %s ticks", console.White(a.Travelled()))
		case a.Stalled():
			console.PInfof(console.PictoFinish, "stalled after %s ticks", console.White(a.Travelled()))
		default:
			console.PInfof(console.PictoFinish, "travelled %s ticks", console.White(a.Travelled()))
		}
		return nil
	}
}
