package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/dexterind"
)

func (s *session) dexterindOptions() []dexterind.Option {
	opts := []dexterind.Option{
		dexterind.WithCalibration(s.store),
		dexterind.WithPort(s.port()),
	}
	if s.address != nil {
		opts = append(opts, dexterind.WithAddress(*s.address))
	}
	return opts
}

var gyroRanges = map[int]dexterind.GyroRange{
	250:  dexterind.GyroRange250,
	500:  dexterind.GyroRange500,
	2000: dexterind.GyroRange2000,
}

var accelRanges = map[int]dexterind.AccelRange{
	2: dexterind.AccelRange2G,
	4: dexterind.AccelRange4G,
	8: dexterind.AccelRange8G,
}

var dexterindCmd = cli.Command{
	Name:    "dexterind",
	Aliases: []string{"di"},
	Usage:   "poll Dexter Industries sensors",
	Subcommands: []*cli.Command{
		&diCompassCmd,
		&diThermalIRCmd,
		&diFlexCmd,
		&diGyroCmd,
		&diAccelCmd,
	},
}

var diCompassCmd = cli.Command{
	Name:    "compass",
	Aliases: []string{"dimc"},
	Usage:   "magnetic field axes and heading",
	Flags:   withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		compass, err := newDIMC(c, s)
		if err != nil {
			return err
		}
		return poll(c, s, "dexterind/compass", compass.Read)
	}),
}

func newDIMC(c *cli.Context, s *session) (*dexterind.Compass, error) {
	bus, err := s.deviceBus()
	if err != nil {
		return nil, err
	}
	compass := dexterind.NewCompass(bus, s.dexterindOptions()...)
	if err := compass.Configure(commandContext(c), dexterind.DefaultCompassConfig); err != nil {
		return nil, console.Exit(1, "%s", console.Red(err))
	}
	return compass, nil
}

var diThermalIRCmd = cli.Command{
	Name:    "thermalir",
	Aliases: []string{"tir"},
	Usage:   "ambient and object temperature",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "emissivity", Usage: "store a new emissivity (x10000) before polling"},
		&cli.BoolFlag{Name: "reset", Usage: "restore the factory emissivity before polling"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		tir := dexterind.NewThermalIR(bus, s.dexterindOptions()...)
		if c.Bool("reset") {
			if err := tir.Reset(ctx); err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		if c.IsSet("emissivity") {
			if err := tir.SetEmissivity(ctx, c.Int("emissivity")); err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		e, err := tir.Emissivity(ctx)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoThermometer, "emissivity %s", console.White(e))
		return poll(c, s, "dexterind/thermalir", tir.Read)
	}),
}

var diFlexCmd = cli.Command{
	Name:  "flex",
	Usage: "bend of the flex sensor, 0..100 between the calibrated limits",
	Flags: withPollFlags(),
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		return poll(c, s, "dexterind/flex", dexterind.NewFlex(input, s.dexterindOptions()...).Read)
	}),
}

var diGyroCmd = cli.Command{
	Name:  "gyro",
	Usage: "rotation speed of the dIMU gyro in degrees per second",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "range", Value: 250, Usage: "250, 500 or 2000 dps"},
		&cli.BoolFlag{Name: "low-pass", Usage: "enable the low pass filter"},
		&cli.BoolFlag{Name: "calibrate", Usage: "measure the offset of the stationary gyro first"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		r, ok := gyroRanges[c.Int("range")]
		if !ok {
			return console.Exit(1, "unsupported gyro range %d", c.Int("range"))
		}
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		gyro := dexterind.NewIMUGyro(bus, s.dexterindOptions()...)
		if err := gyro.Configure(ctx, dexterind.GyroConfig{Range: r, LowPass: c.Bool("low-pass")}); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if c.Bool("calibrate") {
			offset, err := gyro.Calibrate(ctx)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			console.Infof("gyro offset x=%.2f y=%.2f z=%.2f", offset.X, offset.Y, offset.Z)
		}
		return poll(c, s, "dexterind/gyro", gyro.Read)
	}),
}

var diAccelCmd = cli.Command{
	Name:  "accel",
	Usage: "acceleration of the dIMU accelerometer in g",
	Flags: withPollFlags(
		&cli.IntFlag{Name: "range", Value: 2, Usage: "2, 4 or 8 g"},
		&cli.BoolFlag{Name: "8bit", Usage: "read the 8-bit outputs"},
		&cli.BoolFlag{Name: "calibrate", Usage: "compensate drift with the sensor lying flat first"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		r, ok := accelRanges[c.Int("range")]
		if !ok {
			return console.Exit(1, "unsupported accelerometer range %d", c.Int("range"))
		}
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		accel := dexterind.NewIMUAccel(bus, s.dexterindOptions()...)
		if err := accel.Configure(ctx, dexterind.AccelConfig{Range: r}); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if c.Bool("calibrate") {
			if err := accel.Calibrate(ctx); err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		if c.Bool("8bit") {
			return poll(c, s, "dexterind/accel", accel.Read8Bit)
		}
		return poll(c, s, "dexterind/accel", accel.Read)
	}),
}
