package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/dexterind"
	"github.com/mklimuk/nxtsensors/hitechnic"
	"github.com/mklimuk/nxtsensors/mindsensors"
)

var calibrateCmd = cli.Command{
	Name:  "calibrate",
	Usage: "calibrate a sensor; results are kept in the calibration directory",
	Subcommands: []*cli.Command{
		&calibrateCompassCmd,
		&calibrateGyroCmd,
		&calibrateMagFieldCmd,
		&calibrateDIMCCmd,
		&calibrateFlexCmd,
		&calibrateLightCmd,
		&calibrateASLCmd,
		&calibrateIMUCmd,
	},
}

var calibrateCompassCmd = cli.Command{
	Name:  "compass",
	Usage: "hard-iron calibration of the HiTechnic compass",
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		compass := hitechnic.NewCompass(bus, s.hitechnicOptions()...)
		if err := console.Step("place the robot on a level surface away from metal"); err != nil {
			return err
		}
		if err := compass.StartCalibration(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := console.Step("turn the robot slowly through one and a half turns"); err != nil {
			return err
		}
		if err := compass.StopCalibration(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "compass calibrated")
		return nil
	}),
}

var calibrateGyroCmd = cli.Command{
	Name:  "gyro",
	Usage: "offset of the HiTechnic gyro",
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		if err := console.Step("keep the gyro still"); err != nil {
			return err
		}
		offset, err := hitechnic.NewGyro(input, s.hitechnicOptions()...).Calibrate(commandContext(c))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "gyro offset %s", console.White(offset))
		return nil
	}),
}

var calibrateMagFieldCmd = cli.Command{
	Name:  "magfield",
	Usage: "bias of the HiTechnic magnetic field sensor",
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		if err := console.Step("keep magnets away from the sensor"); err != nil {
			return err
		}
		bias, err := hitechnic.NewMagField(input, s.hitechnicOptions()...).Calibrate(commandContext(c))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "magnetic field bias %s", console.White(bias))
		return nil
	}),
}

var calibrateDIMCCmd = cli.Command{
	Name:  "dimc",
	Usage: "hard-iron offsets of the Dexter Industries compass",
	Action: withSession(func(c *cli.Context, s *session) error {
		compass, err := newDIMC(c, s)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(commandContext(c))
		defer cancel()
		compass.StartCalibration()
		done := make(chan struct{})
		go func() {
			defer close(done)
			sampleCompass(ctx, compass, s.rig.Interval)
		}()
		err = console.Step("rotate the sensor slowly through every orientation")
		cancel()
		<-done
		if err != nil {
			return err
		}
		offsets, err := compass.StopCalibration()
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "compass offsets x=%d y=%d z=%d", offsets.X, offsets.Y, offsets.Z)
		return nil
	}),
}

// sampleCompass keeps reading so the compass can track the extremes of its
// axes.
func sampleCompass(ctx context.Context, compass *dexterind.Compass, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := compass.Read(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("compass read failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// limitsCalibrator is implemented by the sensors normalised between a low and
// a high reading.
type limitsCalibrator interface {
	CalibrateLow(ctx context.Context) (int, error)
	CalibrateHigh(ctx context.Context) (int, error)
}

func calibrateLimits(ctx context.Context, sensor limitsCalibrator, lowStep, highStep string) error {
	if err := console.Step(lowStep); err != nil {
		return err
	}
	low, err := sensor.CalibrateLow(ctx)
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	if err := console.Step(highStep); err != nil {
		return err
	}
	high, err := sensor.CalibrateHigh(ctx)
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	console.PInfof(console.PictoFinish, "limits low=%s high=%s", console.White(low), console.White(high))
	return nil
}

var calibrateFlexCmd = cli.Command{
	Name:  "flex",
	Usage: "straight and bent limits of the Dexter Industries flex sensor",
	Action: withSession(func(c *cli.Context, s *session) error {
		input, err := s.analogInput()
		if err != nil {
			return err
		}
		flex := dexterind.NewFlex(input, s.dexterindOptions()...)
		return calibrateLimits(commandContext(c), flex, "straighten the sensor", "bend the sensor fully")
	}),
}

var calibrateLightCmd = cli.Command{
	Name:  "light",
	Usage: "dark and bright limits of the LEGO light sensor",
	Action: withSession(func(c *cli.Context, s *session) error {
		light, err := s.legoLight()
		if err != nil {
			return err
		}
		return calibrateLimits(commandContext(c), light, "point the sensor at the darkest surface", "point the sensor at the brightest surface")
	}),
}

var calibrateASLCmd = cli.Command{
	Name:  "asl",
	Usage: "background noise level of the acoustic sound locator",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "reversed", Usage: "the sensor is mounted upside down"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		locator, err := s.locator(c)
		if err != nil {
			return err
		}
		if err := console.Step("keep the room quiet"); err != nil {
			return err
		}
		level, err := locator.CalibrateLevel(commandContext(c))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := s.store.Save(aslLevelKey, aslLevel{Level: level}); err != nil {
			return console.Exit(1, "could not save level: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "background level %s", console.White(level))
		return nil
	}),
}

var calibrateIMUCmd = cli.Command{
	Name:  "imu",
	Usage: "compass calibration of the Mindsensors AbsoluteIMU",
	Action: withSession(func(c *cli.Context, s *session) error {
		bus, err := s.deviceBus()
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		imu := mindsensors.NewIMU(bus, s.mindsensorsOptions()...)
		if err := imu.StartCalibration(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := console.Step("rotate the sensor slowly through every orientation"); err != nil {
			return err
		}
		if err := imu.StopCalibration(ctx); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "imu calibrated")
		return nil
	}),
}
