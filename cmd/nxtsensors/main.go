package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "nxtsensors"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "NXT and EV3 sensor toolbox"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "rig file, flags take precedence",
			Value:   "nxtsensors.yaml",
			EnvVars: []string{"NXTSENSORS_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: fmt.Sprintf("bus adapter: %s, %s or %s", AdapterI2C, AdapterMCP2221, AdapterGobot),
			Value: AdapterI2C,
		},
		&cli.StringFlag{
			Name:  "bus",
			Usage: "bus name (i2c) or number (gobot)",
		},
		&cli.IntFlag{
			Name:  "adc",
			Usage: "MCP2221 ADC channel analog sensors are wired to",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "smux",
			Usage: "HiTechnic sensor mux channel the sensor is plugged into",
		},
		&cli.StringFlag{
			Name:  "address",
			Usage: "7-bit device address in hex, overrides the default",
		},
		&cli.StringFlag{
			Name:  "calibration-dir",
			Usage: "directory calibration data is kept in",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&hitechnicCmd,
		&dexterindCmd,
		&mindsensorsCmd,
		&legoCmd,
		&aslCmd,
		&calibrateCmd,
		&motormuxCmd,
		&actuatorCmd,
		&wifiCmd,
		&gpioCmd,
		&adapterCmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			return exerr.ExitCode()
		}
		console.Errorf("%v", err)
		return 1
	}
	return 0
}
