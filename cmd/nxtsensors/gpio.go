package main

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/gpio"
)

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "I2C port expanders",
	Subcommands: []*cli.Command{
		&pcf8574Cmd,
		&mcp23017Cmd,
	},
}

func hexArg(c *cli.Context, i int) (byte, error) {
	v, err := strconv.ParseUint(c.Args().Get(i), 16, 8)
	if err != nil {
		return 0, console.Exit(1, "could not decode %q: %v", c.Args().Get(i), err)
	}
	return byte(v), nil
}

func (s *session) expanderAddress(def byte) byte {
	if s.address != nil {
		return *s.address
	}
	return def
}

func (s *session) pcf8574() (*gpio.PCF8574, error) {
	bus, err := s.deviceBus()
	if err != nil {
		return nil, err
	}
	return gpio.NewPCF8574(bus, s.expanderAddress(gpio.DefaultPCF8574Address)), nil
}

func (s *session) mcp23017() (*gpio.MCP23017, error) {
	bus, err := s.deviceBus()
	if err != nil {
		return nil, err
	}
	return gpio.NewMCP23017(bus, s.expanderAddress(gpio.DefaultMCP23017Address)), nil
}

var pcf8574Cmd = cli.Command{
	Name: "pcf8574",
	Subcommands: []*cli.Command{
		{
			Name:  "read",
			Flags: withPollFlags(),
			Action: withSession(func(c *cli.Context, s *session) error {
				exp, err := s.pcf8574()
				if err != nil {
					return err
				}
				return poll(c, s, "gpio/pcf8574", exp.Read)
			}),
		},
		{
			Name:      "write",
			ArgsUsage: "<hex value>",
			Action: withSession(func(c *cli.Context, s *session) error {
				v, err := hexArg(c, 0)
				if err != nil {
					return err
				}
				exp, err := s.pcf8574()
				if err != nil {
					return err
				}
				if err := exp.Write(commandContext(c), v); err != nil {
					return console.Exit(1, "could not write port: %s", console.Red(err))
				}
				return nil
			}),
		},
		{
			Name:      "set",
			ArgsUsage: "<pin 0..7> <0|1>",
			Action: withSession(func(c *cli.Context, s *session) error {
				if c.NArg() != 2 {
					return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
				}
				pin, err := strconv.Atoi(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "invalid pin %q", c.Args().Get(0))
				}
				exp, err := s.pcf8574()
				if err != nil {
					return err
				}
				if err := exp.Set(commandContext(c), pin, c.Args().Get(1) == "1"); err != nil {
					return console.Exit(1, "could not set pin: %s", console.Red(err))
				}
				return nil
			}),
		},
		{
			Name:      "toggle",
			ArgsUsage: "<pin 0..7>",
			Action: withSession(func(c *cli.Context, s *session) error {
				pin, err := strconv.Atoi(c.Args().First())
				if err != nil {
					return console.Exit(1, "invalid pin %q", c.Args().First())
				}
				exp, err := s.pcf8574()
				if err != nil {
					return err
				}
				if err := exp.Toggle(commandContext(c), pin); err != nil {
					return console.Exit(1, "could not toggle pin: %s", console.Red(err))
				}
				return nil
			}),
		},
	},
}

func portFlag(c *cli.Context) gpio.Port {
	if c.String("port") == "b" {
		return gpio.PortB
	}
	return gpio.PortA
}

var mcpPortFlag = &cli.StringFlag{Name: "port", Value: "a", Usage: "a or b"}

var mcp23017Cmd = cli.Command{
	Name: "mcp23017",
	Subcommands: []*cli.Command{
		{
			Name:  "read",
			Usage: "poll both ports",
			Flags: withPollFlags(),
			Action: withSession(func(c *cli.Context, s *session) error {
				exp, err := s.mcp23017()
				if err != nil {
					return err
				}
				return poll(c, s, "gpio/mcp23017", exp.Read)
			}),
		},
		{
			Name:      "write",
			ArgsUsage: "<hex value>",
			Flags:     []cli.Flag{mcpPortFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				v, err := hexArg(c, 0)
				if err != nil {
					return err
				}
				exp, err := s.mcp23017()
				if err != nil {
					return err
				}
				if err := exp.WritePort(commandContext(c), portFlag(c), v); err != nil {
					return console.Exit(1, "could not write port: %s", console.Red(err))
				}
				return nil
			}),
		},
		{
			Name:  "status",
			Usage: "print the IOCON register",
			Flags: []cli.Flag{mcpPortFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				exp, err := s.mcp23017()
				if err != nil {
					return err
				}
				data, err := exp.Settings(commandContext(c), portFlag(c))
				if err != nil {
					return console.Exit(1, "could not read settings: %s", console.Red(err))
				}
				console.Printf("IOCON content: %#X\n", data)
				return nil
			}),
		},
		{
			Name:      "configure",
			Usage:     "write the IOCON register",
			ArgsUsage: "<hex value>",
			Flags:     []cli.Flag{mcpPortFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				v, err := hexArg(c, 0)
				if err != nil {
					return err
				}
				exp, err := s.mcp23017()
				if err != nil {
					return err
				}
				if err := exp.WriteSettings(commandContext(c), portFlag(c), v); err != nil {
					return console.Exit(1, "could not write settings: %s", console.Red(err))
				}
				console.Printf("Wrote IOCON content: %#X\n", v)
				return nil
			}),
		},
		{
			Name:      "direction",
			Usage:     "set the pin directions, 1 is input",
			ArgsUsage: "<hex mask>",
			Flags:     []cli.Flag{mcpPortFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				v, err := hexArg(c, 0)
				if err != nil {
					return err
				}
				exp, err := s.mcp23017()
				if err != nil {
					return err
				}
				if err := exp.SetDirection(commandContext(c), portFlag(c), v); err != nil {
					return console.Exit(1, "could not write directions: %s", console.Red(err))
				}
				return nil
			}),
		},
		{
			Name:      "pull",
			Usage:     "enable pull ups",
			ArgsUsage: "<hex mask>",
			Flags:     []cli.Flag{mcpPortFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				v, err := hexArg(c, 0)
				if err != nil {
					return err
				}
				exp, err := s.mcp23017()
				if err != nil {
					return err
				}
				if err := exp.PullUp(commandContext(c), portFlag(c), v); err != nil {
					return console.Exit(1, "could not write pull up settings: %s", console.Red(err))
				}
				console.Printf("Wrote GPPU content: %#X\n", v)
				return nil
			}),
		},
	},
}
