package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
	"github.com/mklimuk/nxtsensors/dexterind/wifi"
	"github.com/mklimuk/nxtsensors/hitechnic"
)

var modemFlags = []cli.Flag{
	&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "serial device of the modem"},
	&cli.IntFlag{Name: "baud", Usage: "baud rate the modem is set to"},
}

func withModemFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, modemFlags...), flags...)
}

func openModem(c *cli.Context) (*wifi.Modem, error) {
	rig, err := LoadRig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("port") {
		rig.Modem.Port = c.String("port")
	}
	if c.IsSet("baud") {
		rig.Modem.Baud = c.Int("baud")
	}
	m, err := wifi.Open(rig.Modem.Port, rig.Modem.Baud)
	if err != nil {
		return nil, console.Exit(1, "%s", console.Red(err))
	}
	return m, nil
}

// withModem opens the modem before running action and closes it afterwards.
func withModem(action func(c *cli.Context, m *wifi.Modem) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		m, err := openModem(c)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		return action(c, m)
	}
}

var wifiCmd = cli.Command{
	Name:  "wifi",
	Usage: "configure and use the Dexter Industries Wi-Fi sensor",
	Subcommands: []*cli.Command{
		&wifiScanBaudCmd,
		&wifiSetBaudCmd,
		&wifiScanCmd,
		&wifiJoinCmd,
		&wifiStatusCmd,
		&wifiResetCmd,
		&wifiServeCmd,
	},
}

var wifiScanBaudCmd = cli.Command{
	Name:  "scan-baud",
	Usage: "find the baud rate the modem answers at",
	Flags: withModemFlags(),
	Action: withModem(func(c *cli.Context, m *wifi.Modem) error {
		baud, err := m.ScanBaudRate(commandContext(c))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoSignal, "modem answers at %s baud", console.White(baud))
		return nil
	}),
}

var wifiSetBaudCmd = cli.Command{
	Name:      "set-baud",
	Usage:     "switch the modem and the port to another baud rate",
	ArgsUsage: "<baud>",
	Flags:     withModemFlags(),
	Action: withModem(func(c *cli.Context, m *wifi.Modem) error {
		var baud int
		if _, err := fmt.Sscanf(c.Args().First(), "%d", &baud); err != nil {
			return console.Exit(1, "invalid baud rate %q", c.Args().First())
		}
		if err := m.SetBaudRate(commandContext(c), baud); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoSignal, "modem switched to %s baud", console.White(m.BaudRate()))
		return nil
	}),
}

var wifiScanCmd = cli.Command{
	Name:  "scan",
	Usage: "list visible networks",
	Flags: withModemFlags(),
	Action: withModem(func(c *cli.Context, m *wifi.Modem) error {
		networks, err := m.ScanNetworks(commandContext(c))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Printf("%s\n", strings.TrimSpace(networks))
		return nil
	}),
}

type step struct {
	name string
	run  func() error
}

var wifiJoinCmd = cli.Command{
	Name:  "join",
	Usage: "associate with a network and store the settings in the modem",
	Flags: withModemFlags(
		&cli.StringFlag{Name: "ssid", Required: true},
		&cli.StringFlag{Name: "passphrase", Usage: "WPA passphrase"},
		&cli.StringFlag{Name: "wep-key", Usage: "WEP key, stored as key 1"},
	),
	Action: withModem(func(c *cli.Context, m *wifi.Modem) error {
		ctx := commandContext(c)
		ssid := c.String("ssid")
		steps := []step{
			{"echo off", func() error { return m.SetEcho(ctx, false) }},
			{"verbose responses", func() error { return m.SetVerbose(ctx, true) }},
			{"flow control", func() error { return m.SetSoftwareFlowControl(ctx) }},
		}
		switch {
		case c.IsSet("wep-key"):
			steps = append(steps,
				step{"wep key", func() error { return m.SetWEPKey(ctx, 1, c.String("wep-key")) }},
				step{"wep auth", func() error { return m.SetAuthMode(ctx, wifi.AuthWEP) }},
			)
		case c.IsSet("passphrase"):
			steps = append(steps, step{"wpa key", func() error { return m.SetWPAPSK(ctx, ssid, c.String("passphrase")) }})
		default:
			steps = append(steps, step{"open auth", func() error { return m.SetAuthMode(ctx, wifi.AuthNone) }})
		}
		steps = append(steps,
			step{"dhcp", func() error { return m.SetDHCP(ctx, true) }},
			step{"associate", func() error { return m.SetSSID(ctx, ssid) }},
			step{"save", func() error { return m.SaveConfig(ctx) }},
		)
		for _, st := range steps {
			console.Infof("%s", st.name)
			if err := st.run(); err != nil {
				return console.Exit(1, "%s: %s", st.name, console.Red(err))
			}
		}
		info, err := m.IPInfo(ctx)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.PInfof(console.PictoSignal, "joined %s as %s", console.White(ssid), console.White(info.IP))
		return nil
	}),
}

var wifiStatusCmd = cli.Command{
	Name:  "status",
	Usage: "firmware version, link status and address",
	Flags: withModemFlags(),
	Action: withModem(func(c *cli.Context, m *wifi.Modem) error {
		ctx := commandContext(c)
		version, err := m.FirmwareVersion(ctx)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Printf("%s\n", strings.TrimSpace(version))
		status, err := m.WLANStatus(ctx)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Printf("%s\n", strings.TrimSpace(status))
		info, err := m.IPInfo(ctx)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Printf("ip: %s subnet: %s gateway: %s\n", console.White(info.IP), info.Subnet, info.Gateway)
		return nil
	}),
}

var wifiResetCmd = cli.Command{
	Name:  "reset",
	Usage: "restore the factory configuration",
	Flags: withModemFlags(),
	Action: withModem(func(c *cli.Context, m *wifi.Modem) error {
		ok, err := console.Confirm("erase the stored network settings?")
		if err != nil || !ok {
			return err
		}
		if err := m.ResetConfig(commandContext(c)); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return nil
	}),
}

var wifiServeCmd = cli.Command{
	Name:  "serve",
	Usage: "answer GET /MOTA=<power> requests by driving a motor mux channel",
	Flags: withModemFlags(
		&cli.IntFlag{Name: "listen", Value: 80, Usage: "TCP port"},
		&cli.IntFlag{Name: "channel", Usage: "motor mux channel driven by the requests"},
	),
	Action: withSession(func(c *cli.Context, s *session) error {
		motor, err := s.muxMotor(c.Int("channel"))
		if err != nil {
			return err
		}
		m, err := openModem(c)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt)
		defer stop()
		defer func() { _ = motor.SetPower(context.WithoutCancel(ctx), 0) }()
		if err := m.Serve(ctx, c.Int("listen"), motorHandler(motor)); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return nil
	}),
}

// motorHandler sets the power requested by /MOTA=<power> and answers with the
// power and the encoder position.
func motorHandler(motor *hitechnic.MuxMotor) wifi.HandlerFunc {
	return func(ctx context.Context, path string) string {
		power, ok := wifi.MotorPower(path)
		if !ok {
			return "usage: /MOTA=<power -100..100>\n"
		}
		if err := motor.SetPower(ctx, power); err != nil {
			return fmt.Sprintf("error: %v\n", err)
		}
		enc, err := motor.Encoder(ctx)
		if err != nil {
			return fmt.Sprintf("power: %d\nencoder error: %v\n", power, err)
		}
		return fmt.Sprintf("power: %d\nencoder: %d\n", power, enc)
	}
}
