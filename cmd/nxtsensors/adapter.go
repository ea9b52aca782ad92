package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/nxtsensors/adapter"
	"github.com/mklimuk/nxtsensors/cmd/nxtsensors/console"
)

var adapterCmd = cli.Command{
	Name:  "adapter",
	Usage: "MCP2221 USB bridge diagnostics",
	Subcommands: []*cli.Command{
		&adapterStatusCmd,
		&adapterReleaseCmd,
		&adapterGPIOCmd,
		&adapterLsCmd,
		&adapterDetectCmd,
	},
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var adapterStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		status, err := a.Status(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var adapterReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and free the bus",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		status, err := a.ReleaseBus(commandContext(c))
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var adapterGPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print the GP pin designations and values",
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		a := adapter.NewMCP2221()
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		values, err := a.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(struct {
			Parameters adapter.MCP2221GPIOParameters `yaml:"parameters"`
			Values     adapter.MCP2221GPIOValues     `yaml:"values"`
		}{params, values})
	},
}

var adapterLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list HID devices",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")

		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()
		return nil
	},
}

var adapterDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list connected MCP2221 bridges",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(adapter.VendorID, adapter.ProductID)
		if len(devices) == 0 {
			console.Warnf("no MCP2221 found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ID\tVENDOR\tPRODUCT\tPATH\n")
		for i, dev := range devices {
			_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\n", i, dev.VendorID, dev.ProductID, dev.Path)
		}
		_ = w.Flush()
		return nil
	},
}
