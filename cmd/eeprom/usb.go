package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/eectx"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "USB bridge discovery",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
		&usbStatusCmd,
		&usbReleaseCmd,
	},
}

var usbLsCmd = cli.Command{
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
		return w.Flush()
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "list connected MCP2221 bridges usable as chip select",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(adapter.VendorID, adapter.ProductID)

		w := tabwriter.NewWriter(os.Stdout, 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "ID\tVENDOR\tPRODUCT\tSERIAL\tDEVICE\n")
		for i, dev := range devices {
			_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\tMCP2221\n", i, dev.VendorID, dev.ProductID, dev.Serial)
		}
		return w.Flush()
	},
}

var usbStatusCmd = cli.Command{
	Name:  "status",
	Usage: "show MCP2221 I2C engine and GPIO state",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "id", Usage: "adapter index as listed by detect"},
	},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(c.Int("id"))
		ctx := eectx.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.Status(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		gpio, err := a.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		out := struct {
			I2C  *adapter.MCP2221Status    `yaml:"i2c"`
			GPIO adapter.MCP2221GPIOValues `yaml:"gpio"`
		}{status, gpio}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		if err := enc.Encode(out); err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var usbReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck MCP2221 I2C transfer",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "id", Usage: "adapter index as listed by detect"},
	},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(c.Int("id"))
		ctx := eectx.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.ReleaseBus(ctx)
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		if err := enc.Encode(status); err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}
