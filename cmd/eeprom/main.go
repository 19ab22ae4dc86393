package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/command"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run(os.Args))
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "eeprom"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "CAT25 compatible SPI EEPROM tool"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Usage: "enable verbose logging and frame dumps"},
		&cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
		&cli.PathFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file", Value: command.DefaultConfigFile},
		&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "device profile name"},
		&cli.StringFlag{Name: "backend", Usage: "SPI backend (periph, gobot, sim)"},
		&cli.StringFlag{Name: "spi", Usage: "periph SPI port"},
		&cli.Int64Flag{Name: "speed", Usage: "SPI clock in Hz"},
		&cli.PathFlag{Name: "sim-file", Usage: "use the simulator backed by this raw image"},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "eeprom",
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		console.DisableColors(ctx.Bool("no-color"))
		return nil
	}
	app.Commands = cli.Commands{
		command.ProfilesCmd,
		command.StatusCmd,
		command.ReadCmd,
		command.DumpCmd,
		command.WriteCmd,
		command.UpdateCmd,
		command.ProtectCmd,
		command.BackupCmd,
		command.RestoreCmd,
		&usbCmd,
	}
	return app
}

func run(args []string) int {
	err := newApp().Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}
