package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/backup"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var BackupCmd = &cli.Command{
	Name:      "backup",
	Usage:     "save the whole device to an image file",
	ArgsUsage: "FILE",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "expected 1 argument, got %d", c.NArg())
		}
		path := c.Args().First()
		return withSession(c, func(ctx context.Context, s *Session) error {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			img, err := backup.Save(ctx, s.Profile.Name, s.Mem, f)
			if err != nil {
				return err
			}
			console.PInfof(console.PictoFloppy, "%s: %d bytes saved to %s", img.Device, img.Capacity, path)
			return f.Sync()
		})
	},
}

var RestoreCmd = &cli.Command{
	Name:      "restore",
	Usage:     "write an image file back, rewriting only changed pages",
	ArgsUsage: "FILE",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "expected 1 argument, got %d", c.NArg())
		}
		f, err := os.Open(c.Args().First())
		if err != nil {
			return console.Exit(console.ExitUsage, "%s", console.Red(err))
		}
		img, err := backup.Load(f)
		_ = f.Close()
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		console.Infof("image of %s taken %s", img.Device, img.Created.Local().Format(time.DateTime))
		return withSession(c, func(ctx context.Context, s *Session) error {
			if err := confirm(c, fmt.Sprintf("restore %d bytes to %s?", img.Capacity, s.Profile.Name)); err != nil {
				return err
			}
			if err := backup.Restore(ctx, s.Mem, img); err != nil {
				return err
			}
			console.PInfof(console.PictoFinish, "restored %s", s.Profile.Name)
			return nil
		})
	},
}
