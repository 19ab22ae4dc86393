package command

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/eectx"
	"github.com/mklimuk/eeprom/memory/cat25"
)

var addressFlag = &cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "memory address (decimal or 0x prefixed)", Required: true}

var dataFlags = []cli.Flag{
	addressFlag,
	&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex bytes to write (e.g. '01FF23')"},
	&cli.PathFlag{Name: "in", Aliases: []string{"i"}, Usage: "file with raw bytes to write"},
}

var ProfilesCmd = &cli.Command{
	Name:  "profiles",
	Usage: "list supported devices",
	Action: func(c *cli.Context) error {
		if _, err := ConfigFromContext(c); err != nil {
			return console.Exit(console.ExitUsage, "%s", console.Red(err))
		}
		w := tabwriter.NewWriter(console.Output(), 12, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "DEVICE\tCAPACITY\tPAGE\tADDRESS\n")
		for _, p := range cat25.Profiles() {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%#x-%#x\n", p.Name, p.Capacity, p.PageSize, 0, p.Capacity-1)
		}
		return w.Flush()
	},
}

var StatusCmd = &cli.Command{
	Name:  "status",
	Usage: "read the STATUS register",
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *Session) error {
			st, err := s.Mem.Status(ctx)
			if err != nil {
				return err
			}
			out := struct {
				Device string             `yaml:"device"`
				Status cat25.StatusFields `yaml:"status"`
			}{s.Profile.Name, st.Fields()}
			enc := yaml.NewEncoder(console.Output())
			defer enc.Close()
			return enc.Encode(out)
		})
	},
}

var ReadCmd = &cli.Command{
	Name:  "read",
	Usage: "read a block of memory",
	Flags: []cli.Flag{
		addressFlag,
		&cli.IntFlag{Name: "length", Aliases: []string{"n"}, Usage: "number of bytes to read", Value: 16},
		&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Usage: "write raw bytes to file instead of a hex dump"},
	},
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *Session) error {
			address, err := addressArg(c, s.Profile)
			if err != nil {
				return err
			}
			buf := make([]byte, c.Int("length"))
			if _, err := s.Mem.ReadBlock(ctx, address, buf); err != nil {
				return err
			}
			return output(c.Path("out"), address, buf)
		})
	},
}

var DumpCmd = &cli.Command{
	Name:  "dump",
	Usage: "read the whole device",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Usage: "write raw bytes to file instead of a hex dump"},
	},
	Action: func(c *cli.Context) error {
		return withSession(c, func(ctx context.Context, s *Session) error {
			buf := make([]byte, s.Mem.Capacity())
			if _, err := s.Mem.ReadBlock(ctx, 0, buf); err != nil {
				return err
			}
			return output(c.Path("out"), 0, buf)
		})
	},
}

var WriteCmd = &cli.Command{
	Name:  "write",
	Usage: "write bytes, splitting on page boundaries",
	Flags: dataFlags,
	Action: func(c *cli.Context) error {
		return writeAction(c, false)
	},
}

var UpdateCmd = &cli.Command{
	Name:  "update",
	Usage: "write bytes, skipping pages that already hold the data",
	Flags: dataFlags,
	Action: func(c *cli.Context) error {
		return writeAction(c, true)
	},
}

var ProtectCmd = &cli.Command{
	Name:      "protect",
	Usage:     "set block protection",
	ArgsUsage: "none|quarter|half|full",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(console.ExitUsage, "expected 1 argument, got %d", c.NArg())
		}
		bp, err := cat25.ParseBlockProtection(c.Args().First())
		if err != nil {
			return console.Exit(console.ExitUsage, "%s", console.Red(err))
		}
		return withSession(c, func(ctx context.Context, s *Session) error {
			if err := confirm(c, fmt.Sprintf("set block protection of %s to %s?", s.Profile.Name, bp)); err != nil {
				return err
			}
			if err := s.Mem.SetBlockProtection(ctx, bp); err != nil {
				return err
			}
			st, err := s.Mem.Status(ctx)
			if err != nil {
				return err
			}
			console.PInfof(console.PictoKey, "status: %s", st)
			return nil
		})
	},
}

func writeAction(c *cli.Context, update bool) error {
	data, err := inputData(c)
	if err != nil {
		return console.Exit(console.ExitUsage, "%s", console.Red(err))
	}
	return withSession(c, func(ctx context.Context, s *Session) error {
		address, err := addressArg(c, s.Profile)
		if err != nil {
			return err
		}
		op := "write"
		if update {
			op = "update"
		}
		if err := confirm(c, fmt.Sprintf("%s %d bytes at %#x on %s?", op, len(data), address, s.Profile.Name)); err != nil {
			return err
		}
		var n int
		if update {
			n, err = s.Mem.UpdateBlock(ctx, address, data)
		} else {
			n, err = s.Mem.WriteBlock(ctx, address, data)
		}
		if err != nil {
			return err
		}
		console.PInfof(console.PictoFinish, "%s: %d bytes at %#x", op, n, address)
		return nil
	})
}

func addressArg(c *cli.Context, p cat25.Profile) (uint32, error) {
	address := c.Int("address")
	if address < 0 || address >= int(p.Capacity) {
		return 0, fmt.Errorf("%w: %#x (0-%#x)", cat25.ErrOutOfRange, address, p.Capacity-1)
	}
	return uint32(address), nil
}

func inputData(c *cli.Context) ([]byte, error) {
	switch {
	case c.IsSet("data") && c.IsSet("in"):
		return nil, fmt.Errorf("--data and --in are exclusive")
	case c.IsSet("data"):
		return ParseHex(c.String("data"))
	case c.IsSet("in"):
		return os.ReadFile(c.Path("in"))
	}
	return nil, fmt.Errorf("one of --data or --in is required")
}

// ParseHex accepts hex strings with optional 0x prefix and separators.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "_", "").Replace(s)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	res, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid data hex string: %w", err)
	}
	return res, nil
}

func output(path string, address uint32, data []byte) error {
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		console.PInfof(console.PictoFloppy, "%d bytes written to %s", len(data), path)
		return nil
	}
	console.Print(Dump(address, data))
	return nil
}

// Dump is hex.Dump with offsets starting at address.
func Dump(address uint32, data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := hex.Dump(data[off:end])
		// hex.Dump prefixes every line with an 8 digit offset
		fmt.Fprintf(&b, "%s%s", console.Cyan(fmt.Sprintf("%08x", address+uint32(off))), strings.TrimSuffix(line[8:], "\n"))
		if end < len(data) {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func confirm(c *cli.Context, question string) error {
	if c.Bool("yes") {
		return nil
	}
	ok, err := console.Confirm(question)
	if err != nil {
		return console.Exit(console.ExitAborted, "aborted: %v", err)
	}
	if !ok {
		return console.Exit(console.ExitAborted, "aborted")
	}
	return nil
}

func withSession(c *cli.Context, fn func(ctx context.Context, s *Session) error) error {
	cfg, err := ConfigFromContext(c)
	if err != nil {
		return console.Exit(console.ExitUsage, "%s", console.Red(err))
	}
	ctx := eectx.SetVerbose(c.Context, c.Bool("verbose"))
	s, err := Open(ctx, cfg)
	if err != nil {
		return exitError(err)
	}
	err = fn(ctx, s)
	if cerr := s.Close(ctx); cerr != nil {
		console.Warnf("could not close device: %v", cerr)
	}
	if err != nil {
		return exitError(err)
	}
	return nil
}

func exitError(err error) error {
	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		return err
	}
	switch {
	case errors.Is(err, cat25.ErrTimeout):
		return console.Exit(console.ExitTimeout, "%s", console.Red(err))
	case errors.Is(err, cat25.ErrOutOfRange), errors.Is(err, cat25.ErrPageBoundary), errors.Is(err, cat25.ErrInvalidLength):
		return console.Exit(console.ExitUsage, "%s", console.Red(err))
	}
	return console.Exit(console.ExitFailure, "%s", console.Red(err))
}
