package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// SmokeCmd runs the built binary against the simulator backend.
func SmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Write and read back a pattern through the built cli using the simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := cmd.Flags().GetString("device")
			if err != nil {
				return fmt.Errorf("could not get device flag: %w", err)
			}
			dir, err := os.MkdirTemp("", "eeprom-smoke")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			image := filepath.Join(dir, "chip.bin")
			readBack := filepath.Join(dir, "read.bin")
			pattern := "00112233445566778899AABBCCDDEEFF"
			steps := [][]string{
				{"write", "--address", "0x7a", "--data", pattern},
				{"update", "--address", "0x7a", "--data", pattern},
				{"read", "--address", "0x7a", "--length", "16", "--out", readBack},
				{"status"},
			}
			for _, step := range steps {
				full := append([]string{"--yes", "--device", device, "--sim-file", image}, step...)
				slog.Info("running", "args", full)
				run := exec.Command(Binary, full...)
				run.Stdout = os.Stdout
				run.Stderr = os.Stderr
				if err := run.Run(); err != nil {
					return fmt.Errorf("step %s failed: %w", step[0], err)
				}
			}
			got, err := os.ReadFile(readBack)
			if err != nil {
				return err
			}
			want := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
			if !bytes.Equal(got, want) {
				return fmt.Errorf("read back % X, want % X", got, want)
			}
			slog.Info("smoke test passed", "device", device)
			return nil
		},
	}
	cmd.Flags().String("device", "CAT25256", "device profile to simulate")
	return cmd
}
