// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string
	demoMode   bool

	// Resolved in PersistentPreRunE
	cfg    *Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xyestat",
	Short: "XYE Air Handler Monitor and Controller",
	Long: `xyestat - A CLI tool for monitoring and controlling Midea air handlers
over the XYE RS-485 bus.

xyestat acts as the bus master: it polls the unit for status, sends control
frames built from your settings, and reports timeouts and damaged frames.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 4800]
  WebSocket: --url ws://host/path [--username user]
  Demo:      --demo (built-in simulated unit)

Settings are read from --config (YAML, or TOML for .toml files), then
XYESTAT_* environment variables, then flags.

For WebSocket authentication, the password is read from the XYESTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 4800, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "Talk to a simulated unit instead of real hardware")
}

// loadSettings resolves defaults, config file, environment, and flags into cfg
func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, undecoded, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	loaded.applyFlags(cmd)

	lvl, ok := parseLevel(loaded.Log.Level)
	if !ok {
		return fmt.Errorf("invalid log level %q", loaded.Log.Level)
	}
	logger = newLogger(os.Stderr, lvl)
	for _, key := range undecoded {
		logger.Warn().Str("key", key).Str("file", configPath).Msg("unknown config key")
	}

	cfg = loaded
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
