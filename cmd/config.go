// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvPort        = "XYESTAT_PORT"
	EnvBaud        = "XYESTAT_BAUD"
	EnvURL         = "XYESTAT_URL"
	EnvLogLevel    = "XYESTAT_LOG_LEVEL"
	EnvMetricsAddr = "XYESTAT_METRICS_ADDR"
	EnvPassword    = "XYESTAT_PASSWORD"
)

// Config holds all xyestat settings
type Config struct {
	Serial    SerialConfig    `yaml:"serial" toml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Link      LinkTiming      `yaml:"link" toml:"link"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

type SerialConfig struct {
	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`
}

type WebSocketConfig struct {
	URL         string `yaml:"url" toml:"url"`
	Username    string `yaml:"username" toml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify" toml:"no_ssl_verify"`
}

// LinkTiming holds duration strings such as "250ms"
type LinkTiming struct {
	TickPeriod      string `yaml:"tick_period" toml:"tick_period"`
	ResponseTimeout string `yaml:"response_timeout" toml:"response_timeout"`
	PollInterval    string `yaml:"poll_interval" toml:"poll_interval"`
	Debounce        string `yaml:"debounce" toml:"debounce"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// DefaultConfig returns a config with the standard 4800 baud bus timing
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: xye.DefaultBaud,
		},
		Link: LinkTiming{
			TickPeriod:      xye.DefaultTickPeriod.String(),
			ResponseTimeout: xye.DefaultResponseTimeout.String(),
			PollInterval:    xye.DefaultPollInterval.String(),
			Debounce:        xye.DefaultDebounce.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads defaults, then the config file at path (if any), then
// environment overrides. Files ending in .toml are read as TOML, anything
// else as YAML. The returned keys are TOML keys that matched no setting.
func LoadConfig(path string) (*Config, []string, error) {
	cfg := DefaultConfig()
	var undecoded []string

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			meta, err := toml.Decode(string(data), cfg)
			if err != nil {
				return nil, nil, fmt.Errorf("parse %s: %w", path, err)
			}
			for _, key := range meta.Undecoded() {
				undecoded = append(undecoded, key.String())
			}
		} else {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, nil, err
	}
	return cfg, undecoded, nil
}

// applyEnvOverrides reads XYESTAT_* variables over the file values
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvPort); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv(EnvBaud); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvBaud, err)
		}
		c.Serial.Baud = n
	}
	if v := os.Getenv(EnvURL); v != "" {
		c.WebSocket.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.ListenAddr = v
	}
	return nil
}

// applyFlags copies flags the user set explicitly over the loaded values
func (c *Config) applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Serial.Port = portName
	}
	if flags.Changed("baud") {
		c.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		c.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		c.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
}

// LinkConfig converts the timing settings into an xye.LinkConfig
func (c *Config) LinkConfig() (xye.LinkConfig, error) {
	lc := xye.DefaultLinkConfig()
	lc.Baud = c.Serial.Baud

	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"link.tick_period", c.Link.TickPeriod, &lc.TickPeriod},
		{"link.response_timeout", c.Link.ResponseTimeout, &lc.ResponseTimeout},
		{"link.poll_interval", c.Link.PollInterval, &lc.PollInterval},
		{"link.debounce", c.Link.Debounce, &lc.Debounce},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return xye.LinkConfig{}, fmt.Errorf("parse %s: %w", f.key, err)
		}
		*f.dst = d
	}

	if err := lc.Validate(); err != nil {
		return xye.LinkConfig{}, fmt.Errorf("link settings: %w", err)
	}
	return lc, nil
}
