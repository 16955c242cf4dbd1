// Package config loads the optional TOML configuration file and merges it
// with CLI flag overrides, matching
// original_source/x2ssh/src/config.rs's table layout and defaulting rules
// (table names, field defaults, and the retry max_attempts "inf"|N
// encoding). It also loads an optional .env overlay the same way the
// teacher's own internal/config/config.go does, for secrets best kept out
// of the TOML file (e.g. an identity passphrase, if one is ever added).
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file from the current directory if one exists.
// A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// VPN holds the [vpn] table.
type VPN struct {
	Subnet    string   `toml:"subnet"`
	ServerTUN string   `toml:"server_tun"`
	ClientTUN string   `toml:"client_tun"`
	MTU       uint16   `toml:"mtu"`
	Exclude   []string `toml:"exclude"`
	PostUp    []string `toml:"post_up"`
	PreDown   []string `toml:"pre_down"`
}

func defaultVPN() VPN {
	return VPN{
		Subnet:    "10.8.0.0/24",
		ServerTUN: "x2ssh0",
		ClientTUN: "tun-x2ssh",
		MTU:       1400,
	}
}

// Connection holds the [connection] table.
type Connection struct {
	Port uint16 `toml:"port"`
}

func defaultConnection() Connection {
	return Connection{Port: 22}
}

// Retry holds the [retry] table. MaxAttempts is nil for unbounded ("inf"),
// matching original_source's MaxAttempts::Inf variant.
type Retry struct {
	MaxAttempts      *uint32
	InitialDelayMS   uint64
	Backoff          float64
	MaxDelayMS       uint64
	HealthIntervalMS uint64
}

func defaultRetry() Retry {
	return Retry{
		MaxAttempts:      nil,
		InitialDelayMS:   1000,
		Backoff:          2.0,
		MaxDelayMS:       30000,
		HealthIntervalMS: 5000,
	}
}

// App is the full parsed config file, matching original_source's AppConfig.
type App struct {
	VPN        VPN
	Connection Connection
	Retry      Retry
}

// Default returns an App with every field at its built-in default.
func Default() App {
	return App{
		VPN:        defaultVPN(),
		Connection: defaultConnection(),
		Retry:      defaultRetry(),
	}
}

// rawApp mirrors App but types Retry.MaxAttempts as `any` so the TOML
// decoder can accept either the string "inf" (case-insensitive) or an
// integer, matching original_source's custom MaxAttempts deserializer.
type rawApp struct {
	VPN        VPN        `toml:"vpn"`
	Connection Connection `toml:"connection"`
	Retry      rawRetry   `toml:"retry"`
}

type rawRetry struct {
	MaxAttempts      interface{} `toml:"max_attempts"`
	InitialDelayMS   uint64      `toml:"initial_delay_ms"`
	Backoff          float64     `toml:"backoff"`
	MaxDelayMS       uint64      `toml:"max_delay_ms"`
	HealthIntervalMS uint64      `toml:"health_interval_ms"`
}

// Load reads and parses a TOML config file at path. Missing fields take
// built-in defaults; defaults are pre-seeded into the decode target since
// TOML decoding can't otherwise distinguish "field absent" from "field
// zero" once it lands in a plain struct.
func Load(path string) (App, error) {
	raw := rawApp{
		VPN:        defaultVPN(),
		Connection: defaultConnection(),
		Retry: rawRetry{
			MaxAttempts:      nil,
			InitialDelayMS:   1000,
			Backoff:          2.0,
			MaxDelayMS:       30000,
			HealthIntervalMS: 5000,
		},
	}

	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return App{}, fmt.Errorf("config: decode %q: %w", path, err)
	}

	maxAttempts, err := parseMaxAttempts(raw.Retry.MaxAttempts)
	if err != nil {
		return App{}, fmt.Errorf("config: %w", err)
	}

	return App{
		VPN:        raw.VPN,
		Connection: raw.Connection,
		Retry: Retry{
			MaxAttempts:      maxAttempts,
			InitialDelayMS:   raw.Retry.InitialDelayMS,
			Backoff:          raw.Retry.Backoff,
			MaxDelayMS:       raw.Retry.MaxDelayMS,
			HealthIntervalMS: raw.Retry.HealthIntervalMS,
		},
	}, nil
}

// parseMaxAttempts accepts nil (unset, defaults to unbounded), the string
// "inf" (case-insensitive), or a non-negative integer.
func parseMaxAttempts(v interface{}) (*uint32, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.EqualFold(val, "inf") {
			return nil, nil
		}
		return nil, fmt.Errorf(`invalid retry.max_attempts string %q (only "inf" is accepted)`, val)
	case int64:
		if val < 0 {
			return nil, fmt.Errorf("retry.max_attempts must be non-negative, got %d", val)
		}
		n := uint32(val)
		return &n, nil
	default:
		return nil, fmt.Errorf("retry.max_attempts has unsupported type %T", v)
	}
}
