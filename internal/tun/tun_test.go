package tun

import "testing"

func TestErrUnsupportedPlatformIsSentinel(t *testing.T) {
	if ErrUnsupportedPlatform == nil {
		t.Fatal("ErrUnsupportedPlatform must not be nil")
	}
}

func TestConfigFields(t *testing.T) {
	cfg := Config{Address: "10.8.0.2/24", MTU: 1400, Name: "x2ssh0"}
	if cfg.Address != "10.8.0.2/24" || cfg.MTU != 1400 || cfg.Name != "x2ssh0" {
		t.Fatal("Config did not round-trip its fields")
	}
}
