package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "x2ssh.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeTemp(t, `
[vpn]
subnet = "10.9.0.0/24"
server_tun = "srv0"
client_tun = "cli0"
mtu = 1350
exclude = ["192.168.1.0/24"]
post_up = ["echo up"]
pre_down = ["echo down"]

[connection]
port = 2222

[retry]
max_attempts = 5
initial_delay_ms = 500
backoff = 1.5
max_delay_ms = 20000
health_interval_ms = 2000
`)
	app, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.VPN.Subnet != "10.9.0.0/24" || app.VPN.MTU != 1350 {
		t.Errorf("vpn table not parsed correctly: %+v", app.VPN)
	}
	if app.Connection.Port != 2222 {
		t.Errorf("got port %d, want 2222", app.Connection.Port)
	}
	if app.Retry.MaxAttempts == nil || *app.Retry.MaxAttempts != 5 {
		t.Errorf("got max_attempts %v, want 5", app.Retry.MaxAttempts)
	}
	if app.Retry.Backoff != 1.5 {
		t.Errorf("got backoff %v, want 1.5", app.Retry.Backoff)
	}
}

func TestLoadPartialConfigUsesDefaults(t *testing.T) {
	path := writeTemp(t, `
[connection]
port = 2222
`)
	app, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.Connection.Port != 2222 {
		t.Errorf("got port %d, want 2222", app.Connection.Port)
	}
	if app.VPN.Subnet != "10.8.0.0/24" {
		t.Errorf("expected default subnet, got %q", app.VPN.Subnet)
	}
	if app.Retry.MaxAttempts != nil {
		t.Errorf("expected default unbounded max_attempts, got %v", app.Retry.MaxAttempts)
	}
}

func TestLoadEmptyFileAllDefaults(t *testing.T) {
	path := writeTemp(t, "")
	app, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(app.VPN, want.VPN) {
		t.Errorf("got %+v, want %+v", app.VPN, want.VPN)
	}
	if app.Connection != want.Connection {
		t.Errorf("got %+v, want %+v", app.Connection, want.Connection)
	}
}

func TestMaxAttemptsInf(t *testing.T) {
	path := writeTemp(t, `
[retry]
max_attempts = "inf"
`)
	app, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.Retry.MaxAttempts != nil {
		t.Errorf("expected nil (unbounded), got %v", app.Retry.MaxAttempts)
	}
}

func TestMaxAttemptsInfCaseInsensitive(t *testing.T) {
	path := writeTemp(t, `
[retry]
max_attempts = "INF"
`)
	app, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.Retry.MaxAttempts != nil {
		t.Errorf("expected nil (unbounded), got %v", app.Retry.MaxAttempts)
	}
}

func TestMaxAttemptsCount(t *testing.T) {
	path := writeTemp(t, `
[retry]
max_attempts = 0
`)
	app, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if app.Retry.MaxAttempts == nil || *app.Retry.MaxAttempts != 0 {
		t.Errorf("got %v, want pointer to 0", app.Retry.MaxAttempts)
	}
}

func TestMaxAttemptsInvalidString(t *testing.T) {
	path := writeTemp(t, `
[retry]
max_attempts = "many"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid max_attempts string")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/x2ssh.toml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultConfig(t *testing.T) {
	app := Default()
	if app.Connection.Port != 22 {
		t.Errorf("got default port %d, want 22", app.Connection.Port)
	}
	if app.Retry.InitialDelayMS != 1000 || app.Retry.MaxDelayMS != 30000 {
		t.Errorf("unexpected retry defaults: %+v", app.Retry)
	}
}
