package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nearwire/tether/internal/config"
	"github.com/nearwire/tether/internal/radio/mem"
	"github.com/nearwire/tether/internal/radio/tcp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadStationConfigDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := loadStationConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	defaults := config.DefaultStationConfig()
	if cfg.Name != defaults.Name {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.Radio.Kind != config.RadioTCP || cfg.Radio.ListenAddr != defaults.Radio.ListenAddr {
		t.Fatalf("unexpected radio: %+v", cfg.Radio)
	}
	if cfg.Admin.Addr != defaults.Admin.Addr {
		t.Fatalf("unexpected admin addr: %q", cfg.Admin.Addr)
	}
	if cfg.Link.Mode != linkModeManual {
		t.Fatalf("unexpected link mode: %q", cfg.Link.Mode)
	}
	if cfg.DialTimeout != 0 {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
}

func TestLoadStationConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
name = "relay-west"
uuid = "0b87cf62-4f1a-4e2e-9b1c-8f6a3d2e1c0a"
history_limit = 16

[link]
mode = "connect"
endpoint = "10.0.0.7:7600"
secure = true

[radio]
kind = "quic"
listen_addr = ":7700"
dial_timeout = "1500ms"

[radio.tls]
server_name = "relay-east"

[admin]
addr = "127.0.0.1:7611"
cors_origins = ["http://ops.local", " "]
auth_token = "ops-token"
`)

	cfg, err := loadStationConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "relay-west" || cfg.HistoryLimit != 16 {
		t.Fatalf("unexpected station: %+v", cfg.StationConfig)
	}
	if cfg.Link.Mode != linkModeConnect || cfg.Link.Endpoint != "10.0.0.7:7600" || !cfg.Link.Secure {
		t.Fatalf("unexpected link settings: %+v", cfg.Link)
	}
	if cfg.Radio.Kind != config.RadioQUIC || cfg.Radio.ListenAddr != ":7700" {
		t.Fatalf("unexpected radio: %+v", cfg.Radio)
	}
	if cfg.DialTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.Radio.TLS.ServerName != "relay-east" {
		t.Fatalf("unexpected tls: %+v", cfg.Radio.TLS)
	}
	if len(cfg.Admin.CorsOrigins) != 1 || cfg.Admin.CorsOrigins[0] != "http://ops.local" {
		t.Fatalf("unexpected cors origins: %+v", cfg.Admin.CorsOrigins)
	}
	if cfg.Admin.AuthToken != "ops-token" {
		t.Fatalf("unexpected auth token: %q", cfg.Admin.AuthToken)
	}
}

func TestLoadStationConfigBlankNameKeepsDefault(t *testing.T) {
	path := writeConfig(t, `
name = "   "
`)

	cfg, err := loadStationConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != config.DefaultStationConfig().Name {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
}

func TestLoadStationConfigEmptyAdminAddrDisables(t *testing.T) {
	path := writeConfig(t, `
[admin]
addr = ""
`)

	cfg, err := loadStationConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Admin.Addr != "" {
		t.Fatalf("unexpected admin addr: %q", cfg.Admin.Addr)
	}
}

func TestLoadStationConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `
[radio]
dial_timeout = "abc"
`)

	if _, err := loadStationConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadStationConfigConnectNeedsEndpoint(t *testing.T) {
	path := writeConfig(t, `
[link]
mode = "connect"
`)

	if _, err := loadStationConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadStationConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
history_limit = 0
`)

	if _, err := loadStationConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestBuildTransportKinds(t *testing.T) {
	settings := stationSettings{StationConfig: config.DefaultStationConfig()}

	tr, err := buildTransport(settings)
	if err != nil {
		t.Fatalf("build tcp transport: %v", err)
	}
	if _, ok := tr.(*tcp.Transport); !ok {
		t.Fatalf("unexpected transport type: %T", tr)
	}

	settings.Radio.Kind = config.RadioMem
	tr, err = buildTransport(settings)
	if err != nil {
		t.Fatalf("build mem transport: %v", err)
	}
	if _, ok := tr.(*mem.Network); !ok {
		t.Fatalf("unexpected transport type: %T", tr)
	}

	settings.Radio.Kind = "carrier-pigeon"
	if _, err := buildTransport(settings); !errors.Is(err, config.ErrUnknownRadioKind) {
		t.Fatalf("unexpected error: %v", err)
	}
}
