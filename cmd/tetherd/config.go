package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nearwire/tether/internal/config"
)

// Link boot modes.
const (
	linkModeManual  = "manual"
	linkModeListen  = "listen"
	linkModeConnect = "connect"
)

// stationSettings is the daemon's resolved runtime configuration: the shared
// station file schema plus daemon-only tuning.
type stationSettings struct {
	config.StationConfig
	DialTimeout time.Duration
	Link        linkSettings
}

// linkSettings controls what the link does on boot, before any operator
// command arrives.
type linkSettings struct {
	Mode     string
	Endpoint string
	Secure   bool
}

// fileConfig mirrors the TOML file loosely so that defined-but-empty keys
// can be told apart from absent ones.
type fileConfig struct {
	Name         string `toml:"name"`
	UUID         string `toml:"uuid"`
	HistoryLimit int    `toml:"history_limit"`
	Link         struct {
		Mode     string `toml:"mode"`
		Endpoint string `toml:"endpoint"`
		Secure   bool   `toml:"secure"`
	} `toml:"link"`
	Radio struct {
		Kind        string `toml:"kind"`
		ListenAddr  string `toml:"listen_addr"`
		DialTimeout string `toml:"dial_timeout"`
		TLS         struct {
			CertFile   string `toml:"cert_file"`
			KeyFile    string `toml:"key_file"`
			CAFile     string `toml:"ca_file"`
			ServerName string `toml:"server_name"`
		} `toml:"tls"`
	} `toml:"radio"`
	Admin struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
		AuthToken   string   `toml:"auth_token"`
	} `toml:"admin"`
}

func loadStationConfig(path string) (stationSettings, error) {
	settings := stationSettings{
		StationConfig: config.DefaultStationConfig(),
		Link:          linkSettings{Mode: linkModeManual},
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return stationSettings{}, fmt.Errorf("load station config: %w", err)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			settings.Name = name
		}
	}
	if meta.IsDefined("uuid") {
		if id := strings.TrimSpace(raw.UUID); id != "" {
			settings.UUID = id
		}
	}
	if meta.IsDefined("history_limit") {
		settings.HistoryLimit = raw.HistoryLimit
	}

	if meta.IsDefined("link", "mode") {
		settings.Link.Mode = strings.TrimSpace(raw.Link.Mode)
	}
	if meta.IsDefined("link", "endpoint") {
		settings.Link.Endpoint = strings.TrimSpace(raw.Link.Endpoint)
	}
	if meta.IsDefined("link", "secure") {
		settings.Link.Secure = raw.Link.Secure
	}

	if meta.IsDefined("radio", "kind") {
		settings.Radio.Kind = strings.TrimSpace(raw.Radio.Kind)
	}
	if meta.IsDefined("radio", "listen_addr") {
		settings.Radio.ListenAddr = strings.TrimSpace(raw.Radio.ListenAddr)
	}
	if meta.IsDefined("radio", "dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Radio.DialTimeout))
		if err != nil {
			return stationSettings{}, fmt.Errorf("parse radio.dial_timeout: %w", err)
		}
		settings.DialTimeout = d
	}
	if meta.IsDefined("radio", "tls", "cert_file") {
		settings.Radio.TLS.CertFile = strings.TrimSpace(raw.Radio.TLS.CertFile)
	}
	if meta.IsDefined("radio", "tls", "key_file") {
		settings.Radio.TLS.KeyFile = strings.TrimSpace(raw.Radio.TLS.KeyFile)
	}
	if meta.IsDefined("radio", "tls", "ca_file") {
		settings.Radio.TLS.CAFile = strings.TrimSpace(raw.Radio.TLS.CAFile)
	}
	if meta.IsDefined("radio", "tls", "server_name") {
		settings.Radio.TLS.ServerName = strings.TrimSpace(raw.Radio.TLS.ServerName)
	}

	// A defined-but-empty admin.addr turns the admin API off; an absent key
	// keeps the default listener.
	if meta.IsDefined("admin", "addr") {
		settings.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		settings.Admin.CorsOrigins = normalizeOrigins(raw.Admin.CorsOrigins)
	}
	if meta.IsDefined("admin", "auth_token") {
		settings.Admin.AuthToken = strings.TrimSpace(raw.Admin.AuthToken)
	}

	if err := config.ValidateStationConfig(settings.StationConfig); err != nil {
		return stationSettings{}, err
	}
	if err := validateLinkSettings(settings.Link); err != nil {
		return stationSettings{}, err
	}
	return settings, nil
}

func validateLinkSettings(l linkSettings) error {
	switch l.Mode {
	case linkModeManual, linkModeListen:
	case linkModeConnect:
		if l.Endpoint == "" {
			return fmt.Errorf("link mode %q requires endpoint", l.Mode)
		}
	default:
		return fmt.Errorf("unknown link mode: %q", l.Mode)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	return out
}
