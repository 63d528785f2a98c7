package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Radio kinds a station can be wired with.
const (
	RadioTCP  = "tcp"
	RadioQUIC = "quic"
	RadioMem  = "mem"
)

var ErrUnknownRadioKind = errors.New("config: unknown radio kind")

// StationConfig is the tetherd configuration file.
type StationConfig struct {
	Name         string      `toml:"name"`
	UUID         string      `toml:"uuid"`
	HistoryLimit int         `toml:"history_limit"`
	Radio        RadioConfig `toml:"radio"`
	Admin        AdminConfig `toml:"admin"`
}

type RadioConfig struct {
	Kind       string    `toml:"kind"`
	ListenAddr string    `toml:"listen_addr"`
	TLS        TLSConfig `toml:"tls"`
}

type TLSConfig struct {
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	CAFile     string `toml:"ca_file"`
	ServerName string `toml:"server_name"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
}

// DefaultStationConfig is the baseline a config file overlays.
func DefaultStationConfig() StationConfig {
	return StationConfig{
		Name:         "tether-station",
		UUID:         "4fa1ce9d-2c47-4b88-a6a4-52e5d37913c6",
		HistoryLimit: 128,
		Radio: RadioConfig{
			Kind:       RadioTCP,
			ListenAddr: ":7600",
		},
		Admin: AdminConfig{
			Addr: ":7610",
		},
	}
}

// LoadStationConfig reads, defaults and validates a station config file.
func LoadStationConfig(path string) (StationConfig, error) {
	cfg := DefaultStationConfig()
	if err := loadToml(path, &cfg); err != nil {
		return StationConfig{}, err
	}
	if err := ValidateStationConfig(cfg); err != nil {
		return StationConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateStationConfig(cfg StationConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("station config missing name")
	}
	if !validUUID(cfg.UUID) {
		return fmt.Errorf("station config uuid %q is not an 8-4-4-4-12 uuid", cfg.UUID)
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("station config history_limit must be positive")
	}
	switch cfg.Radio.Kind {
	case RadioTCP, RadioQUIC:
		if strings.TrimSpace(cfg.Radio.ListenAddr) == "" {
			return fmt.Errorf("radio %s requires listen_addr", cfg.Radio.Kind)
		}
	case RadioMem:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRadioKind, cfg.Radio.Kind)
	}
	if err := validateTLS(cfg.Radio.TLS); err != nil {
		return err
	}
	return nil
}

func validateTLS(cfg TLSConfig) error {
	hasCert := strings.TrimSpace(cfg.CertFile) != ""
	hasKey := strings.TrimSpace(cfg.KeyFile) != ""
	if hasCert != hasKey {
		return fmt.Errorf("tls cert_file and key_file must be set together")
	}
	return nil
}

func validUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
			if !isHex {
				return false
			}
		}
	}
	return true
}
