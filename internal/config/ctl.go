package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CtlConfig is the tetherctl client configuration.
type CtlConfig struct {
	Server         string `yaml:"server"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	AuthToken      string `yaml:"auth_token"`
}

// DefaultCtlConfig points at a local tetherd on its default admin port.
func DefaultCtlConfig() CtlConfig {
	return CtlConfig{
		Server:         "http://127.0.0.1:7610",
		TimeoutSeconds: 10,
	}
}

// DefaultCtlPath returns ~/.tether/config.yaml, falling back to a relative
// path when the home directory cannot be resolved.
func DefaultCtlPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tether", "config.yaml")
	}
	return filepath.Join(home, ".tether", "config.yaml")
}

// LoadCtlConfig reads the client config. A missing file is not an error;
// the defaults already point at a local station.
func LoadCtlConfig(path string) (CtlConfig, error) {
	cfg := DefaultCtlConfig()

	// The file may hold an auth_token, so warn when other users can read it.
	if info, err := os.Stat(path); err == nil {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			fmt.Fprintf(os.Stderr,
				"warning: config file %s has permissions %04o, expected 0600; auth tokens may be exposed to other users\n",
				path, perm)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return CtlConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CtlConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if strings.TrimSpace(cfg.Server) == "" {
		return CtlConfig{}, fmt.Errorf("ctl config missing server")
	}
	if cfg.TimeoutSeconds <= 0 {
		return CtlConfig{}, fmt.Errorf("ctl config timeout_seconds must be positive")
	}
	return cfg, nil
}
