package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel     = "TETHER_LOG_LEVEL"
	EnvLogFormat    = "TETHER_LOG_FORMAT"
	EnvLogNoColor   = "TETHER_LOG_NOCOLOR"
	EnvLogFile      = "TETHER_LOG_FILE"
	EnvLogFileMaxMB = "TETHER_LOG_FILE_MAX_MB"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Profile selects a baseline configuration before env overrides.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved global logger configuration.
type Config struct {
	Level     zerolog.Level
	Format    string
	NoColor   bool
	Timestamp bool
	// File mirrors output into a size-rotated log file when non-empty.
	File      string
	FileMaxMB int
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global zerolog logger once per process. Later
// calls, including calls with a different profile, are no-ops.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		apply(cfg)
	})
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{
			Level:     zerolog.DebugLevel,
			Format:    FormatConsole,
			NoColor:   true,
			Timestamp: false,
		}
	default:
		return Config{
			Level:     zerolog.InfoLevel,
			Format:    FormatConsole,
			Timestamp: true,
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if f, ok := parseFormat(os.Getenv(EnvLogFormat)); ok {
		cfg.Format = f
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if path := strings.TrimSpace(os.Getenv(EnvLogFile)); path != "" {
		cfg.File = path
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvLogFileMaxMB))); err == nil && n > 0 {
		cfg.FileMaxMB = n
	}
}

func apply(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level)

	var out io.Writer = os.Stderr
	if cfg.Format != FormatJSON {
		cw := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.NoColor}
		if cfg.Timestamp {
			cw.TimeFormat = time.RFC3339
		}
		out = cw
	}
	if cfg.File != "" {
		maxMB := cfg.FileMaxMB
		if maxMB <= 0 {
			maxMB = 64
		}
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxMB,
			MaxBackups: 3,
			MaxAge:     14,
		})
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case FormatConsole:
		return FormatConsole, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return "", false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
