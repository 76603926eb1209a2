// Package config loads the process configuration from defaults, an optional
// TOML file and SMSROUTER_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full process configuration.
type Config struct {
	Server struct {
		Addr string `koanf:"addr"`
	} `koanf:"server"`

	Database struct {
		DSN string `koanf:"dsn"`
	} `koanf:"database"`

	// Transports maps registry names to per-channel settings. The section
	// name becomes the transport's name and the scheme of its peer URIs.
	Transports map[string]TransportConfig `koanf:"transports"`
}

// TransportConfig holds the settings for one configured channel.
type TransportConfig struct {
	Driver string `koanf:"driver"`

	// Kannel driver settings.
	SMSURL         string  `koanf:"sms_url"`
	DLRURL         string  `koanf:"dlr_url"`
	TimeoutSeconds float64 `koanf:"timeout_seconds"`
	QueueSize      int     `koanf:"queue_size"`
}

// Timeout returns the outbound HTTP timeout as a duration.
func (t TransportConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds * float64(time.Second))
}

// Load reads the configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"server.addr": ":8080",
	}, "."), nil)

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %q: %w", path, err)
		}
	}

	// Double underscore separates nesting levels so that keys containing
	// underscores stay addressable: SMSROUTER_TRANSPORTS__GW__SMS_URL maps
	// to transports.gw.sms_url.
	k.Load(env.Provider("SMSROUTER_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SMSROUTER_")), "__", ".")
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot start with.
func Validate(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	for name, tc := range cfg.Transports {
		switch tc.Driver {
		case "kannel":
			if tc.SMSURL == "" {
				return fmt.Errorf("transport %s: sms_url is required", name)
			}
			if tc.DLRURL == "" {
				return fmt.Errorf("transport %s: dlr_url is required", name)
			}
		default:
			return fmt.Errorf("transport %s: unknown driver %q", name, tc.Driver)
		}
	}
	return nil
}
