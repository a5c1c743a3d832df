package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the controller daemon configuration. Every field has a
// default so an empty file (or no file) yields a runnable controller.
type Config struct {
	DataDir        string `toml:"data_dir"`
	ListenAddr     string `toml:"listen_addr"`
	VolumesDir     string `toml:"volumes_dir"`
	SecretsDir     string `toml:"secrets_dir"`
	LogLevel       string `toml:"log_level"`
	LogJSON        bool   `toml:"log_json"`
	CredentialSeed string `toml:"credential_seed"`

	ReconcileInterval   duration `toml:"reconcile_interval"`
	BindInterval        duration `toml:"bind_interval"`
	MaterializeInterval duration `toml:"materialize_interval"`
	CoordinateInterval  duration `toml:"coordinate_interval"`

	BackoffInitial duration `toml:"backoff_initial"`
	BackoffMax     duration `toml:"backoff_max"`

	// DegradedAfter is the number of consecutive ticks a tier may sit
	// below its desired count before it is reported degraded.
	DegradedAfter int `toml:"degraded_after"`

	ExternalPortMin int `toml:"external_port_min"`
	ExternalPortMax int `toml:"external_port_max"`
}

// duration lets TOML carry values like "10s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:             "/var/lib/strata",
		ListenAddr:          ":8400",
		VolumesDir:          "/var/lib/strata/volumes",
		SecretsDir:          "/run/strata/secrets",
		LogLevel:            "info",
		CredentialSeed:      "",
		ReconcileInterval:   duration{2 * time.Second},
		BindInterval:        duration{2 * time.Second},
		MaterializeInterval: duration{time.Second},
		CoordinateInterval:  duration{2 * time.Second},
		BackoffInitial:      duration{time.Second},
		BackoffMax:          duration{30 * time.Second},
		DegradedAfter:       3,
		ExternalPortMin:     30000,
		ExternalPortMax:     32767,
	}
}

// Load reads a TOML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ExternalPortMin <= 0 || c.ExternalPortMax > 65535 || c.ExternalPortMin > c.ExternalPortMax {
		return fmt.Errorf("invalid external port range %d-%d", c.ExternalPortMin, c.ExternalPortMax)
	}
	if c.DegradedAfter < 1 {
		return fmt.Errorf("degraded_after must be >= 1")
	}
	if c.BackoffInitial.Duration <= 0 || c.BackoffMax.Duration < c.BackoffInitial.Duration {
		return fmt.Errorf("invalid backoff bounds")
	}
	return nil
}
