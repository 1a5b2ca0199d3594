package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration.
type Config struct {
	// Version names the cache bucket maintained by this deployment.
	Version string `yaml:"version" env:"VERSION"`

	// Origin is the upstream base URL the gateway fronts.
	Origin string `yaml:"origin" env:"ORIGIN"`

	Listen Listen `yaml:"listen" envPrefix:"LISTEN_"`

	// DB is the SQLite database path.
	DB string `yaml:"db" env:"DB"`

	// Assets is the static manifest cached at install time.
	Assets []string `yaml:"assets" env:"ASSETS"`

	// Offline is the cached document served to failed navigations.
	Offline string `yaml:"offline" env:"OFFLINE"`

	Notification Notification `yaml:"notification" envPrefix:"NOTIFICATION_"`
	Sync         Sync         `yaml:"sync" envPrefix:"SYNC_"`
}

// Listen holds the two bind addresses: the gateway that pages fetch
// through, and the control API they message over.
type Listen struct {
	Gateway string `yaml:"gateway" env:"GATEWAY"`
	Control string `yaml:"control" env:"CONTROL"`
}

// Notification configures locally generated notification copy.
type Notification struct {
	Locale string `yaml:"locale" env:"LOCALE"`
}

// Sync configures the background and periodic sync hooks.
type Sync struct {
	BackgroundTag    string `yaml:"background_tag" env:"BACKGROUND_TAG"`
	PeriodicTag      string `yaml:"periodic_tag" env:"PERIODIC_TAG"`
	ReminderInterval string `yaml:"reminder_interval" env:"REMINDER_INTERVAL"`
}

// envPrefix namespaces every override variable.
const envPrefix = "OFFWORKER_"

// Default returns the configuration with every optional field at its
// documented default. Version, origin, and assets have no default.
func Default() Config {
	return Config{
		Listen: Listen{
			Gateway: ":8080",
			Control: ":8081",
		},
		DB:      "offworker.db",
		Offline: "/offline.html",
		Notification: Notification{
			Locale: "en",
		},
		Sync: Sync{
			BackgroundTag:    "background-sync-tasks",
			PeriodicTag:      "task-reminders",
			ReminderInterval: "15m",
		},
	}
}

// Load reads, validates, and resolves the configuration at path.
// Environment overrides are applied after the file; validation covers
// the file only, so a broken override fails at parse time instead.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and unmarshals raw YAML configuration. The name is
// used for error positions only.
func Parse(name string, data []byte) (Config, error) {
	if errs := Validate(name, data); len(errs) > 0 {
		return Config{}, &InvalidConfigError{Errors: errs}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("apply environment overrides: %w", err)
	}

	if _, err := cfg.OriginURL(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.ReminderInterval(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// OriginURL parses the configured origin into an absolute URL.
func (c Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", c.Origin, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: must be an absolute URL", c.Origin)
	}
	return u, nil
}

// ReminderInterval parses the periodic reminder cadence.
func (c Config) ReminderInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sync.ReminderInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sync.reminder_interval %q: %w", c.Sync.ReminderInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid sync.reminder_interval %q: must be positive", c.Sync.ReminderInterval)
	}
	return d, nil
}
