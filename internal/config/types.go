package config

import (
	"fmt"
	"time"
)

type Config struct {
	Log           LogConfig           `json:"log"`
	Timers        TimersConfig        `json:"timers"`
	Notifications NotificationsConfig `json:"notifications,omitempty"`

	// Storage controls the optional persistence layer. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// TimersConfig bounds timer durations. All fields are Go duration strings
// (e.g. "30s", "10m", "24h"); omitted fields take the documented defaults.
type TimersConfig struct {
	// MaxDuration caps a single timer's total duration (default "24h").
	MaxDuration string `json:"max_duration,omitempty"`
	// DefaultYieldTimeout is used when a run call does not name a yield
	// timeout (default "60s").
	DefaultYieldTimeout string `json:"default_yield_timeout,omitempty"`
	// TombstoneTTL is how long a terminated timer id stays recognizable
	// (default "10m").
	TombstoneTTL string `json:"tombstone_ttl,omitempty"`
}

type NotificationsConfig struct {
	// Capacity is the queue high-water mark; beyond it the oldest pending
	// notification is dropped (default 256).
	Capacity int `json:"capacity,omitempty"`
}

// StorageConfig mirrors the storage package's drivers.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tickd_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Console: true},
	}
}

// TimerDurations resolves the duration strings against their defaults.
func (c *Config) TimerDurations() (maxDur, yield, ttl time.Duration, err error) {
	maxDur, err = ParseDurationOrDefault("timers.max_duration", c.Timers.MaxDuration, 24*time.Hour)
	if err != nil {
		return 0, 0, 0, err
	}
	yield, err = ParseDurationOrDefault("timers.default_yield_timeout", c.Timers.DefaultYieldTimeout, 60*time.Second)
	if err != nil {
		return 0, 0, 0, err
	}
	ttl, err = ParseDurationOrDefault("timers.tombstone_ttl", c.Timers.TombstoneTTL, 10*time.Minute)
	if err != nil {
		return 0, 0, 0, err
	}
	return maxDur, yield, ttl, nil
}

// Validate checks the parts of the config that must be rejected before
// commit rather than defaulted away.
func (c *Config) Validate() error {
	if _, _, _, err := c.TimerDurations(); err != nil {
		return err
	}
	if c.Notifications.Capacity < 0 {
		return fmt.Errorf("notifications.capacity: must be >= 0, got %d", c.Notifications.Capacity)
	}
	if c.Storage != nil {
		switch c.Storage.Driver {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
