package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return NewManager(path)
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
log:
  level: debug
  console: true
  file:
    enabled: true
    path: ./tickd.log
timers:
  max_duration: 12h
  default_yield_timeout: 30s
  tombstone_ttl: 5m
notifications:
  capacity: 64
storage:
  driver: file
  path: ./data/tickd
`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.File.Enabled {
		t.Fatalf("log config: %+v", cfg.Log)
	}
	maxDur, yield, ttl, err := cfg.TimerDurations()
	if err != nil {
		t.Fatalf("TimerDurations: %v", err)
	}
	if maxDur != 12*time.Hour || yield != 30*time.Second || ttl != 5*time.Minute {
		t.Fatalf("durations = %s/%s/%s", maxDur, yield, ttl)
	}
	if cfg.Notifications.Capacity != 64 {
		t.Fatalf("capacity = %d", cfg.Notifications.Capacity)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{
  "log": {"level": "info", "console": true},
  "timers": {"max_duration": "1h"}
}`)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	maxDur, yield, ttl, err := cfg.TimerDurations()
	if err != nil {
		t.Fatalf("TimerDurations: %v", err)
	}
	// Omitted fields get the documented defaults.
	if maxDur != time.Hour || yield != 60*time.Second || ttl != 10*time.Minute {
		t.Fatalf("durations = %s/%s/%s", maxDur, yield, ttl)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
log:
  level: info
timerz:
  max_duration: 1h
`)
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("Parse = %v, want unknown-field error", err)
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"log":{"level":"info"}}{"extra":true}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("Parse accepted trailing JSON")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", Config{}, true},
		{"bad max_duration", Config{Timers: TimersConfig{MaxDuration: "soon"}}, false},
		{"negative capacity", Config{Notifications: NotificationsConfig{Capacity: -1}}, false},
		{"unknown driver", Config{Storage: &StorageConfig{Driver: "redis"}}, false},
		{"file driver", Config{Storage: &StorageConfig{Driver: "file", Path: "./x"}}, true},
		{"bad busy_timeout", Config{Storage: &StorageConfig{Driver: "sqlite", BusyTimeout: "nope"}}, false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("Validate accepted invalid config")
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("p", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %s, %v", d, err)
	}
	if d, err := ParseDurationField("p", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %s, %v", d, err)
	}
	if _, err := ParseDurationField("p", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("p", "five"); err == nil {
		t.Fatal("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("p", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got %s, %v", d, err)
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "log:\n  level: warn\n")
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("publish did not deliver")
	}

	// Full buffer: newest wins, publish never blocks.
	m.publish(&Config{})
	newest := &Config{}
	m.publish(newest)
	if got := <-ch; got != newest {
		t.Fatal("slow subscriber must see the newest config")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after Unsubscribe")
	}
	m.Unsubscribe(ch) // idempotent
}
