package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRACKER_CONFIG", path)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
server:
  port: 9090
gtfs:
  staticZipPath: /data/gtfs.zip
  agency_id: DART
feeds:
  - name: trip-updates
    url: https://example.com/tripupdates.pb
    intervalMS: 5000
    priority: 1
  - name: vehicle-positions
    url: https://example.com/vehiclepositions.pb
    priority: 2
tracker:
  stalenessThresholdSec: 90
nats:
  url: nats://localhost:4222
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.GTFS.StaticZipPath != "/data/gtfs.zip" || cfg.GTFS.AgencyID != "DART" {
		t.Errorf("gtfs = %+v", cfg.GTFS)
	}
	if len(cfg.Feeds) != 2 {
		t.Fatalf("feeds = %d", len(cfg.Feeds))
	}
	if cfg.Feeds[0].Interval() != 5*time.Second {
		t.Errorf("feed interval = %v", cfg.Feeds[0].Interval())
	}
	// Unset per-feed values take defaults.
	if cfg.Feeds[1].IntervalMS != DefaultIntervalMS || cfg.Feeds[1].TimeoutMS != DefaultTimeoutMS {
		t.Errorf("feed defaults not applied: %+v", cfg.Feeds[1])
	}
	if cfg.Tracker.StalenessThresholdSec != 90 {
		t.Errorf("staleness = %d", cfg.Tracker.StalenessThresholdSec)
	}
	if cfg.Tracker.OnTimeThresholdSec != DefaultOnTimeSec || cfg.Tracker.HistoryDepth != DefaultHistoryDepth {
		t.Errorf("tracker defaults not applied: %+v", cfg.Tracker)
	}
	if cfg.NATS.SubjectPrefix != DefaultNATSSubjectPrefix {
		t.Errorf("nats prefix = %q", cfg.NATS.SubjectPrefix)
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	writeConfig(t, `
gtfs:
  staticZipPath: /data/gtfs.zip
`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if len(cfg.Feeds) != 0 {
		t.Errorf("feeds = %+v", cfg.Feeds)
	}
}

func TestLoad_PortOverride(t *testing.T) {
	writeConfig(t, `
gtfs:
  staticZipPath: /data/gtfs.zip
server:
  port: 9090
`)
	t.Setenv("TRACKER_PORT", "7777")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want override 7777", cfg.Server.Port)
	}

	t.Setenv("TRACKER_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("invalid TRACKER_PORT accepted")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing static zip path",
			body: "server:\n  port: 8080\n",
		},
		{
			name: "feed without url",
			body: `
gtfs:
  staticZipPath: /data/gtfs.zip
feeds:
  - name: broken
`,
		},
		{
			name: "feed with junk url",
			body: `
gtfs:
  staticZipPath: /data/gtfs.zip
feeds:
  - name: broken
    url: not-a-url
`,
		},
		{
			name: "retries out of range",
			body: `
gtfs:
  staticZipPath: /data/gtfs.zip
feeds:
  - name: eager
    url: https://example.com/feed.pb
    retries: 99
`,
		},
		{
			name: "nats junk url",
			body: `
gtfs:
  staticZipPath: /data/gtfs.zip
nats:
  url: '***'
`,
		},
		{
			name: "not yaml",
			body: "{{{{",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeConfig(t, tt.body)
			if _, err := Load(); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("TRACKER_CONFIG", filepath.Join(t.TempDir(), "nope.yml"))
	if _, err := Load(); err == nil {
		t.Error("Load succeeded with no config file")
	}
}
