package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied after validation when the config leaves fields unset.
const (
	DefaultPort              = 17080
	DefaultIntervalMS        = 15000
	DefaultTimeoutMS         = 10000
	DefaultStalenessSec      = 120
	DefaultOnTimeSec         = 60
	DefaultSkewToleranceSec  = 300
	DefaultExpirySec         = 900
	DefaultHistoryDepth      = 5
	DefaultNATSSubjectPrefix = "tracker"
)

// Load reads, validates and defaults the application configuration.
// A .env file is folded into the environment first; TRACKER_CONFIG overrides
// the search path and TRACKER_PORT overrides the listen port.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	paths := []string{"config.yml", "./config/config.yml"}
	if p := os.Getenv("TRACKER_CONFIG"); p != "" {
		paths = []string{p}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg.Server); err != nil {
		// A missing port is defaulted below; anything else is a real error.
		if cfg.Server.Port != 0 {
			return nil, fmt.Errorf("server config: %w", err)
		}
	}
	if err := v.Struct(cfg.GTFS); err != nil {
		return nil, fmt.Errorf("gtfs config: %w", err)
	}
	for i, f := range cfg.Feeds {
		if err := v.Struct(f); err != nil {
			return nil, fmt.Errorf("feed %q (index %d): %w", f.Name, i, err)
		}
	}
	if err := v.Struct(cfg.Tracker); err != nil {
		return nil, fmt.Errorf("tracker config: %w", err)
	}
	if cfg.NATS.URL != "" {
		if err := v.Struct(cfg.NATS); err != nil {
			return nil, fmt.Errorf("nats config: %w", err)
		}
	}

	applyDefaults(&cfg)

	if p := os.Getenv("TRACKER_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("invalid TRACKER_PORT: %q", p)
		}
		cfg.Server.Port = port
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	for i := range cfg.Feeds {
		if cfg.Feeds[i].IntervalMS == 0 {
			cfg.Feeds[i].IntervalMS = DefaultIntervalMS
		}
		if cfg.Feeds[i].TimeoutMS == 0 {
			cfg.Feeds[i].TimeoutMS = DefaultTimeoutMS
		}
	}
	t := &cfg.Tracker
	if t.StalenessThresholdSec == 0 {
		t.StalenessThresholdSec = DefaultStalenessSec
	}
	if t.OnTimeThresholdSec == 0 {
		t.OnTimeThresholdSec = DefaultOnTimeSec
	}
	if t.SkewToleranceSec == 0 {
		t.SkewToleranceSec = DefaultSkewToleranceSec
	}
	if t.ExpirySec == 0 {
		t.ExpirySec = DefaultExpirySec
	}
	if t.HistoryDepth == 0 {
		t.HistoryDepth = DefaultHistoryDepth
	}
	if cfg.NATS.URL != "" && cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
}
