package config

import "time"

// ServerConfig contains the HTTP server configuration.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// GTFSConfig points at the static GTFS bundle the schedule graph is built from.
type GTFSConfig struct {
	StaticZipPath string `yaml:"staticZipPath" validate:"required"`
	AgencyID      string `yaml:"agency_id"`
}

// FeedSource is one GTFS-Realtime endpoint to poll. Priority breaks ties
// between sources reporting the same timestamp; lower numbers win.
type FeedSource struct {
	Name       string `yaml:"name" validate:"required"`
	URL        string `yaml:"url" validate:"required,url"`
	IntervalMS int    `yaml:"intervalMS" validate:"gte=0"`
	TimeoutMS  int    `yaml:"timeoutMS" validate:"gte=0"`
	Retries    int    `yaml:"retries" validate:"gte=0,lte=10"`
	Priority   int    `yaml:"priority" validate:"gte=0"`
}

// TrackerConfig holds the reconciliation thresholds. All of these are
// operational tuning knobs, not protocol constants.
type TrackerConfig struct {
	StalenessThresholdSec int `yaml:"stalenessThresholdSec" validate:"gte=0"`
	OnTimeThresholdSec    int `yaml:"onTimeThresholdSec" validate:"gte=0"`
	SkewToleranceSec      int `yaml:"skewToleranceSec" validate:"gte=0"`
	ExpirySec             int `yaml:"expirySec" validate:"gte=0"`
	HistoryDepth          int `yaml:"historyDepth" validate:"gte=0,lte=100"`
}

// NATSConfig enables snapshot fan-out over NATS when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url" validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server" validate:"required"`
	GTFS    GTFSConfig    `yaml:"gtfs" validate:"required"`
	Feeds   []FeedSource  `yaml:"feeds"`
	Tracker TrackerConfig `yaml:"tracker"`
	NATS    NATSConfig    `yaml:"nats"`
}

// Duration helpers so the rest of the code never touches raw millisecond ints.

func (f FeedSource) Interval() time.Duration { return time.Duration(f.IntervalMS) * time.Millisecond }
func (f FeedSource) Timeout() time.Duration  { return time.Duration(f.TimeoutMS) * time.Millisecond }

func (t TrackerConfig) StalenessThreshold() time.Duration {
	return time.Duration(t.StalenessThresholdSec) * time.Second
}

func (t TrackerConfig) OnTimeThreshold() time.Duration {
	return time.Duration(t.OnTimeThresholdSec) * time.Second
}

func (t TrackerConfig) SkewTolerance() time.Duration {
	return time.Duration(t.SkewToleranceSec) * time.Second
}

func (t TrackerConfig) Expiry() time.Duration { return time.Duration(t.ExpirySec) * time.Second }
