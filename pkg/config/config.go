// Package config holds the tunable parameters of the sync engine:
// rotation thresholds, retry schedules, and polling-group rate limits.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable named in spec.md. Load starts from
// Default(); fields absent from the YAML keep their default values,
// while fields present in the YAML (including explicit zeros) replace them.
type Config struct {
	// RotationSizeBytes is the log-writer rotation threshold (§4.2).
	RotationSizeBytes int64 `yaml:"rotationSizeBytes"`
	// MaxActivityEntries is the activity-log compaction threshold (§4.7).
	MaxActivityEntries int `yaml:"maxActivityEntries"`
	// StaleSequenceGapThreshold is the activity-sync staleness gap (§4.8).
	StaleSequenceGapThreshold uint64 `yaml:"staleSequenceGapThreshold"`
	// BackoffScheduleMs is the pollAndReload retry schedule (§4.8), in
	// milliseconds.
	BackoffScheduleMs []int `yaml:"backoffScheduleMs"`
	// SnapshotKeepCount is how many complete snapshots crash recovery
	// keeps per note (§4.5(b)); 0 means keep all.
	SnapshotKeepCount int `yaml:"snapshotKeepCount"`

	// Polling group (§4.9).
	PollRatePerMinute     float64 `yaml:"pollRatePerMinute"`
	HitRateMultiplier     float64 `yaml:"hitRateMultiplier"`
	MaxBurstPerSecond     int     `yaml:"maxBurstPerSecond"`
	NormalPriorityReserve float64 `yaml:"normalPriorityReserve"`
	RecentEditWindowMs    int64   `yaml:"recentEditWindowMs"`
	FullRepollIntervalMs  int64   `yaml:"fullRepollIntervalMs"`
	FastPathMaxDelayMs    int64   `yaml:"fastPathMaxDelayMs"`
}

// Default returns the literal defaults from spec.md.
func Default() *Config {
	return &Config{
		RotationSizeBytes:         10 * 1024 * 1024,
		MaxActivityEntries:        1000,
		StaleSequenceGapThreshold: 50,
		BackoffScheduleMs:         []int{100, 200, 500, 1000, 2000, 3000, 5000, 7000, 10000, 15000},
		SnapshotKeepCount:         3,

		PollRatePerMinute:     120,
		HitRateMultiplier:     0.25,
		MaxBurstPerSecond:     10,
		NormalPriorityReserve: 0.2,
		RecentEditWindowMs:    300_000,
		FullRepollIntervalMs:  1_800_000,
		FastPathMaxDelayMs:    60_000,
	}
}

// Backoff returns the retry schedule as time.Duration values.
func (c *Config) Backoff() []time.Duration {
	out := make([]time.Duration, len(c.BackoffScheduleMs))
	for i, ms := range c.BackoffScheduleMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// Load reads a YAML file and overlays it onto Default(). A missing
// file is not an error — the caller gets the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
