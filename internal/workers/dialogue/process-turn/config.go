// internal/workers/dialogue/process-turn/config.go
package processturn

import (
	"time"

	"dialog-manager/internal/common/config"
)

type Config struct {
	Timeout       time.Duration
	MaxJobsActive int
	MaxRetries    int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		MaxJobsActive: 10,
		MaxRetries:    3,
	}
}

// FromWorkerConfig overlays the `workers.dialogue-turn` section.
func FromWorkerConfig(wc config.WorkerConfig) *Config {
	cfg := LoadConfig()
	if wc.Timeout > 0 {
		cfg.Timeout = time.Duration(wc.Timeout) * time.Millisecond
	}
	if wc.MaxJobsActive > 0 {
		cfg.MaxJobsActive = wc.MaxJobsActive
	}
	if wc.MaxRetries > 0 {
		cfg.MaxRetries = wc.MaxRetries
	}
	return cfg
}
