package computeassignments

import (
	"time"

	"placement-workers/internal/common/config"
	"placement-workers/internal/common/validation"
)

type Config struct {
	Timeout      time.Duration `validate:"gt=0"`
	RunTimeout   time.Duration `validate:"gt=0"`
	LockTTL      time.Duration `validate:"gt=0"`
	ResultTTL    time.Duration `validate:"gte=0"`
	ForceFill    bool
	MaxRetries   int `validate:"gte=0"`
	RetryBackoff time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	w := config.GetWorkerConfig(cfg, TaskType)
	return &Config{
		Timeout:      config.GetDuration(w.Timeout),
		RunTimeout:   config.GetDuration(cfg.Assignment.RunTimeout),
		LockTTL:      config.GetDuration(cfg.Assignment.LockTTL),
		ResultTTL:    config.GetDuration(cfg.Assignment.ResultTTL),
		ForceFill:    cfg.Assignment.ForceFill,
		MaxRetries:   w.MaxRetries,
		RetryBackoff: config.GetDuration(w.RetryBackoff),
	}
}

func (c *Config) Validate() error {
	if res := validation.ValidateStruct(c); !res.Valid {
		return res
	}
	return nil
}
