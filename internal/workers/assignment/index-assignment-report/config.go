package indexassignmentreport

import (
	"time"

	"placement-workers/internal/common/config"
	"placement-workers/internal/common/validation"
)

type Config struct {
	Timeout      time.Duration `validate:"gt=0"`
	Index        string        `validate:"required"`
	MaxRetries   int           `validate:"gte=0"`
	RetryBackoff time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	w := config.GetWorkerConfig(cfg, TaskType)
	return &Config{
		Timeout:      config.GetDuration(w.Timeout),
		Index:        cfg.Assignment.ReportIndex,
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
