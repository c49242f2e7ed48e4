package notifyunassigned

import (
	"time"

	"placement-workers/internal/common/config"
	"placement-workers/internal/common/validation"
)

type Config struct {
	Timeout      time.Duration `validate:"gt=0"`
	EmailEnabled bool
	FromEmail    string   `validate:"required_if=EmailEnabled true,omitempty,email"`
	Recipients   []string `validate:"required_if=EmailEnabled true,dive,email"`
	TopicEnabled bool
	TopicARN     string        `validate:"required_if=TopicEnabled true"`
	DeliveryTTL  time.Duration `validate:"gte=0"`
	MaxRetries   int           `validate:"gte=0"`
	RetryBackoff time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	w := config.GetWorkerConfig(cfg, TaskType)
	n := cfg.Notifications
	return &Config{
		Timeout:      config.GetDuration(w.Timeout),
		EmailEnabled: n.Email.Enabled,
		FromEmail:    n.Email.FromEmail,
		Recipients:   n.Email.Recipients,
		TopicEnabled: n.Topic.Enabled,
		TopicARN:     n.Topic.ARN,
		DeliveryTTL:  config.GetDuration(cfg.Assignment.ResultTTL),
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
