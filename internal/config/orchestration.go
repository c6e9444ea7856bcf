package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Orchestration tunes the background delivery and payout machinery.
// Values come from orchestration.yaml next to the binary (or /etc/boohpay)
// and can be overridden with BOOHPAY_* environment variables.
type Orchestration struct {
	RunInterval      time.Duration `mapstructure:"run_interval"`
	WebhookBatchSize int           `mapstructure:"webhook_batch_size"`
	PayoutBatchSize  int           `mapstructure:"payout_batch_size"`
	PayoutWorkers    int           `mapstructure:"payout_workers"`
	ReapAfter        time.Duration `mapstructure:"reap_after"`
	EnabledJobs      []string      `mapstructure:"enabled_jobs"`

	WebhookMaxAttempts int           `mapstructure:"webhook_max_attempts"`
	WebhookBaseDelay   time.Duration `mapstructure:"webhook_base_delay"`
	WebhookCapDelay    time.Duration `mapstructure:"webhook_cap_delay"`
	WebhookTimeout     time.Duration `mapstructure:"webhook_timeout"`

	PayoutMaxAttempts int           `mapstructure:"payout_max_attempts"`
	PayoutBaseDelay   time.Duration `mapstructure:"payout_base_delay"`
	PayoutCapDelay    time.Duration `mapstructure:"payout_cap_delay"`
	PayoutTimeout     time.Duration `mapstructure:"payout_timeout"`

	SucceededRetention time.Duration `mapstructure:"succeeded_retention"`
	FailedRetention    time.Duration `mapstructure:"failed_retention"`
}

func DefaultOrchestration() Orchestration {
	return Orchestration{
		RunInterval:      30 * time.Second,
		WebhookBatchSize: 50,
		PayoutBatchSize:  25,
		PayoutWorkers:    4,
		ReapAfter:        10 * time.Minute,

		WebhookMaxAttempts: 5,
		WebhookBaseDelay:   time.Second,
		WebhookCapDelay:    60 * time.Second,
		WebhookTimeout:     10 * time.Second,

		PayoutMaxAttempts: 5,
		PayoutBaseDelay:   5 * time.Second,
		PayoutCapDelay:    60 * time.Second,
		PayoutTimeout:     30 * time.Second,

		SucceededRetention: 24 * time.Hour,
		FailedRetention:    7 * 24 * time.Hour,
	}
}

// LoadOrchestration reads orchestration.yaml, falling back to defaults when
// the file is absent.
func LoadOrchestration() (Orchestration, error) {
	v := viper.New()
	v.SetConfigName("orchestration")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/boohpay")
	v.SetEnvPrefix("boohpay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultOrchestration()
	v.SetDefault("run_interval", defaults.RunInterval)
	v.SetDefault("webhook_batch_size", defaults.WebhookBatchSize)
	v.SetDefault("payout_batch_size", defaults.PayoutBatchSize)
	v.SetDefault("payout_workers", defaults.PayoutWorkers)
	v.SetDefault("reap_after", defaults.ReapAfter)
	v.SetDefault("webhook_max_attempts", defaults.WebhookMaxAttempts)
	v.SetDefault("webhook_base_delay", defaults.WebhookBaseDelay)
	v.SetDefault("webhook_cap_delay", defaults.WebhookCapDelay)
	v.SetDefault("webhook_timeout", defaults.WebhookTimeout)
	v.SetDefault("payout_max_attempts", defaults.PayoutMaxAttempts)
	v.SetDefault("payout_base_delay", defaults.PayoutBaseDelay)
	v.SetDefault("payout_cap_delay", defaults.PayoutCapDelay)
	v.SetDefault("payout_timeout", defaults.PayoutTimeout)
	v.SetDefault("succeeded_retention", defaults.SucceededRetention)
	v.SetDefault("failed_retention", defaults.FailedRetention)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Orchestration{}, err
		}
	}

	var cfg Orchestration
	if err := v.Unmarshal(&cfg); err != nil {
		return Orchestration{}, err
	}
	return cfg.withDefaults(), nil
}

func (c Orchestration) withDefaults() Orchestration {
	defaults := DefaultOrchestration()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.WebhookBatchSize <= 0 {
		c.WebhookBatchSize = defaults.WebhookBatchSize
	}
	if c.PayoutBatchSize <= 0 {
		c.PayoutBatchSize = defaults.PayoutBatchSize
	}
	if c.PayoutWorkers <= 0 {
		c.PayoutWorkers = defaults.PayoutWorkers
	}
	if c.ReapAfter <= 0 {
		c.ReapAfter = defaults.ReapAfter
	}
	if c.WebhookMaxAttempts <= 0 {
		c.WebhookMaxAttempts = defaults.WebhookMaxAttempts
	}
	if c.WebhookBaseDelay <= 0 {
		c.WebhookBaseDelay = defaults.WebhookBaseDelay
	}
	if c.WebhookCapDelay <= 0 {
		c.WebhookCapDelay = defaults.WebhookCapDelay
	}
	if c.WebhookTimeout <= 0 {
		c.WebhookTimeout = defaults.WebhookTimeout
	}
	if c.PayoutMaxAttempts <= 0 {
		c.PayoutMaxAttempts = defaults.PayoutMaxAttempts
	}
	if c.PayoutBaseDelay <= 0 {
		c.PayoutBaseDelay = defaults.PayoutBaseDelay
	}
	if c.PayoutCapDelay <= 0 {
		c.PayoutCapDelay = defaults.PayoutCapDelay
	}
	if c.PayoutTimeout <= 0 {
		c.PayoutTimeout = defaults.PayoutTimeout
	}
	if c.SucceededRetention <= 0 {
		c.SucceededRetention = defaults.SucceededRetention
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = defaults.FailedRetention
	}
	return c
}
