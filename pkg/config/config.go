// Package config loads relay configuration from an optional YAML file
// and RELAY_-prefixed environment variables. Nothing here is hardcoded
// at use sites; components receive their settings at construction.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// WebhookConfig configures the delivery client
type WebhookConfig struct {
	URL              string        `mapstructure:"url"`
	AuthToken        string        `mapstructure:"auth_token"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	RetryMultiplier  float64       `mapstructure:"retry_multiplier"`
	RetryJitter      bool          `mapstructure:"retry_jitter"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// MonitoringConfig configures the metrics and alerting service
type MonitoringConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	HistorySize    int           `mapstructure:"history_size"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// VerificationConfig configures the delivery verification service
type VerificationConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	VerifyTimeout     time.Duration `mapstructure:"verify_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	DeploymentTimeout time.Duration `mapstructure:"deployment_timeout"`
	ResultTTL         time.Duration `mapstructure:"result_ttl"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds the complete relay configuration
type Config struct {
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Verification VerificationConfig `mapstructure:"verification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Load reads configuration from the file named by RELAY_CONFIG_FILE
// (default configs/config.yaml; a missing file is not an error) and from
// RELAY_-prefixed environment variables, which take precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("RELAY_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults applies the documented defaults: 15s request timeout, 3
// attempts, failure threshold 5, recovery timeout 30s, monitoring on
func setDefaults(v *viper.Viper) {
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.auth_token", "")
	v.SetDefault("webhook.request_timeout", 15*time.Second)
	v.SetDefault("webhook.retry_attempts", 3)
	v.SetDefault("webhook.retry_base_delay", 1*time.Second)
	v.SetDefault("webhook.retry_max_delay", 30*time.Second)
	v.SetDefault("webhook.retry_multiplier", 2.0)
	v.SetDefault("webhook.retry_jitter", true)
	v.SetDefault("webhook.failure_threshold", 5)
	v.SetDefault("webhook.recovery_timeout", 30*time.Second)

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.history_size", 1000)
	v.SetDefault("monitoring.export_interval", time.Duration(0))

	v.SetDefault("verification.enabled", false)
	v.SetDefault("verification.verify_timeout", 30*time.Second)
	v.SetDefault("verification.poll_interval", 5*time.Second)
	v.SetDefault("verification.deployment_timeout", 5*time.Minute)
	v.SetDefault("verification.result_ttl", 1*time.Hour)

	v.SetDefault("logging.level", "info")
}
