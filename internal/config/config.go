// Package config loads runtime configuration from a YAML file and
// MNEMO_-prefixed environment variables, env taking precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mnemo/internal/observability"
)

// Config is the full runtime configuration.
type Config struct {
	Telegram      TelegramConfig              `mapstructure:"telegram"`
	Providers     ProvidersConfig             `mapstructure:"providers"`
	StateFile     string                      `mapstructure:"state_file"`
	Consolidation ConsolidationConfig         `mapstructure:"consolidation"`
	Metrics       observability.MetricsConfig `mapstructure:"metrics"`
}

// TelegramConfig configures the long-poll transport.
type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// ProvidersConfig holds the per-provider connection settings.
type ProvidersConfig struct {
	Gemini ProviderConfig `mapstructure:"gemini"`
	OpenAI ProviderConfig `mapstructure:"openai"`
}

// ProviderConfig is one provider's connection block.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConsolidationConfig tunes the memory consolidator.
type ConsolidationConfig struct {
	Threshold int `mapstructure:"threshold"`
}

// Load reads configuration. path may be empty, in which case the default
// search locations are used and a missing file is fine — environment
// variables can carry everything.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("telegram.poll_timeout", 30*time.Second)
	v.SetDefault("providers.gemini.model", "gemini-2.5-flash")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("state_file", "mnemo-state.json")
	v.SetDefault("consolidation.threshold", 30)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.prometheus_port", 9090)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mnemo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mnemo")
	}

	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or MNEMO_TELEGRAM_TOKEN)")
	}
	if strings.TrimSpace(c.Providers.Gemini.APIKey) == "" &&
		strings.TrimSpace(c.Providers.OpenAI.APIKey) == "" {
		return fmt.Errorf("at least one provider API key is required")
	}
	if c.Consolidation.Threshold < 0 {
		return fmt.Errorf("consolidation.threshold must not be negative")
	}
	return nil
}
