// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LLMProvider identifies a supported model backend.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// PlatformConfig describes the ad platform under test and the account used
// to exercise it. Credentials are bound to environment variables, never the
// config file.
type PlatformConfig struct {
	Environment string            `mapstructure:"environment" yaml:"environment"`
	BaseURLs    map[string]string `mapstructure:"base_urls" yaml:"base_urls"`
	// FixturesDir holds the image assets creative-upload flows feed into the
	// platform's file inputs.
	FixturesDir string `mapstructure:"fixtures_dir" yaml:"fixtures_dir"`
	Email       string `mapstructure:"email" yaml:"-"`
	Password    string `mapstructure:"password" yaml:"-"`
}

// BaseURL returns the root URL for the configured environment.
func (p PlatformConfig) BaseURL() string {
	return p.BaseURLs[p.Environment]
}

func (p PlatformConfig) LoginURL() string        { return p.BaseURL() + "/login" }
func (p PlatformConfig) RegistrationURL() string { return p.BaseURL() + "/register" }
func (p PlatformConfig) CampaignURL() string     { return p.BaseURL() + "/campaign" }
func (p PlatformConfig) CreativeURL() string     { return p.BaseURL() + "/creative-library" }
func (p PlatformConfig) AudienceURL() string     { return p.BaseURL() + "/audience" }
func (p PlatformConfig) AnalyticsURL() string    { return p.BaseURL() + "/analytics" }

// LLMConfig defines the configuration for the selected model backend.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Vision overrides the built-in capability table for models the table
	// does not know about. Nil means "consult the table".
	Vision *bool `mapstructure:"vision" yaml:"vision"`
	// ParseRetries bounds how often a malformed backend response is re-asked
	// before the gateway gives up.
	ParseRetries      int     `mapstructure:"parse_retries" yaml:"parse_retries"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	RequestBurst      int     `mapstructure:"request_burst" yaml:"request_burst"`
}

// MailboxConfig holds IMAP access parameters for verification-code retrieval.
// The poller only ever reads; AppPassword is bound to an environment variable.
type MailboxConfig struct {
	Server       string        `mapstructure:"server" yaml:"server"`
	Address      string        `mapstructure:"address" yaml:"address"`
	AppPassword  string        `mapstructure:"app_password" yaml:"-"`
	SenderFilter string        `mapstructure:"sender_filter" yaml:"sender_filter"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	DialRetries  int           `mapstructure:"dial_retries" yaml:"dial_retries"`
}

// Configured reports whether mailbox access is usable. Registration flows are
// skipped when it is not.
func (m MailboxConfig) Configured() bool {
	return m.Address != "" && m.AppPassword != ""
}

// AgentConfig holds the run budgets and loop tuning for the control loop.
type AgentConfig struct {
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxDuration        time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	RepeatFailureLimit int           `mapstructure:"repeat_failure_limit" yaml:"repeat_failure_limit"`
	TranscriptWindow   int           `mapstructure:"transcript_window" yaml:"transcript_window"`
}

// BrowserConfig holds settings for the headless browser sessions.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "adwatch")
	v.SetDefault("logger.log_file", "adwatch.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Platform --
	v.SetDefault("platform.environment", "production")
	v.SetDefault("platform.base_urls", map[string]string{
		"production": "https://adwave.revosurge.com",
	})
	v.SetDefault("platform.fixtures_dir", "fixtures")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.parse_retries", 2)
	v.SetDefault("llm.requests_per_minute", 30.0)
	v.SetDefault("llm.request_burst", 3)

	// -- Mailbox --
	v.SetDefault("mailbox.server", "imap.gmail.com:993")
	v.SetDefault("mailbox.sender_filter", "revosurge")
	v.SetDefault("mailbox.poll_interval", "5s")
	v.SetDefault("mailbox.wait_timeout", "120s")
	v.SetDefault("mailbox.dial_retries", 3)

	// -- Agent --
	v.SetDefault("agent.max_steps", 25)
	v.SetDefault("agent.max_duration", "10m")
	v.SetDefault("agent.repeat_failure_limit", 3)
	v.SetDefault("agent.transcript_window", 10)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)
}

// NewConfigFromViper creates a validated configuration instance from a viper
// object. Secrets come from the environment, never from the config file.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("platform.email", "ADWATCH_EMAIL")
	v.BindEnv("platform.password", "ADWATCH_PASSWORD")
	v.BindEnv("llm.api_key", "ADWATCH_LLM_API_KEY")
	v.BindEnv("mailbox.address", "ADWATCH_MAILBOX_ADDRESS")
	v.BindEnv("mailbox.app_password", "ADWATCH_MAILBOX_APP_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
// Intended for tests; Validate is skipped because secrets are absent.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Platform.BaseURL() == "" {
		return fmt.Errorf("platform environment %q has no base URL configured", c.Platform.Environment)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported llm provider: %q (supported: %s, %s, %s)",
			c.LLM.Provider, ProviderGemini, ProviderOpenAI, ProviderAnthropic)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.ParseRetries < 0 {
		return fmt.Errorf("llm.parse_retries must not be negative")
	}
	if c.LLM.RequestsPerMinute <= 0 {
		return fmt.Errorf("llm.requests_per_minute must be positive")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.MaxDuration <= 0 {
		return fmt.Errorf("agent.max_duration must be a positive duration")
	}
	if c.Agent.RepeatFailureLimit <= 0 {
		return fmt.Errorf("agent.repeat_failure_limit must be a positive integer")
	}
	if c.Mailbox.PollInterval <= 0 {
		return fmt.Errorf("mailbox.poll_interval must be a positive duration")
	}
	if c.Mailbox.Configured() && !strings.Contains(c.Mailbox.Address, "@") {
		return fmt.Errorf("mailbox.address %q is not an email address", c.Mailbox.Address)
	}
	return nil
}
