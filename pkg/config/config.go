// Package config loads scout's configuration from defaults, an optional
// scout.yaml file and SCOUT_* environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Supported browser backends.
const (
	BrowserPlaywright = "playwright"
	BrowserChromedp   = "chromedp"
	BrowserHTTP       = "http"
)

// ErrMissingAPIKey is returned by Validate when no model API key is configured.
var ErrMissingAPIKey = errors.New("model provider API key is required (set llm.api_key, SCOUT_LLM_API_KEY or the provider's own variable)")

// Config is the complete, validated configuration of a scout process.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	MaxRetries  int     `mapstructure:"max_retries" yaml:"max_retries"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxSteps     int    `mapstructure:"max_steps" yaml:"max_steps"`
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// BrowserConfig configures the browser controller.
type BrowserConfig struct {
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ContentLimit      int           `mapstructure:"content_limit" yaml:"content_limit"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
}

// SandboxConfig configures the filesystem sandbox.
type SandboxConfig struct {
	// Root is an optional working directory selected at startup.
	Root         string   `mapstructure:"root" yaml:"root"`
	DenyPatterns []string `mapstructure:"deny_patterns" yaml:"deny_patterns"`
	MaxFileSize  int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// ServerConfig configures the HTTP/websocket bridge.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
}

// TracingConfig toggles OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SetDefaults registers every key on v. Keys without a meaningful default
// are registered empty so SCOUT_* variables can still set them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("agent.max_steps", 15)
	v.SetDefault("agent.system_prompt", "")

	v.SetDefault("browser.backend", BrowserPlaywright)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.content_limit", 2000)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.user_agent", "")

	v.SetDefault("sandbox.root", "")
	v.SetDefault("sandbox.max_file_size", 1<<20)
	v.SetDefault("sandbox.deny_patterns", []string{".git", ".git/**", ".env", "**/.env"})

	v.SetDefault("server.addr", "127.0.0.1:7420")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "scout")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("tracing.enabled", false)
}

// NewViper returns a viper instance with defaults, the SCOUT env prefix and,
// when found, the config file loaded. An empty path searches ./scout.yaml and
// ~/.scout/scout.yaml.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.scout")
		}
	}

	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load unmarshals the configuration held by v and fills provider settings
// from their conventional environment variables. It does not validate.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == ProviderOpenAI {
		cfg.LLM.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	return &cfg, nil
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case ProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	switch c.Browser.Backend {
	case BrowserPlaywright, BrowserChromedp, BrowserHTTP:
	default:
		return fmt.Errorf("unknown browser.backend %q", c.Browser.Backend)
	}
	if c.Browser.ContentLimit <= 0 {
		return fmt.Errorf("browser.content_limit must be positive, got %d", c.Browser.ContentLimit)
	}
	if c.Sandbox.MaxFileSize <= 0 {
		return fmt.Errorf("sandbox.max_file_size must be positive, got %d", c.Sandbox.MaxFileSize)
	}
	return nil
}

// Redacted returns a copy safe to print, with secrets masked.
func (c Config) Redacted() Config {
	if c.LLM.APIKey != "" {
		key := c.LLM.APIKey
		if len(key) > 8 {
			c.LLM.APIKey = key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
		} else {
			c.LLM.APIKey = strings.Repeat("*", len(key))
		}
	}
	return c
}
