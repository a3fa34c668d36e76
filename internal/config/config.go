package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the inboxpilot service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Planner PlannerConfig `mapstructure:"planner"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Gmail   GmailConfig   `mapstructure:"gmail"`
	GitHub  GitHubConfig  `mapstructure:"github"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig contains settings for the dedicated metrics listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// PlannerConfig bounds the planning loop and step execution.
type PlannerConfig struct {
	// MaxRounds is the maximum number of planning rounds per query.
	// When the bound is reached the orchestrator forces synthesis from
	// whatever step results exist.
	MaxRounds int `mapstructure:"max_rounds"`

	// RoundTimeout bounds a single language model call.
	RoundTimeout time.Duration `mapstructure:"round_timeout"`

	// StepTimeout bounds a single adapter call.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// RetryBackoff is the initial backoff before the single retry of a
	// rate-limited or transient upstream failure.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// GmailConfig configures the mailbox adapter. The refresh token is
// obtained once out of band; the adapter refreshes access tokens itself.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	Account      string `mapstructure:"account"`
}

// GitHubConfig configures the repository-hosting adapter.
type GitHubConfig struct {
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
}

// Load reads configuration from an optional config file, environment
// variables (prefix INBOXPILOT_, dots replaced by underscores) and
// built-in defaults, in ascending precedence of defaults < file < env.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("INBOXPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials are commonly provided through their conventional
	// variable names rather than the prefixed form.
	bindAliases(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/inboxpilot")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", true)

	v.SetDefault("planner.max_rounds", 3)
	v.SetDefault("planner.round_timeout", 60*time.Second)
	v.SetDefault("planner.step_timeout", 30*time.Second)
	v.SetDefault("planner.retry_backoff", 2*time.Second)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 2000)

	v.SetDefault("gmail.account", "me")
}

func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("llm.api_key", "INBOXPILOT_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("github.token", "INBOXPILOT_GITHUB_TOKEN", "GITHUB_ACCESS_TOKEN")
	_ = v.BindEnv("github.username", "INBOXPILOT_GITHUB_USERNAME", "GITHUB_USERNAME")
	_ = v.BindEnv("gmail.client_id", "INBOXPILOT_GMAIL_CLIENT_ID", "GMAIL_CLIENT_ID")
	_ = v.BindEnv("gmail.client_secret", "INBOXPILOT_GMAIL_CLIENT_SECRET", "GMAIL_CLIENT_SECRET")
	_ = v.BindEnv("gmail.refresh_token", "INBOXPILOT_GMAIL_REFRESH_TOKEN", "GMAIL_REFRESH_TOKEN")
	_ = v.BindEnv("gmail.account", "INBOXPILOT_GMAIL_ACCOUNT", "GMAIL_USER_EMAIL")
}

// ServiceReadiness reports which upstream services have complete
// credentials. It backs the services-status endpoint's "configured"
// dimension and startup warnings; it does not talk to the network.
type ServiceReadiness struct {
	Gmail  bool
	GitHub bool
	LLM    bool
}

// Readiness checks credential completeness per service.
func (c *Config) Readiness() ServiceReadiness {
	return ServiceReadiness{
		Gmail:  c.Gmail.ClientID != "" && c.Gmail.ClientSecret != "" && c.Gmail.RefreshToken != "",
		GitHub: c.GitHub.Token != "",
		LLM:    c.LLM.APIKey != "",
	}
}

// Validate checks bounds that would otherwise cause surprising runtime
// behavior. Credential completeness is intentionally not an error: the
// service starts degraded and reports per-service status instead.
func (c *Config) Validate() error {
	if c.Planner.MaxRounds < 1 {
		return fmt.Errorf("planner.max_rounds must be at least 1, got %d", c.Planner.MaxRounds)
	}
	if c.Planner.StepTimeout <= 0 {
		return fmt.Errorf("planner.step_timeout must be positive, got %v", c.Planner.StepTimeout)
	}
	if c.Planner.RoundTimeout <= 0 {
		return fmt.Errorf("planner.round_timeout must be positive, got %v", c.Planner.RoundTimeout)
	}
	return nil
}
