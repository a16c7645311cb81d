// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Mailbox() MailboxConfig
	Funnel() FunnelConfig
	Records() RecordsConfig
	Database() DatabaseConfig

	// Browser setters
	SetBrowserHeadless(bool)

	// Funnel setters
	SetFunnelSignupURL(string)

	// Mailbox setters
	SetMailboxDomainPreference(string)
	SetMailboxSessionFile(string)

	// Records setters
	SetRecordsFile(string)
}

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal into them; access from other packages goes through the
// Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	NetworkCfg  NetworkConfig  `mapstructure:"network" yaml:"network"`
	MailboxCfg  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	FunnelCfg   FunnelConfig   `mapstructure:"funnel" yaml:"funnel"`
	RecordsCfg  RecordsConfig  `mapstructure:"records" yaml:"records"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig   { return c.NetworkCfg }
func (c *Config) Mailbox() MailboxConfig   { return c.MailboxCfg }
func (c *Config) Funnel() FunnelConfig     { return c.FunnelCfg }
func (c *Config) Records() RecordsConfig   { return c.RecordsCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)           { c.BrowserCfg.Headless = b }
func (c *Config) SetFunnelSignupURL(u string)         { c.FunnelCfg.SignupURL = u }
func (c *Config) SetMailboxDomainPreference(s string) { c.MailboxCfg.DomainPreference = s }
func (c *Config) SetMailboxSessionFile(p string)      { c.MailboxCfg.SessionFile = p }
func (c *Config) SetRecordsFile(p string)             { c.RecordsCfg.File = p }

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

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NoSandbox         bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleWait        time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`

	// Args holds extra chromium flags, either bare ("--no-zygote") or
	// key=value pairs.
	Args []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes the plain HTTP side of the application (the mailbox API).
type NetworkConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// MailboxConfig configures the disposable-mailbox provider client.
type MailboxConfig struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	AuthToken        string        `mapstructure:"auth_token" yaml:"-"`
	DomainPreference string        `mapstructure:"domain_preference" yaml:"domain_preference"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	SessionFile      string        `mapstructure:"session_file" yaml:"session_file"`
	RateLimit        float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// FunnelConfig configures the registration flow itself.
type FunnelConfig struct {
	SignupURL          string        `mapstructure:"signup_url" yaml:"signup_url"`
	PasswordLength     int           `mapstructure:"password_length" yaml:"password_length"`
	VerificationRounds int           `mapstructure:"verification_rounds" yaml:"verification_rounds"`
	ResendEnabled      bool          `mapstructure:"resend_enabled" yaml:"resend_enabled"`
	CookieConsent      bool          `mapstructure:"cookie_consent" yaml:"cookie_consent"`
	NotifyOperator     bool          `mapstructure:"notify_operator" yaml:"notify_operator"`
	TransitionWait     time.Duration `mapstructure:"transition_wait" yaml:"transition_wait"`
	SuccessURLPatterns []string      `mapstructure:"success_url_patterns" yaml:"success_url_patterns"`
}

// RecordsConfig configures the registration-record journal.
type RecordsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// DatabaseConfig holds the optional record-archive connection details.
// An empty URL disables the archive entirely.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "enroll-cli")
	v.SetDefault("logger.log_file", "enroll.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.settle_wait", "1500ms")
	v.SetDefault("browser.debug", false)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.retry_backoff", "2s")

	// -- Mailbox --
	v.SetDefault("mailbox.base_url", "https://dropmail.me/api/graphql")
	v.SetDefault("mailbox.domain_preference", "")
	v.SetDefault("mailbox.poll_interval", "5s")
	v.SetDefault("mailbox.wait_timeout", "5m")
	v.SetDefault("mailbox.session_file", "")
	v.SetDefault("mailbox.rate_limit", 2.0)

	// -- Funnel --
	v.SetDefault("funnel.signup_url", "")
	v.SetDefault("funnel.password_length", 12)
	v.SetDefault("funnel.verification_rounds", 3)
	v.SetDefault("funnel.resend_enabled", true)
	v.SetDefault("funnel.cookie_consent", true)
	v.SetDefault("funnel.notify_operator", true)
	v.SetDefault("funnel.transition_wait", "10s")
	v.SetDefault("funnel.success_url_patterns", []string{
		"dashboard", "console", "welcome", "success", "complete", "view.awsapps.com",
	})

	// -- Records --
	v.SetDefault("records.file", "registrations.csv")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("mailbox.auth_token", "ENROLL_MAILBOX_TOKEN")
	v.BindEnv("database.url", "ENROLL_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.NetworkCfg.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.NetworkCfg.MaxRetries < 1 {
		return fmt.Errorf("network.max_retries must be at least 1")
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.MailboxCfg.Validate(); err != nil {
		return fmt.Errorf("mailbox configuration invalid: %w", err)
	}
	if err := c.FunnelCfg.Validate(); err != nil {
		return fmt.Errorf("funnel configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if b.WindowWidth <= 0 || b.WindowHeight <= 0 {
		return fmt.Errorf("window dimensions must be positive")
	}
	return nil
}

// Validate checks the mailbox settings.
func (m *MailboxConfig) Validate() error {
	if m.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(m.BaseURL, "http://") && !strings.HasPrefix(m.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL")
	}
	if m.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if m.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be a positive duration")
	}
	if m.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be greater than 0")
	}
	return nil
}

// Validate checks the funnel settings. SignupURL stays optional here; the
// register command requires it at invocation time instead, so maintenance
// commands work without one.
func (f *FunnelConfig) Validate() error {
	if f.PasswordLength < 8 {
		return fmt.Errorf("password_length must be at least 8")
	}
	if f.VerificationRounds < 1 {
		return fmt.Errorf("verification_rounds must be at least 1")
	}
	if f.TransitionWait <= 0 {
		return fmt.Errorf("transition_wait must be a positive duration")
	}
	return nil
}
