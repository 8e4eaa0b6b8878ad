// Package config reads the settings of an end-to-end run from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/wanmail/plannerqa"
)

// Scope says how long a browser session lives.
type Scope string

const (
	// ScopeRun shares one session across the whole run.
	ScopeRun Scope = "run"
	// ScopeTest gives every test a fresh session.
	ScopeTest Scope = "test"
)

// Config holds the settings of a run. Keys are the environment variable names
// in lower case.
type Config struct {
	BaseURL       string `mapstructure:"test_base_url"`
	Browser       string `mapstructure:"test_browser"`
	Email         string `mapstructure:"test_email"`
	Password      string `mapstructure:"test_password"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`

	ChromeDriverPath string `mapstructure:"chromedriver_path"`
	EdgeDriverPath   string `mapstructure:"edgedriver_path"`
	SafariDriverPath string `mapstructure:"safaridriver_path"`
	GeckoDriverPath  string `mapstructure:"geckodriver_path"`
	// DriverCache is where downloaded drivers are kept. Empty means the user
	// cache directory.
	DriverCache string `mapstructure:"test_driver_cache"`
	RemoteURL   string `mapstructure:"test_remote_url"`

	Headless     bool          `mapstructure:"test_headless"`
	FrameBuffer  bool          `mapstructure:"test_frame_buffer"`
	Proxy        string        `mapstructure:"test_proxy"`
	SessionScope Scope         `mapstructure:"test_session_scope"`
	ImplicitWait time.Duration `mapstructure:"test_implicit_wait"`
	WaitTimeout  time.Duration `mapstructure:"test_wait_timeout"`
	PollInterval time.Duration `mapstructure:"test_poll_interval"`
}

// SetDefaults registers every key with its default. Keys without a default
// are registered empty so that AutomaticEnv picks them up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("test_base_url", "http://localhost:3000")
	v.SetDefault("test_browser", "chrome")
	v.SetDefault("test_email", "test@example.com")
	v.SetDefault("test_password", "Test1234!@#$")
	v.SetDefault("admin_email", "admin@test.com")
	v.SetDefault("admin_password", "Admin1234!@#$")

	v.SetDefault("chromedriver_path", "")
	v.SetDefault("edgedriver_path", "")
	v.SetDefault("safaridriver_path", "")
	v.SetDefault("geckodriver_path", "")
	v.SetDefault("test_driver_cache", "")
	v.SetDefault("test_remote_url", "")

	v.SetDefault("test_headless", true)
	v.SetDefault("test_frame_buffer", false)
	v.SetDefault("test_proxy", "")
	v.SetDefault("test_session_scope", string(ScopeRun))
	v.SetDefault("test_implicit_wait", plannerqa.DefaultImplicitWait)
	v.SetDefault("test_wait_timeout", plannerqa.DefaultWaitTimeout)
	v.SetDefault("test_poll_interval", plannerqa.DefaultPollInterval)
}

// Load reads the environment, with envFile supplying values the environment
// does not set. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading %s: %w", envFile, err)
			}
		}
	}
	return New(v)
}

// New builds a validated Config from v.
func New(v *viper.Viper) (*Config, error) {
	var cfg Config
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
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("test_base_url %q must be an http or https URL", c.BaseURL))
	}
	if _, err := plannerqa.ParseBackend(c.Browser); err != nil {
		errs = append(errs, err)
	}
	if c.Email == "" || c.Password == "" {
		errs = append(errs, errors.New("test_email and test_password are required"))
	}
	switch c.SessionScope {
	case ScopeRun, ScopeTest:
	default:
		errs = append(errs, fmt.Errorf("test_session_scope %q must be %q or %q", c.SessionScope, ScopeRun, ScopeTest))
	}
	if c.ImplicitWait < 0 {
		errs = append(errs, errors.New("test_implicit_wait must not be negative"))
	}
	if c.WaitTimeout <= 0 {
		errs = append(errs, errors.New("test_wait_timeout must be a positive duration"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("test_poll_interval must be a positive duration"))
	}
	return errors.Join(errs...)
}

// Backend returns the configured browser backend.
func (c *Config) Backend() (plannerqa.Backend, error) {
	return plannerqa.ParseBackend(c.Browser)
}

// DriverPath returns the explicit driver path configured for b, if any.
func (c *Config) DriverPath(b plannerqa.Backend) string {
	switch b {
	case plannerqa.Chrome:
		return c.ChromeDriverPath
	case plannerqa.Edge:
		return c.EdgeDriverPath
	case plannerqa.Safari:
		return c.SafariDriverPath
	case plannerqa.Firefox:
		return c.GeckoDriverPath
	}
	return ""
}

// SessionConfig returns the launch options for b: the backend's defaults with
// the configured overrides applied.
func (c *Config) SessionConfig(b plannerqa.Backend) (plannerqa.SessionConfig, error) {
	sc, err := plannerqa.ConfigFor(b)
	if err != nil {
		return sc, err
	}
	// Safari has no headless mode.
	if b != plannerqa.Safari {
		sc.Headless = c.Headless
	}
	sc.DriverPath = c.DriverPath(b)
	sc.RemoteURL = c.RemoteURL
	sc.FrameBuffer = c.FrameBuffer
	sc.Proxy = c.Proxy
	if c.ImplicitWait > 0 {
		sc.ImplicitWait = c.ImplicitWait
	}
	return sc, nil
}

// WaitPolicy returns the configured waits.
func (c *Config) WaitPolicy() plannerqa.WaitPolicy {
	return plannerqa.WaitPolicy{
		Implicit: c.ImplicitWait,
		Timeout:  c.WaitTimeout,
		Interval: c.PollInterval,
	}
}

// User returns the regular test account.
func (c *Config) User() plannerqa.Credentials {
	return plannerqa.Credentials{Identifier: c.Email, Secret: c.Password}
}

// Admin returns the administrator account.
func (c *Config) Admin() plannerqa.Credentials {
	return plannerqa.Credentials{Identifier: c.AdminEmail, Secret: c.AdminPassword}
}
