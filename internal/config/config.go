// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Site    SiteConfig    `mapstructure:"site" yaml:"site"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SiteConfig describes the target document repository and the discovery limits
// applied when walking it.
type SiteConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// LibraryPath is the optional starting library. When empty the connector
	// auto-detects a default library by probing DefaultLibraries in order.
	LibraryPath      string   `mapstructure:"library_path" yaml:"library_path"`
	Recursive        bool     `mapstructure:"recursive" yaml:"recursive"`
	MaxFiles         int      `mapstructure:"max_files" yaml:"max_files"`
	MaxDepth         int      `mapstructure:"max_depth" yaml:"max_depth"`
	PageSize         int      `mapstructure:"page_size" yaml:"page_size"`
	Extensions       []string `mapstructure:"extensions" yaml:"extensions"`
	DefaultLibraries []string `mapstructure:"default_libraries" yaml:"default_libraries"`
	SystemFolders    []string `mapstructure:"system_folders" yaml:"system_folders"`
}

// AuthConfig holds the credential strategy configuration.
type AuthConfig struct {
	// Username and Password feed the legacy NTLM strategy and, when a keytab
	// is not available, the Kerberos login.
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	Domain   string `mapstructure:"domain" yaml:"domain"`

	// Kerberos material. CCachePath defaults to $KRB5CCNAME when empty.
	Krb5ConfPath string `mapstructure:"krb5_conf_path" yaml:"krb5_conf_path"`
	CCachePath   string `mapstructure:"ccache_path" yaml:"ccache_path"`
	KeytabPath   string `mapstructure:"keytab_path" yaml:"keytab_path"`

	OAuth OAuthConfig `mapstructure:"oauth" yaml:"oauth"`
}

// OAuthConfig configures the device-code and client-credential fallbacks.
type OAuthConfig struct {
	ClientID      string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret" yaml:"-"`
	TokenURL      string   `mapstructure:"token_url" yaml:"token_url"`
	DeviceAuthURL string   `mapstructure:"device_auth_url" yaml:"device_auth_url"`
	Scopes        []string `mapstructure:"scopes" yaml:"scopes"`
}

// NetworkConfig tunes request execution against the repository.
type NetworkConfig struct {
	// Timeout is the per-request deadline. Always enforced; no operation
	// blocks indefinitely.
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryBackoff is the linear backoff unit between fatal retry attempts.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	// ThrottleBackoff is applied to a 429 that carries no Retry-After header.
	ThrottleBackoff time.Duration `mapstructure:"throttle_backoff" yaml:"throttle_backoff"`
	// RequestsPerSecond paces discovery requests to stay under server-side
	// throttling. Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	// ProxyURL routes all traffic through an explicit forward proxy. Empty
	// falls back to the standard proxy environment variables.
	ProxyURL string `mapstructure:"proxy_url" yaml:"proxy_url"`
}

// BrowserConfig holds settings for the headless browser authentication fallback.
type BrowserConfig struct {
	// Channels is the preferred browser binary order. Full desktop channels
	// come first; minimal headless-only binaries lack native credential
	// negotiation support.
	Channels []string `mapstructure:"channels" yaml:"channels"`
	// IdentityDomains is the identity-provider allow-list passed to the
	// browser at launch. Redirects to undeclared domains are blocked.
	IdentityDomains []string `mapstructure:"identity_domains" yaml:"identity_domains"`
	// ProfileDir is the persistent profile directory. When empty a directory
	// under the user cache dir is created and reused across runs.
	ProfileDir string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	Headless   bool          `mapstructure:"headless" yaml:"headless"`
	AuthWait   time.Duration `mapstructure:"auth_wait" yaml:"auth_wait"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aegis")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Site --
	v.SetDefault("site.recursive", true)
	v.SetDefault("site.max_files", 500)
	v.SetDefault("site.max_depth", 10)
	v.SetDefault("site.page_size", 200)
	v.SetDefault("site.extensions", []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"})
	v.SetDefault("site.default_libraries", []string{"Shared Documents", "Documents"})
	v.SetDefault("site.system_folders", []string{"Forms", "_catalogs", "_private", "Style Library", "SiteAssets"})

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.retry_backoff", "2s")
	v.SetDefault("network.throttle_backoff", "5s")
	v.SetDefault("network.requests_per_second", 0.0)
	v.SetDefault("network.proxy_url", "")

	// -- Browser --
	v.SetDefault("browser.channels", []string{"chrome", "msedge", "chromium"})
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.auth_wait", "90s")
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

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("auth.password", "AEGIS_AUTH_PASSWORD")
	v.BindEnv("auth.oauth.client_secret", "AEGIS_OAUTH_CLIENT_SECRET")

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
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("network.max_retries must not be negative")
	}
	if c.Site.MaxDepth <= 0 {
		return fmt.Errorf("site.max_depth must be a positive integer")
	}
	if c.Site.MaxFiles <= 0 {
		return fmt.Errorf("site.max_files must be a positive integer")
	}
	if c.Site.URL != "" && !strings.HasPrefix(c.Site.URL, "http") {
		return fmt.Errorf("site.url must be an absolute http(s) URL")
	}
	for _, ext := range c.Site.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("site.extensions entries must start with a dot: %q", ext)
		}
	}
	return nil
}
