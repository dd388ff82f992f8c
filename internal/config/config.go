// Package config loads settings from an optional YAML file and SQLSNIP_*
// environment variables over built-in defaults.
//
// PRECEDENCE (lowest to highest):
//
//	defaults → config file → environment → command-line flags
//
// Flags are applied by the caller after Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	"github.com/sakif/sql-snippets/internal/autosave"
	"github.com/sakif/sql-snippets/internal/editor"
	"github.com/sakif/sql-snippets/internal/format"
	"github.com/sakif/sql-snippets/internal/repository/memory"
)

// EnvPrefix is prepended to every environment key: storage.dbPath is read
// from SQLSNIP_STORAGE_DBPATH.
const EnvPrefix = "SQLSNIP"

// FileName is the config file searched for when no path is given.
const FileName = "sqlsnip"

type ServerConfig struct {
	Host         string `mapstructure:"host" validate:"required"`
	Port         int    `mapstructure:"port" validate:"required|int|min:1|max:65535"`
	SecureCookie bool   `mapstructure:"secureCookie"`
}

type StorageConfig struct {
	DBPath     string `mapstructure:"dbPath" validate:"required"`
	QuotaBytes int64  `mapstructure:"quotaBytes" validate:"int|min:0"`
	// Ephemeral keeps everything in memory and discards it on exit.
	Ephemeral bool `mapstructure:"ephemeral"`
}

type AutosaveConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	BackupInterval time.Duration `mapstructure:"backupInterval"`
}

type EditorConfig struct {
	Theme string `mapstructure:"theme" validate:"required|in:default,dark"`
}

type FormatConfig struct {
	CacheSizeMB int `mapstructure:"cacheSizeMB" validate:"int|min:0"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:debug,info,warn,error"`
	Format string `mapstructure:"format" validate:"required|in:text,json"`
	Color  bool   `mapstructure:"color"`
}

type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwtSecret" validate:"minLen:16"`
	GitHubClientID     string `mapstructure:"githubClientId"`
	GitHubClientSecret string `mapstructure:"githubClientSecret"`
	GitHubCallbackURL  string `mapstructure:"githubCallbackUrl"`
}

type BillingConfig struct {
	StripeSecretKey     string `mapstructure:"stripeSecretKey"`
	StripePriceID       string `mapstructure:"stripePriceId"`
	StripeWebhookSecret string `mapstructure:"stripeWebhookSecret"`
	ReturnURL           string `mapstructure:"returnUrl"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the decoded, validated configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Format   FormatConfig   `mapstructure:"format"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	// Path is the config file that was read, or "" when none was found.
	Path string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.secureCookie", false)

	v.SetDefault("storage.dbPath", filepath.Join("data", "snippets.db"))
	v.SetDefault("storage.quotaBytes", memory.DefaultQuota)
	v.SetDefault("storage.ephemeral", false)

	v.SetDefault("autosave.debounce", autosave.DefaultDebounce)
	v.SetDefault("autosave.backupInterval", autosave.DefaultBackupInterval)

	v.SetDefault("editor.theme", string(editor.ThemeDefault))
	v.SetDefault("format.cacheSizeMB", format.DefaultCacheBytes/(1024*1024))

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.color", true)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.githubClientId", "")
	v.SetDefault("auth.githubClientSecret", "")
	v.SetDefault("auth.githubCallbackUrl", "")

	v.SetDefault("billing.stripeSecretKey", "")
	v.SetDefault("billing.stripePriceId", "")
	v.SetDefault("billing.stripeWebhookSecret", "")
	v.SetDefault("billing.returnUrl", "")

	v.SetDefault("metrics.enabled", false)
}

// Load reads path, or searches the working directory and the user config
// directory for sqlsnip.yaml when path is empty. A missing file is only an
// error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "sqlsnip"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode into config struct: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and the rules that span fields.
func (c *Config) Validate() error {
	sections := []struct {
		name  string
		value any
	}{
		{"server", &c.Server},
		{"storage", &c.Storage},
		{"editor", &c.Editor},
		{"format", &c.Format},
		{"logger", &c.Logger},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		v := validate.Struct(s.value)
		if !v.Validate() {
			return fmt.Errorf("config: %s: %s", s.name, v.Errors.One())
		}
	}

	if c.Autosave.Debounce < 0 || c.Autosave.BackupInterval < 0 {
		return errors.New("config: autosave: delays must not be negative")
	}
	if c.Billing.StripeSecretKey != "" && c.Billing.StripeWebhookSecret == "" {
		return errors.New("config: billing: stripeWebhookSecret is required when stripeSecretKey is set")
	}
	return nil
}

// AuthEnabled reports whether GitHub login can be offered.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != "" && c.Auth.GitHubClientID != "" && c.Auth.GitHubClientSecret != ""
}

// BillingEnabled reports whether checkout can be offered. Billing needs
// accounts.
func (c *Config) BillingEnabled() bool {
	return c.AuthEnabled() && c.Billing.StripeSecretKey != ""
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CallbackURL is the OAuth redirect URI, derived from the listen address
// when not configured.
func (c *Config) CallbackURL() string {
	if c.Auth.GitHubCallbackURL != "" {
		return c.Auth.GitHubCallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
}
