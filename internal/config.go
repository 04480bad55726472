package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pfdl/internal/index"
	"github.com/starford/pfdl/internal/loader"
	"github.com/starford/pfdl/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Roots   []string          `yaml:"roots"`
	Check   CheckConfig       `yaml:"check"`
	Storage storage.Config    `yaml:",inline"`
	Index   IndexConfig       `yaml:"index"`
	Auth    AuthConfig        `yaml:"auth"`
	Watch   WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Check.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// StorageConfig returns the backend configuration with the check's content
// limit applied.
func (c *Config) StorageConfig() storage.Config {
	sc := c.Storage
	sc.ContentLimit = c.Check.ContentLimitBytes
	return sc
}

// NewLoader builds a loader over roots using the check and storage settings.
func (c *Config) NewLoader(roots []string, logger *slog.Logger) *loader.Loader {
	return loader.New(roots,
		loader.WithConcurrency(c.Check.Concurrency),
		loader.WithStorageConfig(c.StorageConfig()),
		loader.WithCompanionSuffixes(c.Check.CompanionSuffixes...),
		loader.WithLogger(logger),
	)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

var suffixPattern = regexp.MustCompile(`^\.[A-Za-z0-9._-]+$`)

// CheckConfig tunes how roots are read and checked. SkipDocuments limits
// serve and MCP checks to the batch structure.
type CheckConfig struct {
	Concurrency       int      `yaml:"concurrency"`
	ContentLimitBytes int64    `yaml:"content_limit_bytes"`
	CompanionSuffixes []string `yaml:"companion_suffixes"`
	SkipDocuments     bool     `yaml:"skip_documents"`
}

// Validate validates the check configuration.
func (c *CheckConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.ContentLimitBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.CompanionSuffixes, validation.Each(validation.Match(suffixPattern))),
	)
}

// IndexConfig holds the SQLite artifact index configuration.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// WatchConfig controls re-checking when local roots change in serve mode.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Check: CheckConfig{
			Concurrency:       loader.DefaultConcurrency,
			ContentLimitBytes: storage.DefaultContentLimit,
			CompanionSuffixes: append([]string(nil), loader.DefaultCompanionSuffixes...),
		},
		Storage: storage.Config{
			S3: storage.S3Config{Region: "ap-southeast-2"},
		},
		Index: IndexConfig{
			Path: "./pfdl.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: index.DefaultDebounce,
		},
	}
}
