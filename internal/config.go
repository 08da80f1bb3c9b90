package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/session"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Storefront StorefrontConfig  `yaml:"storefront"`
	Session    SessionConfig     `yaml:"session"`
	Notify     NotifyConfig      `yaml:"notify"`
	Auth       AuthConfig        `yaml:"auth"`
	Mockstore  MockstoreConfig   `yaml:"mockstore"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Storefront.Validate(); err != nil {
		return fmt.Errorf("storefront: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := c.Mockstore.Validate(); err != nil {
		return fmt.Errorf("mockstore: %w", err)
	}
	return c.Auth.Validate()
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

// StorefrontConfig locates the storefront and bounds outbound traffic.
type StorefrontConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `yaml:"burst"`
}

// Validate validates the storefront configuration.
func (c *StorefrontConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// SessionConfig holds the login state and redirect policy.
type SessionConfig struct {
	StateDir      string        `yaml:"state_dir"`
	LoginPath     string        `yaml:"login_path"`
	RedirectDelay time.Duration `yaml:"redirect_delay"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StateDir, validation.Required),
		validation.Field(&c.LoginPath, validation.Required, validation.By(absolutePath)),
		validation.Field(&c.RedirectDelay, validation.Min(time.Duration(0))),
	)
}

// NotifyConfig controls notification display.
type NotifyConfig struct {
	DisplayDuration time.Duration `yaml:"display_duration"`
}

// Validate validates the notify configuration.
func (c *NotifyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DisplayDuration, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// AuthConfig holds bridge authentication configuration.
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// MockstoreConfig configures the development storefront.
type MockstoreConfig struct {
	Port       int           `yaml:"port"`
	SQLitePath string        `yaml:"sqlite_path"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// Address returns the mock storefront listen address.
func (c *MockstoreConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the mock storefront configuration.
func (c *MockstoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.JWTSecret, validation.Required, validation.Length(8, 0)),
		validation.Field(&c.TokenTTL, validation.Required, validation.Min(time.Minute)),
	)
}

func httpURL(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}

func absolutePath(v any) error {
	s, _ := v.(string)
	if !strings.HasPrefix(s, "/") {
		return fmt.Errorf("must start with /")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8765,
			},
		},
		Storefront: StorefrontConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10 * time.Second,
			Burst:   5,
		},
		Session: SessionConfig{
			StateDir:      "./.haven",
			LoginPath:     session.DefaultLoginPath,
			RedirectDelay: session.DefaultRedirectDelay,
		},
		Notify: NotifyConfig{
			DisplayDuration: notify.DefaultDisplayDuration,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Mockstore: MockstoreConfig{
			Port:       5000,
			SQLitePath: "./mockstore.db",
			JWTSecret:  "change-me-in-production",
			TokenTTL:   24 * time.Hour,
		},
	}
}
