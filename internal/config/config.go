package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"dash/internal/security"
	"dash/pkg/cmdutil"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. DASH_WEBHOOK_SECRET.
const EnvPrefix = "dash"

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8000
	DefaultBotName        = "Statsy"
	DefaultDeployMarker   = "[deploy]"
	DefaultRestartDelay   = 5 * time.Second
	DefaultRestartTimeout = 2 * time.Minute
	DefaultRestartCommand = "sh ../dash.sh"
	DefaultSessionMaxAge  = 7 * 24 * time.Hour
	DefaultDatabasePath   = "./dash.db"
	DefaultLogFile        = "./dash.log"

	DiscordAuthorizeURL = "https://discord.com/api/oauth2/authorize"
	DiscordTokenURL     = "https://discord.com/api/oauth2/token"
	DiscordAPIBaseURL   = "https://discord.com/api"

	MinSessionSecretLength = 32
)

// Config is the root configuration structure loaded from dash.yaml.
type Config struct {
	BotName  string         `yaml:"bot_name" split_words:"true"`
	Server   ServerConfig   `yaml:"server"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host           string   `yaml:"host" split_words:"true"`
	Port           int      `yaml:"port" split_words:"true"`
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
	// RateLimit disables per-IP limiting when false.
	RateLimit bool `yaml:"rate_limit" split_words:"true"`
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP. Enable
	// only behind a reverse proxy that sets those headers.
	TrustProxy bool `yaml:"trust_proxy" split_words:"true"`
}

// WebhookConfig controls GitHub webhook verification and the redeploy action.
type WebhookConfig struct {
	Secret         string        `yaml:"secret" split_words:"true"`
	DeployMarker   string        `yaml:"deploy_marker" split_words:"true"`
	RestartDelay   time.Duration `yaml:"restart_delay" split_words:"true"`
	RestartCommand string        `yaml:"restart_command" split_words:"true"`
	RestartDir     string        `yaml:"restart_dir" split_words:"true"`
	RestartTimeout time.Duration `yaml:"restart_timeout" split_words:"true"`
	// SudoPassword, when set, runs the restart command through `sudo -S`.
	SudoPassword string `yaml:"sudo_password" split_words:"true"`
	// Repository is the "owner/repo" the `hook create` command registers against.
	Repository  string `yaml:"repository" split_words:"true"`
	GitHubToken string `yaml:"github_token" envconfig:"GITHUB_TOKEN"`
	PublicURL   string `yaml:"public_url" split_words:"true"`
}

// OAuthConfig holds the Discord application credentials and endpoints.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id" split_words:"true"`
	ClientSecret string   `yaml:"client_secret" split_words:"true"`
	RedirectURI  string   `yaml:"redirect_uri" split_words:"true"`
	Scopes       []string `yaml:"scopes" split_words:"true"`
	AuthorizeURL string   `yaml:"authorize_url" split_words:"true"`
	TokenURL     string   `yaml:"token_url" split_words:"true"`
	APIBaseURL   string   `yaml:"api_base_url" split_words:"true"`
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	Secret string        `yaml:"secret" split_words:"true"`
	MaxAge time.Duration `yaml:"max_age" split_words:"true"`
	Secure bool          `yaml:"secure" split_words:"true"`
}

// DatabaseConfig points at the SQLite document store.
type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// NotifyConfig holds the Discord webhook sinks.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" split_words:"true"`
	LogURL     string `yaml:"log_url" split_words:"true"`
}

// LogConfig controls the server log.
type LogConfig struct {
	File  string `yaml:"file" split_words:"true"`
	Level string `yaml:"level" split_words:"true"`
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		BotName: DefaultBotName,
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			RateLimit: true,
		},
		Webhook: WebhookConfig{
			DeployMarker:   DefaultDeployMarker,
			RestartDelay:   DefaultRestartDelay,
			RestartCommand: DefaultRestartCommand,
			RestartTimeout: DefaultRestartTimeout,
		},
		OAuth: OAuthConfig{
			Scopes:       []string{"identify"},
			AuthorizeURL: DiscordAuthorizeURL,
			TokenURL:     DiscordTokenURL,
			APIBaseURL:   DiscordAPIBaseURL,
		},
		Session: SessionConfig{
			MaxAge: DefaultSessionMaxAge,
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Log:      LogConfig{File: DefaultLogFile, Level: "info"},
	}
}

// Load reads the YAML file at path (optional when empty), applies a .env
// file and DASH_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	// Variables already present in the environment take precedence over .env.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	return cfg, nil
}

// Validate returns one line per configuration problem.
func (c *Config) Validate() []string {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Webhook.Secret == "" {
		errors = append(errors, "  - webhook.secret is required")
	}
	if strings.TrimSpace(c.Webhook.DeployMarker) == "" {
		errors = append(errors, "  - webhook.deploy_marker cannot be empty")
	}
	if c.Webhook.RestartDelay < 0 {
		errors = append(errors, fmt.Sprintf("  - webhook.restart_delay must not be negative, got %s", c.Webhook.RestartDelay))
	}
	if c.Webhook.RestartTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("  - webhook.restart_timeout must be positive, got %s", c.Webhook.RestartTimeout))
	}
	if parts, err := cmdutil.ParseCommandString(c.Webhook.RestartCommand); err != nil {
		errors = append(errors, fmt.Sprintf("  - webhook.restart_command: %v", err))
	} else if err := security.NewRestartPolicy().Validate(parts); err != nil {
		errors = append(errors, fmt.Sprintf("  - webhook.restart_command: %v", err))
	}

	if c.OAuth.ClientID == "" {
		errors = append(errors, "  - oauth.client_id is required")
	}
	if c.OAuth.ClientSecret == "" {
		errors = append(errors, "  - oauth.client_secret is required")
	}
	if c.OAuth.RedirectURI == "" {
		errors = append(errors, "  - oauth.redirect_uri is required")
	}
	for name, u := range map[string]string{
		"oauth.authorize_url": c.OAuth.AuthorizeURL,
		"oauth.token_url":     c.OAuth.TokenURL,
		"oauth.api_base_url":  c.OAuth.APIBaseURL,
	} {
		if err := security.ValidateHTTPSURL(u); err != nil {
			errors = append(errors, fmt.Sprintf("  - %s: %v", name, err))
		}
	}

	if len(c.Session.Secret) < MinSessionSecretLength {
		errors = append(errors, fmt.Sprintf("  - session.secret must be at least %d characters", MinSessionSecretLength))
	}
	if c.Session.MaxAge <= 0 {
		errors = append(errors, fmt.Sprintf("  - session.max_age must be positive, got %s", c.Session.MaxAge))
	}

	if c.Database.Path == "" {
		errors = append(errors, "  - database.path is required")
	}

	for name, u := range map[string]string{
		"notify.webhook_url": c.Notify.WebhookURL,
		"notify.log_url":     c.Notify.LogURL,
	} {
		if u == "" {
			continue
		}
		if err := security.ValidateHTTPSURL(u); err != nil {
			errors = append(errors, fmt.Sprintf("  - %s: %v", name, err))
		}
	}

	return errors
}

// Warnings reports non-fatal problems worth logging at startup.
func (c *Config) Warnings(configPath string) []string {
	var warnings []string

	if security.IsWeakSecret(c.Webhook.Secret) {
		warnings = append(warnings, "webhook.secret looks weak; generate one with `dash token generate`")
	}
	if configPath != "" {
		if err := security.ValidateSecurePermissions(configPath); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	if !c.Session.Secure && strings.HasPrefix(c.OAuth.RedirectURI, "https://") {
		warnings = append(warnings, "session.secure is false while the redirect URI uses HTTPS")
	}

	return warnings
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
