// Package config handles loading and managing mailsift configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the mailsift configuration.
type Config struct {
	API         APIConfig        `toml:"api"`
	OAuth       OAuthConfig      `toml:"oauth"`
	Rate        RateConfig       `toml:"rate"`
	Extract     ExtractConfig    `toml:"extract"`
	Attachments AttachmentConfig `toml:"attachments"`
	Output      OutputConfig     `toml:"output"`
}

// APIConfig holds the Zoho service locations. Zoho runs regional
// deployments (.com, .in, .eu), so both roots are configurable.
type APIConfig struct {
	BaseURL     string `toml:"base_url"`     // Zoho Mail API root
	AccountsURL string `toml:"accounts_url"` // Zoho accounts (OAuth) server
}

// OAuthConfig holds the OAuth client registration. The client ID and
// secret normally come from the environment, not the config file.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

// RateConfig holds request budget settings.
type RateConfig struct {
	RequestsPerMinute int `toml:"requests_per_minute"`
	MinDelayMillis    int `toml:"min_delay_ms"`
	MaxRetries        int `toml:"max_retries"`
}

// ExtractConfig holds pagination settings.
type ExtractConfig struct {
	BatchSize        int `toml:"batch_size"`
	MaxMessages      int `toml:"max_messages"`
	BatchDelayMillis int `toml:"batch_delay_ms"`
}

// AttachmentConfig holds the attachment side-channel settings.
type AttachmentConfig struct {
	Download               bool     `toml:"download"`
	MaxSizeBytes           int64    `toml:"max_size_bytes"`
	AllowedExtensions      []string `toml:"allowed_extensions"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
}

// OutputConfig holds output locations.
type OutputConfig struct {
	Dir string `toml:"dir"`
}

// Load reads the configuration from the specified file. If path is
// empty, mailsift.toml in the working directory is used when present.
// The config file is optional; defaults cover everything except the
// OAuth client credentials, which may also arrive via environment
// variables (ZOHO_CLIENT_ID, ZOHO_CLIENT_SECRET, ZOHO_REDIRECT_URI).
func Load(path string) (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL:     "https://mail.zoho.in/api",
			AccountsURL: "https://accounts.zoho.in",
		},
		OAuth: OAuthConfig{
			RedirectURL: "http://localhost:5000/oauth/callback",
		},
		Rate: RateConfig{
			RequestsPerMinute: 40,
			MinDelayMillis:    1200,
			MaxRetries:        3,
		},
		Extract: ExtractConfig{
			BatchSize:        50,
			MaxMessages:      5000,
			BatchDelayMillis: 1000,
		},
		Attachments: AttachmentConfig{
			Download:               true,
			MaxSizeBytes:           10 << 20,
			MaxConsecutiveFailures: 3,
		},
		Output: OutputConfig{
			Dir: "zoho_email_extraction",
		},
	}

	explicit := path != ""
	if path == "" {
		path = "mailsift.toml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets environment variables override the file-based OAuth
// and service settings.
func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"ZOHO_CLIENT_ID":     &cfg.OAuth.ClientID,
		"ZOHO_CLIENT_SECRET": &cfg.OAuth.ClientSecret,
		"ZOHO_REDIRECT_URI":  &cfg.OAuth.RedirectURL,
		"ZOHO_API_BASE_URL":  &cfg.API.BaseURL,
		"ZOHO_ACCOUNTS_URL":  &cfg.API.AccountsURL,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// ValidateCredentials checks that the OAuth client is configured.
func (c *Config) ValidateCredentials() error {
	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return errors.New("ZOHO_CLIENT_ID and ZOHO_CLIENT_SECRET must be set (environment, .env file, or config file)")
	}
	return nil
}

// TokenPath returns the path to the stored OAuth credential.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Output.Dir, "tokens.json")
}

// AttachmentsDir returns the path to the downloaded-attachments tree.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.Output.Dir, "attachments")
}

// MinDelay returns the minimum inter-request delay.
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Rate.MinDelayMillis) * time.Millisecond
}

// BatchDelay returns the pause between successive pages.
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.Extract.BatchDelayMillis) * time.Millisecond
}
