package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds connection settings for the session/rate-limit backend.
// If the whole section is absent, the server falls back to the in-process
// store, which is only suitable for development and tests.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// MailConfig holds Mailgun dispatch settings. If absent, the /mail_ics
// endpoint reports that mailing is not available.
type MailConfig struct {
	Domain     string `yaml:"domain" json:"domain"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	SenderName string `yaml:"sender_name" json:"sender_name"`
	Template   string `yaml:"template" json:"template"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone in which lesson periods are anchored
	// (e.g. "Asia/Shanghai").
	Timezone string `yaml:"timezone" json:"timezone"`

	// PortalURL is the base URL of the upstream portal gateway.
	PortalURL string `yaml:"portal_url" json:"portal_url"`

	// SessionTTLSeconds is how long an idle session survives in the store.
	SessionTTLSeconds int `yaml:"session_ttl" json:"session_ttl"`

	// RateLimitTTLSeconds is the mail cooldown window per recipient.
	RateLimitTTLSeconds int `yaml:"ratelimit_ttl" json:"ratelimit_ttl"`

	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	Mail  *MailConfig  `yaml:"mail,omitempty" json:"mail,omitempty"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		Timezone:            "Asia/Shanghai",
		PortalURL:           "",
		SessionTTLSeconds:   1200,
		RateLimitTTLSeconds: 60,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Shanghai"
	}
	if c.SessionTTLSeconds <= 0 {
		c.SessionTTLSeconds = 1200
	}
	if c.RateLimitTTLSeconds <= 0 {
		c.RateLimitTTLSeconds = 60
	}
	if c.Mail != nil && c.Mail.SenderName == "" {
		c.Mail.SenderName = "SJTU Schedule Exporter"
	}
}

// SessionTTL returns the session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// RateLimitTTL returns the mail cooldown window as a duration.
func (c *Config) RateLimitTTL() time.Duration {
	return time.Duration(c.RateLimitTTLSeconds) * time.Second
}

// MailEnabled reports whether Mailgun dispatch is fully configured.
func (c *Config) MailEnabled() bool {
	return c.Mail != nil && c.Mail.Domain != "" && c.Mail.APIKey != ""
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (creating
// the parent directory if needed) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
// The config can carry Redis credentials and the Mailgun API key, hence the
// tight permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedex-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
