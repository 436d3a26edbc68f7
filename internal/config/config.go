package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/brandon/unibox/pkg/types"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	CachePath  string `mapstructure:"cache_path"`
	LogLevel   string `mapstructure:"log_level"`
	PageSize   int    `mapstructure:"page_size"`

	Mailboxes []MailboxConfig `mapstructure:"mailboxes"`
}

// MailboxConfig holds the registration of a single mailbox. Which
// fields are required depends on the provider kind: OAuth providers
// need the token material, the IMAP provider needs hosts and
// credentials.
type MailboxConfig struct {
	ID          string             `mapstructure:"id"`
	Provider    types.ProviderKind `mapstructure:"provider"`
	Address     string             `mapstructure:"address"`
	DisplayName string             `mapstructure:"display_name"`

	// OAuth providers (gmail, graph)
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenURL     string `mapstructure:"token_url"`
	BaseURL      string `mapstructure:"base_url"`

	// IMAP/SMTP provider
	IMAPHost string `mapstructure:"imap_host"`
	IMAPPort int    `mapstructure:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from the config file (unibox.yaml in the
// working directory or /etc/unibox) with UNIBOX_* environment
// overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8085")
	v.SetDefault("cache_path", "/data/unibox_cache.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("page_size", 25)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("unibox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/unibox")
	}

	v.SetEnvPrefix("UNIBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.CachePath == "" {
		return fmt.Errorf("cache_path is required")
	}
	if c.PageSize < 1 || c.PageSize > 500 {
		return fmt.Errorf("page_size must be between 1 and 500")
	}
	if len(c.Mailboxes) == 0 {
		return fmt.Errorf("at least one mailbox must be configured")
	}

	seen := make(map[string]bool)
	for i := range c.Mailboxes {
		mc := &c.Mailboxes[i]
		if mc.ID == "" {
			return fmt.Errorf("mailbox %d: id is required", i)
		}
		if seen[mc.ID] {
			return fmt.Errorf("mailbox %s: duplicate id", mc.ID)
		}
		seen[mc.ID] = true

		if !mc.Provider.Valid() {
			return fmt.Errorf("mailbox %s: unknown provider %q", mc.ID, mc.Provider)
		}
		if mc.Address == "" {
			return fmt.Errorf("mailbox %s: address is required", mc.ID)
		}

		switch mc.Provider {
		case types.ProviderGmail, types.ProviderGraph:
			if mc.ClientID == "" || mc.RefreshToken == "" {
				return fmt.Errorf("mailbox %s: client_id and refresh_token are required", mc.ID)
			}
			if mc.Provider == types.ProviderGraph && mc.BaseURL == "" {
				return fmt.Errorf("mailbox %s: base_url is required", mc.ID)
			}
		case types.ProviderIMAP:
			if mc.IMAPHost == "" || mc.SMTPHost == "" {
				return fmt.Errorf("mailbox %s: imap_host and smtp_host are required", mc.ID)
			}
			if mc.IMAPPort < 1 || mc.IMAPPort > 65535 {
				return fmt.Errorf("mailbox %s: invalid imap_port", mc.ID)
			}
			if mc.SMTPPort < 1 || mc.SMTPPort > 65535 {
				return fmt.Errorf("mailbox %s: invalid smtp_port", mc.ID)
			}
			if mc.Username == "" || mc.Password == "" {
				return fmt.Errorf("mailbox %s: username and password are required", mc.ID)
			}
		}
	}
	return nil
}

// GetMailbox finds a mailbox configuration by id.
func (c *Config) GetMailbox(id string) (*MailboxConfig, error) {
	for i := range c.Mailboxes {
		if c.Mailboxes[i].ID == id {
			return &c.Mailboxes[i], nil
		}
	}
	return nil, fmt.Errorf("mailbox not found: %s", id)
}
