package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
// Every key gets a default so AutomaticEnv can override it during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "rpawatch.db")

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
	})

	v.SetDefault("feed.login_url", "")
	v.SetDefault("feed.negotiate_url", "")
	v.SetDefault("feed.ws_url", "")
	v.SetDefault("feed.login_type", "RiYSAGovernor")
	v.SetDefault("feed.username", "")
	v.SetDefault("feed.password", "")
	v.SetDefault("feed.tenant", "default")
	v.SetDefault("feed.page_size", 100)
	v.SetDefault("feed.log_page_size", 10)
	v.SetDefault("feed.min_backoff_seconds", 1)
	v.SetDefault("feed.max_backoff_seconds", 60)
	v.SetDefault("feed.refresh_interval_seconds", 60)

	v.SetDefault("scanner.interval_seconds", 10)
	v.SetDefault("replies.interval_seconds", 20)

	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.imap_addr", "")
	v.SetDefault("mail.mailbox", "INBOX")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.developer_to", "")
	v.SetDefault("mail.business_to", "")
	v.SetDefault("mail.subject", "RCA Bot Alert")
	v.SetDefault("mail.sends_per_minute", 10)

	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout_seconds", 60)

	v.SetDefault("remedy.timeout_seconds", 60)
	v.SetDefault("remedy.robot_page_size", 10)

	v.SetDefault("pipeline.run_timeout_seconds", 180)
}

// BindSensitiveEnvVars explicitly binds secrets to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("feed.password", "RPAWATCH_FEED_PASSWORD")
	v.BindEnv("mail.password", "RPAWATCH_MAIL_PASSWORD")
	v.BindEnv("llm.api_key", "RPAWATCH_LLM_API_KEY")
	v.BindEnv("database.path", "RPAWATCH_DATABASE_PATH")
}

// SensitiveKeys are masked by Redacted
var SensitiveKeys = []string{"feed.password", "mail.password", "llm.api_key"}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "rpawatch.db"
	}
	return c.Database.Path
}

// Redacted returns a copy with secrets masked
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.Feed.Password = mask(c.Feed.Password)
	out.Mail.Password = mask(c.Mail.Password)
	out.LLM.APIKey = mask(c.LLM.APIKey)
	return &out
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Server: {Port: %d}, Scanner: {Interval: %s}, Replies: {Interval: %s}}",
		c.Database.Path, c.Server.Port, c.Scanner.Interval(), c.Replies.Interval())
}
