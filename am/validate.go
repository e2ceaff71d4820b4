package am

import (
	"net/url"

	"github.com/teranos/rpawatch/errors"
)

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	if c.Feed.PageSize <= 0 {
		return errors.Newf("feed.page_size must be > 0, got %d", c.Feed.PageSize)
	}
	if c.Feed.LogPageSize <= 0 {
		return errors.Newf("feed.log_page_size must be > 0, got %d", c.Feed.LogPageSize)
	}
	if c.Feed.MinBackoffSeconds <= 0 {
		return errors.Newf("feed.min_backoff_seconds must be > 0, got %d", c.Feed.MinBackoffSeconds)
	}
	if c.Feed.MaxBackoffSeconds < c.Feed.MinBackoffSeconds {
		return errors.Newf("feed.max_backoff_seconds (%d) must be >= feed.min_backoff_seconds (%d)",
			c.Feed.MaxBackoffSeconds, c.Feed.MinBackoffSeconds)
	}
	// 0 disables refresh
	if c.Feed.RefreshIntervalSeconds < 0 {
		return errors.Newf("feed.refresh_interval_seconds must be >= 0, got %d", c.Feed.RefreshIntervalSeconds)
	}
	for key, raw := range map[string]string{
		"feed.login_url":     c.Feed.LoginURL,
		"feed.negotiate_url": c.Feed.NegotiateURL,
		"feed.ws_url":        c.Feed.WSURL,
		"llm.base_url":       c.LLM.BaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Newf("%s is not an absolute URL: %q", key, raw)
		}
	}

	if c.Scanner.IntervalSeconds <= 0 {
		return errors.Newf("scanner.interval_seconds must be > 0, got %d", c.Scanner.IntervalSeconds)
	}
	if c.Replies.IntervalSeconds <= 0 {
		return errors.Newf("replies.interval_seconds must be > 0, got %d", c.Replies.IntervalSeconds)
	}

	if c.Mail.SMTPPort <= 0 || c.Mail.SMTPPort > 65535 {
		return errors.Newf("mail.smtp_port must be in 1..65535, got %d", c.Mail.SMTPPort)
	}
	if c.Mail.SendsPerMinute < 0 {
		return errors.Newf("mail.sends_per_minute must be >= 0, got %d", c.Mail.SendsPerMinute)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.Newf("llm.temperature must be in 0..2, got %g", c.LLM.Temperature)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.Newf("llm.timeout_seconds must be > 0, got %d", c.LLM.TimeoutSeconds)
	}

	if c.Remedy.TimeoutSeconds <= 0 {
		return errors.Newf("remedy.timeout_seconds must be > 0, got %d", c.Remedy.TimeoutSeconds)
	}
	if c.Remedy.RobotPageSize <= 0 {
		return errors.Newf("remedy.robot_page_size must be > 0, got %d", c.Remedy.RobotPageSize)
	}
	if c.Pipeline.RunTimeoutSeconds <= 0 {
		return errors.Newf("pipeline.run_timeout_seconds must be > 0, got %d", c.Pipeline.RunTimeoutSeconds)
	}

	return nil
}

// ValidateServe additionally requires what the long-running service needs
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	required := []struct{ key, value string }{
		{"feed.login_url", c.Feed.LoginURL},
		{"feed.negotiate_url", c.Feed.NegotiateURL},
		{"feed.ws_url", c.Feed.WSURL},
		{"feed.username", c.Feed.Username},
		{"mail.smtp_host", c.Mail.SMTPHost},
		{"mail.imap_addr", c.Mail.IMAPAddr},
		{"mail.username", c.Mail.Username},
		{"mail.developer_to", c.Mail.DeveloperTo},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.WithHint(errors.Newf("%s is required", r.key),
				"set it in am.toml or the matching RPAWATCH_ environment variable")
		}
	}
	if !c.LLM.Enabled() {
		return errors.WithHint(errors.New("llm.base_url or llm.api_key is required"),
			"classification needs an OpenAI-compatible endpoint")
	}
	return nil
}
