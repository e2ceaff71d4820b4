// Package am loads rpawatch configuration from defaults, TOML files and
// RPAWATCH_* environment variables.
package am

import "time"

// Config represents the rpawatch configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Replies  RepliesConfig  `mapstructure:"replies"`
	Mail     MailConfig     `mapstructure:"mail"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Remedy   RemedyConfig   `mapstructure:"remedy"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the REST server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// FeedConfig locates the orchestration platform and tunes the live feed
type FeedConfig struct {
	LoginURL               string `mapstructure:"login_url"`
	NegotiateURL           string `mapstructure:"negotiate_url"`
	WSURL                  string `mapstructure:"ws_url"`
	LoginType              string `mapstructure:"login_type"`
	Username               string `mapstructure:"username"`
	Password               string `mapstructure:"password"`
	Tenant                 string `mapstructure:"tenant"`
	PageSize               int    `mapstructure:"page_size"`
	LogPageSize            int    `mapstructure:"log_page_size"`
	MinBackoffSeconds      int    `mapstructure:"min_backoff_seconds"`
	MaxBackoffSeconds      int    `mapstructure:"max_backoff_seconds"`
	RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds"` // 0 = never re-request the execution page
}

// ScannerConfig configures the faulted-execution sweep
type ScannerConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// RepliesConfig configures the reply mailbox poll
type RepliesConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// MailConfig configures outgoing approval requests and the reply mailbox
type MailConfig struct {
	SMTPHost       string `mapstructure:"smtp_host"`
	SMTPPort       int    `mapstructure:"smtp_port"`
	IMAPAddr       string `mapstructure:"imap_addr"` // host:port, implicit TLS
	Mailbox        string `mapstructure:"mailbox"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	From           string `mapstructure:"from"`
	DeveloperTo    string `mapstructure:"developer_to"`
	BusinessTo     string `mapstructure:"business_to"`
	Subject        string `mapstructure:"subject"`
	SendsPerMinute int    `mapstructure:"sends_per_minute"` // 0 = unpaced
}

// LLMConfig configures the OpenAI-compatible chat endpoint
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// RemedyConfig configures the restart control session
type RemedyConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	RobotPageSize  int `mapstructure:"robot_page_size"`
}

// PipelineConfig configures per-job processing runs
type PipelineConfig struct {
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds"`
}

// Default server port
const DefaultServerPort = 8787

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Interval returns the scan period
func (c ScannerConfig) Interval() time.Duration { return seconds(c.IntervalSeconds) }

// Interval returns the mailbox poll period
func (c RepliesConfig) Interval() time.Duration { return seconds(c.IntervalSeconds) }

// MinBackoff returns the first reconnect delay
func (c FeedConfig) MinBackoff() time.Duration { return seconds(c.MinBackoffSeconds) }

// MaxBackoff returns the reconnect delay cap
func (c FeedConfig) MaxBackoff() time.Duration { return seconds(c.MaxBackoffSeconds) }

// RefreshInterval returns how often the execution page is re-requested
func (c FeedConfig) RefreshInterval() time.Duration { return seconds(c.RefreshIntervalSeconds) }

// Timeout returns the per-request LLM deadline
func (c LLMConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

// Enabled reports whether an LLM endpoint is configured
func (c LLMConfig) Enabled() bool { return c.BaseURL != "" || c.APIKey != "" }

// Timeout returns the restart session deadline
func (c RemedyConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

// RunTimeout returns the per-run deadline
func (c PipelineConfig) RunTimeout() time.Duration { return seconds(c.RunTimeoutSeconds) }
