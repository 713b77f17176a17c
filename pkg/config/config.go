package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	RuntimeWeb       = "web"
	RuntimeExtension = "extension"
)

// Config represents the application configuration
type Config struct {
	Runtime   string          `mapstructure:"runtime"` // web or extension
	Logging   LoggingConfig   `mapstructure:"logging"`
	Web       WebConfig       `mapstructure:"web"`
	Extension ExtensionConfig `mapstructure:"extension"`
	Stream    StreamConfig    `mapstructure:"stream"`
	History   HistoryConfig   `mapstructure:"history"`
	Console   ConsoleConfig   `mapstructure:"console"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// WebConfig holds settings for the HTTP SSE transport
type WebConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"` // connect + response header timeout, not the stream itself
}

// ExtensionConfig holds settings for the message-port transport
type ExtensionConfig struct {
	PortURL  string `mapstructure:"port_url"`
	PortName string `mapstructure:"port_name"`
	Source   string `mapstructure:"source"`
}

// StreamConfig holds orchestrator tuning
type StreamConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// HistoryConfig holds the optional redis archive configuration
type HistoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxMessages   int           `mapstructure:"max_messages"`
}

// ConsoleConfig holds terminal output settings
type ConsoleConfig struct {
	Markdown bool   `mapstructure:"markdown"`
	Style    string `mapstructure:"style"`
	ShowLogs bool   `mapstructure:"show_logs"`
}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// IsExtension reports whether the configured runtime uses the message-port transport
func (c *Config) IsExtension() bool {
	return strings.Contains(strings.ToLower(c.Runtime), RuntimeExtension)
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.skillstream")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".skillstream"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env still apply. A broken one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("runtime", RuntimeWeb)

	viper.SetDefault("logging.log_file", "./.skillstream/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("web.base_url", "http://localhost:5800")
	viper.SetDefault("web.endpoint", "/v1/skill/streamInvoke")
	viper.SetDefault("web.token", "")
	viper.SetDefault("web.timeout", "30s")

	viper.SetDefault("extension.port_url", "ws://localhost:5801/ports")
	viper.SetDefault("extension.port_name", "streaming-chat")
	viper.SetDefault("extension.source", "extension-sidepanel")

	viper.SetDefault("stream.flush_interval", "50ms")

	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.redis_addr", "localhost:6379")
	viper.SetDefault("history.redis_password", "")
	viper.SetDefault("history.redis_db", 0)
	viper.SetDefault("history.ttl", "24h")
	viper.SetDefault("history.max_messages", 50)

	viper.SetDefault("console.markdown", false)
	viper.SetDefault("console.style", "auto")
	viper.SetDefault("console.show_logs", true)
}

// bindEnvironmentVariables binds SKILLSTREAM_ environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("runtime", "SKILLSTREAM_RUNTIME")
	viper.BindEnv("logging.log_file", "SKILLSTREAM_LOG_FILE")
	viper.BindEnv("logging.level", "SKILLSTREAM_LOG_LEVEL")
	viper.BindEnv("logging.preserve", "SKILLSTREAM_LOG_PRESERVE")
	viper.BindEnv("web.base_url", "SKILLSTREAM_BASE_URL")
	viper.BindEnv("web.token", "SKILLSTREAM_TOKEN")
	viper.BindEnv("web.timeout", "SKILLSTREAM_TIMEOUT")
	viper.BindEnv("extension.port_url", "SKILLSTREAM_PORT_URL")
	viper.BindEnv("history.enabled", "SKILLSTREAM_HISTORY_ENABLED")
	viper.BindEnv("history.redis_addr", "SKILLSTREAM_REDIS_ADDR")
	viper.BindEnv("history.redis_password", "SKILLSTREAM_REDIS_PASSWORD")
}

// processDurations fills in zero durations that viper left unset
func processDurations(c *Config) error {
	if c.Web.Timeout < 0 {
		return fmt.Errorf("invalid web.timeout: %s", c.Web.Timeout)
	}
	if c.Web.Timeout == 0 {
		c.Web.Timeout = 30 * time.Second
	}

	if c.Stream.FlushInterval < 0 {
		return fmt.Errorf("invalid stream.flush_interval: %s", c.Stream.FlushInterval)
	}
	if c.Stream.FlushInterval == 0 {
		c.Stream.FlushInterval = 50 * time.Millisecond
	}

	if c.History.TTL == 0 {
		c.History.TTL = 24 * time.Hour
	}

	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
