package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	GitHub   GitHubConfig   `yaml:"github"`
	Discord  DiscordConfig  `yaml:"discord"`
	Bus      BusConfig      `yaml:"bus"`
	Poll     PollConfig     `yaml:"poll"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type GitHubConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
	MaxPages int           `yaml:"max_pages"`
}

type DiscordConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// BusConfig configures the optional RabbitMQ fan-out of delivered events.
// Fan-out is disabled when URL is empty.
type BusConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type PollConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Workers       int           `yaml:"workers"`
	CycleTimeout  time.Duration `yaml:"cycle_timeout"`
	SourceBackoff RetryConfig   `yaml:"source_backoff"`
}

// AppCredentials holds the two API tokens, loaded once at startup and
// passed explicitly into the transport constructors.
type AppCredentials struct {
	GitHub  string
	Discord string
}

func (c *Config) Credentials() AppCredentials {
	return AppCredentials{
		GitHub:  c.GitHub.Token,
		Discord: c.Discord.Token,
	}
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = "https://api.github.com"
	}
	if c.GitHub.Timeout == 0 {
		c.GitHub.Timeout = 30 * time.Second
	}
	if c.GitHub.PageSize == 0 {
		c.GitHub.PageSize = 100
	}
	if c.GitHub.MaxPages == 0 {
		c.GitHub.MaxPages = 3
	}
	if c.Discord.BaseURL == "" {
		c.Discord.BaseURL = "https://discord.com/api/v10"
	}
	if c.Discord.Timeout == 0 {
		c.Discord.Timeout = 30 * time.Second
	}
	if c.Discord.Retry.MaxAttempts == 0 {
		c.Discord.Retry.MaxAttempts = 3
	}
	if c.Discord.Retry.InitialBackoff == 0 {
		c.Discord.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Discord.Retry.MaxBackoff == 0 {
		c.Discord.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Bus.Exchange == "" {
		c.Bus.Exchange = "gitcord"
	}
	if c.Bus.RoutingKey == "" {
		c.Bus.RoutingKey = "events"
	}
	if c.Bus.QueueName == "" {
		c.Bus.QueueName = "gitcord_events"
	}
	if c.Poll.Interval == 0 {
		// GitHub's documented minimum poll interval for event feeds.
		c.Poll.Interval = 60 * time.Second
	}
	if c.Poll.Workers == 0 {
		c.Poll.Workers = 4
	}
	if c.Poll.CycleTimeout == 0 {
		c.Poll.CycleTimeout = 2 * time.Minute
	}
	if c.Poll.SourceBackoff.InitialBackoff == 0 {
		c.Poll.SourceBackoff.InitialBackoff = 30 * time.Second
	}
	if c.Poll.SourceBackoff.MaxBackoff == 0 {
		c.Poll.SourceBackoff.MaxBackoff = 15 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
