package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/announcer/config.yaml",
	"/etc/announcer/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "ANNOUNCER_CONFIG"

// Config holds all runtime configuration. Values are layered:
// struct defaults, then an optional YAML file, then environment variables
// (PLEX_URL -> plex.url and so on; env wins).
type Config struct {
	Plex      PlexConfig      `koanf:"plex"`
	Discord   DiscordConfig   `koanf:"discord"`
	Store     StoreConfig     `koanf:"store"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	HTTP      HTTPConfig      `koanf:"http"`
	Uptime    UptimeConfig    `koanf:"uptime"`
}

// PlexConfig covers the library source connection.
type PlexConfig struct {
	URL           string          `koanf:"url"`
	Token         string          `koanf:"token"`
	Sections      []SectionConfig `koanf:"sections"`
	ContainerSize int             `koanf:"container_size"` // X-Plex-Container-Size per fetch
	Timeout       time.Duration   `koanf:"timeout"`

	// Circuit breaker around the source API.
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
}

// SectionConfig names one library section to watch.
type SectionConfig struct {
	Name string `koanf:"name"`
	Skip bool   `koanf:"skip"`
}

// DiscordConfig covers the webhook sink and message appearance.
type DiscordConfig struct {
	WebhookURL string `koanf:"webhook_url"`

	// When testing mode is on, TestingWebhookURL replaces WebhookURL so a
	// scratch channel receives the announcements.
	TestingMode       bool   `koanf:"testing_mode"`
	TestingWebhookURL string `koanf:"testing_webhook_url"`

	Timeout time.Duration `koanf:"timeout"`

	// Delivery policy.
	RatePerSecond  int             `koanf:"rate_per_second"`
	RetryBackoff   []time.Duration `koanf:"retry_backoff"`
	MaxSendRetries int             `koanf:"max_send_retries"`

	Embed EmbedConfig `koanf:"embed"`
}

// EmbedConfig carries the cosmetic knobs for announcement embeds.
type EmbedConfig struct {
	Bullet         string `koanf:"bullet"`
	MovieColour    int    `koanf:"movie_colour"`
	ShowColour     int    `koanf:"show_colour"`
	MusicColour    int    `koanf:"music_colour"`
	MovieEmote     string `koanf:"movie_emote"`
	ShowEmote      string `koanf:"show_emote"`
	Thumbnail      bool   `koanf:"thumbnail"` // attach library artwork when present
	OverflowFooter string `koanf:"overflow_footer"`
	MaxDescription int    `koanf:"max_description"`
}

// StoreConfig covers the SeenSet database.
type StoreConfig struct {
	DatabaseURL string `koanf:"database_url"`
	MaxConns    int32  `koanf:"max_conns"`
	MinConns    int32  `koanf:"min_conns"`
}

// SchedulerConfig drives the polling loop.
type SchedulerConfig struct {
	PollInterval           time.Duration `koanf:"poll_interval"`
	ErrorBackoff           time.Duration `koanf:"error_backoff"`
	MaxConsecutiveFailures int           `koanf:"max_consecutive_failures"` // 0 = never give up
}

// HTTPConfig covers the ops server (health, metrics, status).
type HTTPConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// UptimeConfig points at an optional status monitor pinged after each
// successful cycle.
type UptimeConfig struct {
	URL string `koanf:"url"`
}

func defaultConfig() *Config {
	return &Config{
		Plex: PlexConfig{
			URL:   "http://localhost:32400",
			Token: "",
			Sections: []SectionConfig{
				{Name: "Movies"},
				{Name: "TV Shows"},
			},
			ContainerSize:       50,
			Timeout:             30 * time.Second,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
			BreakerTimeout:      2 * time.Minute,
		},
		Discord: DiscordConfig{
			Timeout:       10 * time.Second,
			RatePerSecond: 5,
			RetryBackoff: []time.Duration{
				2 * time.Second,
				10 * time.Second,
				30 * time.Second,
			},
			MaxSendRetries: 3,
			Embed: EmbedConfig{
				Bullet:         "•",
				MovieColour:    0xE5A00D,
				ShowColour:     0x00A4DC,
				MusicColour:    0x8E44AD,
				MovieEmote:     "\U0001F3AC",
				ShowEmote:      "\U0001F4FA",
				Thumbnail:      true,
				OverflowFooter: "List is too long to display fully",
				MaxDescription: 4000,
			},
		},
		Store: StoreConfig{
			MaxConns: 10,
			MinConns: 2,
		},
		Scheduler: SchedulerConfig{
			PollInterval:           5 * time.Minute,
			ErrorBackoff:           time.Minute,
			MaxConsecutiveFailures: 0,
		},
		HTTP: HTTPConfig{
			Port:            "8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// PLEX_TOKEN -> plex.token, DISCORD_WEBHOOK_URL -> discord.webhook_url.
	envProvider := env.Provider("", ".", func(s string) string {
		return strings.Replace(strings.ToLower(s), "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the daemon cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Plex.URL) == "" {
		return errors.New("plex.url is required")
	}
	if strings.TrimSpace(c.Plex.Token) == "" {
		return errors.New("plex.token is required")
	}
	if strings.TrimSpace(c.WebhookURL()) == "" {
		return errors.New("discord.webhook_url is required")
	}
	if c.Store.DatabaseURL == "" {
		return errors.New("store.database_url is required")
	}
	active := 0
	for _, s := range c.Plex.Sections {
		if s.Name == "" {
			return errors.New("plex.sections entries need a name")
		}
		if !s.Skip {
			active++
		}
	}
	if active == 0 {
		return errors.New("at least one non-skipped plex section is required")
	}
	if c.Scheduler.PollInterval <= 0 {
		return errors.New("scheduler.poll_interval must be positive")
	}
	return nil
}

// WebhookURL returns the sink endpoint, honouring testing mode.
func (c *Config) WebhookURL() string {
	if c.Discord.TestingMode && c.Discord.TestingWebhookURL != "" {
		return c.Discord.TestingWebhookURL
	}
	return c.Discord.WebhookURL
}

// ActiveSections returns the section names marked for watching.
func (c *Config) ActiveSections() []string {
	var names []string
	for _, s := range c.Plex.Sections {
		if !s.Skip {
			names = append(names, s.Name)
		}
	}
	return names
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
