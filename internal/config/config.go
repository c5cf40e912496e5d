package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"wishlist-pricewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Steam     SteamConfig     `mapstructure:"steam"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
	API       APIConfig       `mapstructure:"api"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs how often the watch-list is checked.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SteamConfig covers the Steam store price lookup.
type SteamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	CountryCode    string        `mapstructure:"country_code"`
	Language       string        `mapstructure:"language"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert policy and routing.
type AlertingConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	DropThresholdPct float64        `mapstructure:"drop_threshold_pct"`
	AttachChart      bool           `mapstructure:"attach_chart"`
	ChartWindow      time.Duration  `mapstructure:"chart_window"`
	Telegram         TelegramConfig `mapstructure:"telegram"`
	Discord          DiscordConfig  `mapstructure:"discord"`
	Kafka            KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DiscordConfig describes the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// KafkaConfig describes the alert event stream.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// APIConfig controls the read-only HTTP API and metrics endpoint.
type APIConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// dotDecimalRegions are Steam store regions whose formatted prices use a
// decimal point and comma grouping. Regions such as de or fr render "5,00€",
// which the price normalizer would misread.
var dotDecimalRegions = map[string]bool{
	"us": true, "gb": true, "ca": true, "au": true, "nz": true,
	"jp": true, "kr": true, "cn": true, "hk": true, "tw": true,
	"sg": true, "in": true, "mx": true, "ph": true, "th": true,
	"my": true,
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "6h")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x77697368))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("steam.base_url", "https://store.steampowered.com")
	v.SetDefault("steam.api_base_url", "https://api.steampowered.com")
	v.SetDefault("steam.country_code", "us")
	v.SetDefault("steam.language", "english")
	v.SetDefault("steam.request_timeout", "10s")
	v.SetDefault("steam.min_interval", "1500ms")
	v.SetDefault("steam.user_agent", "pricewatch/1.0")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.drop_threshold_pct", 20.0)
	v.SetDefault("alerting.attach_chart", true)
	v.SetDefault("alerting.chart_window", "2160h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.webhook_url", "")
	v.SetDefault("alerting.discord.username", "Price Watch")
	v.SetDefault("alerting.discord.timeout", "15s")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("alerting.kafka.topic", "price-alerts")
	v.SetDefault("alerting.kafka.write_timeout", "10s")

	v.SetDefault("export.max_data_points", 10000)

	v.SetDefault("api.listen_addr", "")
	v.SetDefault("api.shutdown_timeout", "5s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero when scheduler.cron is empty")
	}
	if c.Scheduler.Cron != "" {
		if _, err := cron.ParseStandard(c.Scheduler.Cron); err != nil {
			return fmt.Errorf("scheduler.cron is invalid: %w", err)
		}
	}
	if !dotDecimalRegions[strings.ToLower(c.Steam.CountryCode)] {
		return fmt.Errorf("steam.country_code %q is not supported: prices must be formatted with a decimal point", c.Steam.CountryCode)
	}
	if c.Steam.MinInterval < 0 {
		return fmt.Errorf("steam.min_interval cannot be negative")
	}
	if c.Alerting.DropThresholdPct < 0 || c.Alerting.DropThresholdPct > 100 {
		return fmt.Errorf("alerting.drop_threshold_pct must be within [0, 100]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url is required")
	}
	if c.Alerting.Kafka.Enabled {
		if len(c.Alerting.Kafka.Brokers) == 0 {
			return fmt.Errorf("alerting.kafka.brokers is required")
		}
		if c.Alerting.Kafka.Topic == "" {
			return fmt.Errorf("alerting.kafka.topic is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// EnabledChannels lists the configured notification channels.
func (c *Config) EnabledChannels() []string {
	channels := make([]string, 0, 3)
	if c.Alerting.Discord.Enabled {
		channels = append(channels, "discord")
	}
	if c.Alerting.Telegram.Enabled {
		channels = append(channels, "telegram")
	}
	if c.Alerting.Kafka.Enabled {
		channels = append(channels, "kafka")
	}
	return channels
}
