package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tradewatch/internal/feed"
	"tradewatch/internal/logging"
	"tradewatch/internal/version"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// EngineConfig captures trading engine connectivity.
type EngineConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FeedConfig governs one feed's polling cadence.
type FeedConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FatalOnError bool          `mapstructure:"fatal_on_error"`
}

// FeedsConfig holds the per-feed settings.
type FeedsConfig struct {
	Summary   FeedConfig `mapstructure:"summary"`
	Positions FeedConfig `mapstructure:"positions"`
	History   FeedConfig `mapstructure:"history"`
	Logs      FeedConfig `mapstructure:"logs"`
}

// DashboardConfig sets terminal rendering behaviour.
type DashboardConfig struct {
	RenderInterval time.Duration `mapstructure:"render_interval"`
	LogLines       int           `mapstructure:"log_lines"`
	SettleTimeout  time.Duration `mapstructure:"settle_timeout"`
	HistoryWindow  time.Duration `mapstructure:"history_window"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// AlertingConfig defines fatal-state notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRADEWATCH")
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
	v.SetDefault("app.name", "tradewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("engine.base_url", "http://localhost:8000/api")
	v.SetDefault("engine.request_timeout", "10s")
	v.SetDefault("engine.user_agent", version.UserAgent())

	for name, opts := range feed.Defaults() {
		v.SetDefault("feeds."+string(name)+".interval", opts.Interval.String())
		v.SetDefault("feeds."+string(name)+".fatal_on_error", opts.FatalOnError)
	}

	v.SetDefault("dashboard.render_interval", "1s")
	v.SetDefault("dashboard.log_lines", 20)
	v.SetDefault("dashboard.settle_timeout", "15s")
	v.SetDefault("dashboard.history_window", "24h")

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 1000)
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
	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		return fmt.Errorf("engine.base_url must be configured")
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be greater than zero")
	}
	for name, fc := range c.Feeds.byName() {
		if fc.Interval <= 0 {
			return fmt.Errorf("feeds.%s.interval must be greater than zero", name)
		}
	}
	if c.Dashboard.RenderInterval <= 0 {
		return fmt.Errorf("dashboard.render_interval must be greater than zero")
	}
	if c.Dashboard.LogLines < 0 {
		return fmt.Errorf("dashboard.log_lines cannot be negative")
	}
	if c.Dashboard.SettleTimeout <= 0 {
		return fmt.Errorf("dashboard.settle_timeout must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

func (f FeedsConfig) byName() map[feed.Name]FeedConfig {
	return map[feed.Name]FeedConfig{
		feed.Summary:   f.Summary,
		feed.Positions: f.Positions,
		feed.History:   f.History,
		feed.Logs:      f.Logs,
	}
}

// FeedOptions converts the feed section into scheduling options.
func (c *Config) FeedOptions() map[feed.Name]feed.Options {
	out := make(map[feed.Name]feed.Options, len(feed.Names))
	for name, fc := range c.Feeds.byName() {
		out[name] = feed.Options{Interval: fc.Interval, FatalOnError: fc.FatalOnError}
	}
	return out
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
