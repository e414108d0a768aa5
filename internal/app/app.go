package app

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/alerting"
	"tradewatch/internal/config"
	"tradewatch/internal/fetcher"
	"tradewatch/internal/metrics"
	"tradewatch/internal/service"
	"tradewatch/internal/view"
)

// ErrFatal is returned by one-shot commands when a fatal feed is failing.
var ErrFatal = errors.New("dashboard in fatal error state")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newEngine() *fetcher.Engine {
	return fetcher.NewEngine(fetcher.EngineOptions{
		BaseURL:   a.Config.Engine.BaseURL,
		Timeout:   a.Config.Engine.RequestTimeout,
		UserAgent: a.Config.Engine.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newController(m *metrics.Collectors, notifier alerting.Notifier) (*service.Controller, error) {
	return service.New(a.newEngine(), service.Options{
		Feeds:        a.Config.FeedOptions(),
		FetchTimeout: a.Config.Engine.RequestTimeout,
		Metrics:      m,
		Notifier:     notifier,
	}, a.Logger)
}

func (a *App) viewOptions() view.Options {
	return view.Options{
		LogLines:      a.Config.Dashboard.LogLines,
		HistoryWindow: a.Config.Dashboard.HistoryWindow,
	}
}

// ExportOptions hold parameters for exporting the equity history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
