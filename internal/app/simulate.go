package app

import (
	"context"
	"errors"
	"time"

	"tradewatch/internal/alerting"
	"tradewatch/internal/feed"
)

const simulateProbeTimeout = 3 * time.Second

// SimulateAlert 通过已配置的告警通道推送一条模拟的 fatal 通知。
func (a *App) SimulateAlert(ctx context.Context, message string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	note := alerting.Notification{
		At:            time.Now().UTC(),
		Event:         alerting.EventFatal,
		Feed:          feed.Summary.String(),
		ErrorKind:     string(feed.NetworkError),
		ErrorMessage:  "simulated outage",
		AdditionalMsg: message,
	}

	// attach live equity when the engine answers; the alert goes out either way
	probeCtx, cancel := context.WithTimeout(ctx, simulateProbeTimeout)
	defer cancel()
	if summary, err := a.newEngine().FetchSummary(probeCtx); err == nil {
		equity := summary.CurrentEquity
		note.LastEquity = &equity
		note.LastUpdatedAt = time.Now().UTC()
	} else {
		a.Logger.Debug().Err(err).Msg("engine unreachable; sending alert without equity")
	}

	return notifier.Notify(ctx, note)
}
