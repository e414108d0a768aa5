package app

import (
	"context"
	"errors"
	"fmt"

	"tradewatch/internal/command"
	"tradewatch/internal/service"
	"tradewatch/internal/view"
)

// Snapshot fetches every feed once, renders a single frame and exits.
// Feeds still loading after settle_timeout render with whatever they hold.
func (a *App) Snapshot(ctx context.Context) error {
	ctrl, err := a.newController(nil, nil)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop()

	settleCtx, cancel := context.WithTimeout(ctx, a.Config.Dashboard.SettleTimeout)
	defer cancel()
	if err := ctrl.WaitSettled(settleCtx); err != nil {
		if !errors.Is(err, service.ErrNotSettled) {
			return err
		}
		a.Logger.Warn().Dur("timeout", a.Config.Dashboard.SettleTimeout).Msg("feeds did not settle; rendering partial snapshot")
	}

	snap := ctrl.Snapshot()
	if err := view.Render(a.Out, snap, a.viewOptions()); err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}
	if snap.Readiness.FatalError {
		return fmt.Errorf("%w: feed %s", ErrFatal, snap.Readiness.FatalFeed)
	}
	return nil
}

// Sell asks the engine to close the position in symbol.
func (a *App) Sell(ctx context.Context, symbol string) error {
	ctrl, err := a.newController(nil, nil)
	if err != nil {
		return err
	}

	ack, err := ctrl.Submit(ctx, command.Sell{Symbol: symbol})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.Out, "%s accepted: %s (request %s)\n", ack.Action, ack.Path, ack.RequestID)
	return err
}
