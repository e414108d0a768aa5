package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradewatch/internal/metrics"
	"tradewatch/internal/service"
	"tradewatch/internal/view"
)

const clearScreen = "\033[H\033[2J"

// Run polls the engine and redraws the dashboard until interrupted.
// SIGHUP refreshes every feed.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	ctrl, err := a.newController(m, a.newNotifier())
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop()

	a.Logger.Info().Str("engine", a.Config.Engine.BaseURL).Msg("starting dashboard")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.renderLoop(gctx, ctrl)
	})
	g.Go(func() error {
		return a.refreshOnHangup(gctx, ctrl)
	})
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		g.Go(func() error {
			return a.serveMetrics(gctx, addr, m, ctrl)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("dashboard terminated with error")
		return err
	}

	a.Logger.Info().Msg("dashboard stopped")
	return nil
}

func (a *App) renderLoop(ctx context.Context, ctrl *service.Controller) error {
	ticker := time.NewTicker(a.Config.Dashboard.RenderInterval)
	defer ticker.Stop()

	opts := a.viewOptions()
	for {
		if _, err := fmt.Fprint(a.Out, clearScreen); err != nil {
			return err
		}
		if err := view.Render(a.Out, ctrl.Snapshot(), opts); err != nil {
			return fmt.Errorf("render dashboard: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) refreshOnHangup(ctx context.Context, ctrl *service.Controller) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hup:
			ctrl.RefreshAll()
		}
	}
}

func (a *App) serveMetrics(ctx context.Context, addr string, m *metrics.Collectors, ctrl *service.Controller) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(m, ctrl),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("metrics server shutdown")
		}
		return ctx.Err()
	}
}

type readinessBody struct {
	Ready      bool   `json:"ready"`
	FatalError bool   `json:"fatal_error"`
	Loading    bool   `json:"loading"`
	FatalFeed  string `json:"fatal_feed,omitempty"`
}

func newMux(m *metrics.Collectors, ctrl *service.Controller) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		rd := ctrl.Readiness()
		status := http.StatusOK
		if !rd.Ready || rd.FatalError {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(readinessBody{
			Ready:      rd.Ready,
			FatalError: rd.FatalError,
			Loading:    rd.Loading,
			FatalFeed:  string(rd.FatalFeed),
		})
	})
	return mux
}
