package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

// Run starts the background workers and serves HTTP until ctx is cancelled,
// then drains in-flight requests and shuts every component down.
func (app *App) Run(ctx context.Context) error {
	if app.queue != nil {
		if err := app.queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start migration queue: %w", err)
		}
	}
	if err := app.Leaderboard.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leaderboard: %w", err)
	}

	srv := &http.Server{
		Addr:              app.Config.HTTP.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.Logger.InfoContext(ctx, "HTTP server listening", attr.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.Logger.InfoContext(ctx, "Shutting down application...")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to drain http server: %w", err))
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if runErr == nil {
		app.Logger.InfoContext(shutdownCtx, "Application shut down gracefully.")
	}
	return runErr
}
