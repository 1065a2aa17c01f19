package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/scorecard-club/scorecard/internal/observability/attr"
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// onShutdown registers fn to run during Shutdown. Hooks run in reverse
// registration order.
func (app *App) onShutdown(name string, fn func(ctx context.Context) error) {
	app.hooks = append(app.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every registered hook once, even when earlier hooks fail.
func (app *App) Shutdown(ctx context.Context) error {
	hooks := app.hooks
	app.hooks = nil

	var errs []error
	for _, h := range slices.Backward(hooks) {
		if err := h.fn(ctx); err != nil {
			if app.Logger != nil {
				app.Logger.ErrorContext(ctx, "Shutdown hook failed", attr.String("hook", h.name), attr.Error(err))
			}
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
