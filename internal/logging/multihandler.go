package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Route sends records to Handler. When Min is set, records below it are
// dropped before the handler's own level check.
type Route struct {
	Handler slog.Handler
	Min     slog.Leveler
}

func (r Route) accepts(ctx context.Context, level slog.Level) bool {
	if r.Min != nil && level < r.Min.Level() {
		return false
	}
	return r.Handler.Enabled(ctx, level)
}

// Fanout delivers every record to each route that accepts its level. The
// frame loop logs at debug every tick; routes keep that out of sinks such
// as the OTel bridge while the log file still receives it.
type Fanout struct {
	routes []Route
}

// NewFanout drops routes without a handler.
func NewFanout(routes ...Route) *Fanout {
	kept := make([]Route, 0, len(routes))
	for _, r := range routes {
		if r.Handler != nil {
			kept = append(kept, r)
		}
	}
	return &Fanout{routes: kept}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, r := range f.routes {
		if r.accepts(ctx, level) {
			return true
		}
	}
	return false
}

// Handle keeps delivering after a route fails and returns every failure.
func (f *Fanout) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, r := range f.routes {
		if !r.accepts(ctx, rec.Level) {
			continue
		}
		if err := r.Handler.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	routes := make([]Route, len(f.routes))
	for i, r := range f.routes {
		routes[i] = Route{Handler: fn(r.Handler), Min: r.Min}
	}
	return &Fanout{routes: routes}
}
