package logging

import (
	"context"
	"log/slog"
	"strings"
)

// FilterHandler drops records below a per-logger minimum level.
// Logger names are dotted ("svc.authsvc.token_service"); the longest
// configured prefix wins, falling back to Level.
type FilterHandler struct {
	h         slog.Handler
	level     slog.Leveler
	pkgLevels map[string]slog.Level
	name      string
}

var _ slog.Handler = (*FilterHandler)(nil)

// NewFilterHandler creates a FilterHandler wrapping h.
func NewFilterHandler(h slog.Handler, level slog.Leveler, pkgLevels map[string]slog.Level) *FilterHandler {
	return &FilterHandler{
		h:         h,
		level:     level,
		pkgLevels: pkgLevels,
	}
}

func (h *FilterHandler) minLevel() slog.Level {
	parts := strings.Split(h.name, ".")

	for i := len(parts); i > 0; i-- {
		if level, ok := h.pkgLevels[strings.Join(parts[:i], ".")]; ok {
			return level
		}
	}

	return h.level.Level()
}

// Enabled implements slog.Handler.Enabled.
func (h *FilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel() && h.h.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *FilterHandler) Handle(ctx context.Context, r slog.Record) error {
	//nolint:wrapcheck
	return h.h.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs and picks up the logger name.
func (h *FilterHandler) WithAttrs(attrs []slog.Attr) Handler {
	name := h.name

	for _, attr := range attrs {
		if attr.Key == loggerNameKey {
			name = attr.Value.String()
		}
	}

	return &FilterHandler{
		h:         h.h.WithAttrs(attrs),
		level:     h.level,
		pkgLevels: h.pkgLevels,
		name:      name,
	}
}

// WithGroup implements slog.Handler.WithGroup.
func (h *FilterHandler) WithGroup(name string) Handler {
	return &FilterHandler{
		h:         h.h.WithGroup(name),
		level:     h.level,
		pkgLevels: h.pkgLevels,
		name:      h.name,
	}
}
