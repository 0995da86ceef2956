package utils

import (
	"context"
	"log/slog"
)

// MultiLogHandler fans each record out to every child handler that is
// enabled for its level. The last child error wins; earlier children
// still receive the record.
type MultiLogHandler struct {
	children []slog.Handler
}

func NewMultiLogHandler(children ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{children: children}
}

func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, c := range h.children {
		if c.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, c := range h.children {
		if !c.Enabled(ctx, r.Level) {
			continue
		}
		if herr := c.Handle(ctx, r.Clone()); herr != nil {
			err = herr
		}
	}
	return err
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.apply(func(c slog.Handler) slog.Handler { return c.WithAttrs(attrs) })
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	return h.apply(func(c slog.Handler) slog.Handler { return c.WithGroup(name) })
}

func (h *MultiLogHandler) apply(fn func(slog.Handler) slog.Handler) slog.Handler {
	out := make([]slog.Handler, len(h.children))
	for i, c := range h.children {
		out[i] = fn(c)
	}
	return NewMultiLogHandler(out...)
}
