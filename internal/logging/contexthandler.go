package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes to add to a record, for example the
// session id or the active source. It may read values from ctx.
type ContextProvider func(ctx context.Context) []slog.Attr

// ContextHandler wraps another handler and injects dynamic context attributes.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		provider: provider,
	}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider(ctx)...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:    h.inner.WithAttrs(attrs),
		provider: h.provider,
	}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:    h.inner.WithGroup(name),
		provider: h.provider,
	}
}

type sessionKey struct{}

// WithSessionID stores the session id in ctx for SessionAttrs.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionAttrs is a ContextProvider that adds the session id stored by
// WithSessionID, falling back to fallback when ctx carries none.
func SessionAttrs(fallback func() string) ContextProvider {
	return func(ctx context.Context) []slog.Attr {
		if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
			return []slog.Attr{slog.String("session", id)}
		}
		if fallback != nil {
			if id := fallback(); id != "" {
				return []slog.Attr{slog.String("session", id)}
			}
		}
		return nil
	}
}
