package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Graylog2/go-gelf/gelf"
)

// GelfWriter is the part of *gelf.Writer the handler needs.
type GelfWriter interface {
	WriteMessage(m *gelf.Message) error
}

// NewGraylogWriter dials the Graylog UDP input at addr.
func NewGraylogWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("graylog writer %s: %w", addr, err)
	}
	return w, nil
}

// GelfHandler sends records as GELF messages with attributes as extra
// fields.
type GelfHandler struct {
	w        GelfWriter
	facility string
	host     string
	level    slog.Leveler
	attrs    []slog.Attr
	group    string
	mu       *sync.Mutex
}

func NewGelfHandler(w GelfWriter, facility string, level slog.Leveler) *GelfHandler {
	host, _ := os.Hostname()
	return &GelfHandler{
		w:        w,
		facility: facility,
		host:     host,
		level:    level,
		mu:       &sync.Mutex{},
	}
}

func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addExtra(extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addExtra(extra, h.group, a)
		return true
	})

	msg := &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.w.WriteMessage(msg)
}

func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

// GELF reserves the leading underscore for additional fields.
func addExtra(extra map[string]any, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			addExtra(extra, key, ga)
		}
		return
	}
	if key == "" || key == "id" {
		return
	}
	switch v.Kind() {
	case slog.KindString:
		extra["_"+key] = v.String()
	case slog.KindInt64:
		extra["_"+key] = v.Int64()
	case slog.KindUint64:
		extra["_"+key] = v.Uint64()
	case slog.KindFloat64:
		extra["_"+key] = v.Float64()
	case slog.KindBool:
		extra["_"+key] = v.Bool()
	default:
		extra["_"+key] = fmt.Sprint(v.Any())
	}
}

// syslogLevel maps slog levels onto syslog severities.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}
