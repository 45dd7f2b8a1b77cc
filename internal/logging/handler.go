package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// SanitizingHandler runs every message and string attribute through the
// Sanitizer before handing the record on. It sits in front of whichever
// output handler is active, so phone numbers and secrets cannot leak through
// either format.
type SanitizingHandler struct {
	handler   slog.Handler
	sanitizer *Sanitizer
}

// NewSanitizingHandler wraps handler with attribute sanitization.
func NewSanitizingHandler(handler slog.Handler, sanitizer *Sanitizer) *SanitizingHandler {
	return &SanitizingHandler{
		handler:   handler,
		sanitizer: sanitizer,
	}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, h.sanitizer.Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, clean)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		cleaned[i] = h.sanitizeAttr(attr)
	}
	return &SanitizingHandler{
		handler:   h.handler.WithAttrs(cleaned),
		sanitizer: h.sanitizer,
	}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{
		handler:   h.handler.WithGroup(name),
		sanitizer: h.sanitizer,
	}
}

func (h *SanitizingHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue(h.sanitizer.Sanitize(a.Value.String())),
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		cleaned := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			cleaned[i] = h.sanitizeAttr(attr)
		}
		return slog.Attr{
			Key:   a.Key,
			Value: slog.GroupValue(cleaned...),
		}
	default:
		return a
	}
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
	ansiBold   = "\033[1m"
)

// Context attributes attached by the Logger's With helpers. The pretty
// handler renders these as a fixed line prefix instead of trailing key=value
// pairs, so scanning a busy log by component or owner stays feasible.
const (
	attrComponent = "component"
	attrOwnerID   = "owner_id"
	attrSyncID    = "sync_id"
)

// PrettyHandler is the terminal format:
//
//	15:04:05 INF [browser] owner=user-42 browser spawned pid=4242
//
// The bracketed component and the owner/sync tags always come before the
// message; everything else trails it.
type PrettyHandler struct {
	mu     sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewPrettyHandler creates a pretty handler writing to w.
func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{
		w:     w,
		level: level,
	}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var prefix, trailer strings.Builder

	consume := func(a slog.Attr) {
		if len(h.groups) == 0 && a.Value.Kind() == slog.KindString {
			switch a.Key {
			case attrComponent:
				fmt.Fprintf(&prefix, " %s[%s]%s", ansiBold, a.Value.String(), ansiReset)
				return
			case attrOwnerID:
				fmt.Fprintf(&prefix, " %sowner=%s%s", ansiGray, a.Value.String(), ansiReset)
				return
			case attrSyncID:
				fmt.Fprintf(&prefix, " %ssync=%s%s", ansiGray, a.Value.String(), ansiReset)
				return
			}
		}
		trailer.WriteString(h.formatAttr(a))
	}

	for _, attr := range h.attrs {
		consume(attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		consume(a)
		return true
	})

	_, err := fmt.Fprintf(h.w, "%s %s%s %s%s\n",
		r.Time.Format("15:04:05"),
		h.formatLevel(r.Level),
		prefix.String(),
		r.Message,
		trailer.String(),
	)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PrettyHandler{
		w:      h.w,
		level:  h.level,
		attrs:  merged,
		groups: h.groups,
	}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	return &PrettyHandler{
		w:      h.w,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
}

func (h *PrettyHandler) formatLevel(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return ansiGray + "DBG" + ansiReset
	case slog.LevelInfo:
		return ansiBlue + "INF" + ansiReset
	case slog.LevelWarn:
		return ansiYellow + "WRN" + ansiReset
	case slog.LevelError:
		return ansiRed + "ERR" + ansiReset
	default:
		return level.String()[:3]
	}
}

func (h *PrettyHandler) formatAttr(a slog.Attr) string {
	if a.Value.Kind() == slog.KindGroup {
		var result string
		for _, attr := range a.Value.Group() {
			result += h.formatAttr(attr)
		}
		return result
	}

	key := a.Key
	for i := len(h.groups) - 1; i >= 0; i-- {
		key = h.groups[i] + "." + key
	}
	return fmt.Sprintf(" %s%s%s=%v", ansiCyan, key, ansiReset, a.Value.Any())
}
