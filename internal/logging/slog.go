package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// Slog возвращает *slog.Logger поверх глобального zerolog — нужен библиотекам,
// которые хотят slog (у нас это sutureslog для событий супервизора).
func Slog() *slog.Logger {
	return slog.New(&slogHandler{l: Logger()})
}

type slogHandler struct {
	l      zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

func slogToZerolog(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZerolog(level) >= h.l.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, rec slog.Record) error {
	ev := h.l.WithLevel(slogToZerolog(rec.Level))
	for _, a := range h.attrs {
		ev = h.appendAttr(ev, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		ev = h.appendAttr(ev, a)
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &out
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	out := *h
	out.groups = append(append([]string{}, h.groups...), name)
	return &out
}

func (h *slogHandler) appendAttr(ev *zerolog.Event, a slog.Attr) *zerolog.Event {
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return ev.Str(key, a.Value.String())
	case slog.KindInt64:
		return ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		return ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		return ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		return ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		return ev.Time(key, a.Value.Time())
	default:
		return ev.Interface(key, a.Value.Any())
	}
}
