package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Sink receives one formatted log line per record.
type Sink interface {
	Send(msg string)
}

// NewWithSink is New plus a copy of every record, as a JSON line, sent to sink.
func NewWithSink(level string, w io.Writer, sink Sink) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	return slog.New(&teeHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(w, opts),
			slog.NewJSONHandler(sinkWriter{sink: sink}, opts),
		},
	})
}

// sinkWriter relies on slog handlers issuing one Write per record.
type sinkWriter struct {
	sink Sink
}

func (w sinkWriter) Write(p []byte) (int, error) {
	w.sink.Send(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: next}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: next}
}
