// Package audit writes the consent audit trail as JSON lines.
package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/httpx"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

var ErrEmptyAction = errors.New("audit: action is required")

// Logger is a service.Auditor that emits one JSON record per action,
// enriched with the request id and authenticated user found on the context.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

var _ service.Auditor = (*Logger)(nil)

// New writes to out, or stdout when out is nil.
func New(out io.Writer, service string) *Logger {
	if out == nil {
		out = os.Stdout
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			// the event time is carried explicitly
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return &Logger{
		logger: slog.New(h).With("type", "audit", "service", service),
		now:    time.Now,
	}
}

// WithClock swaps the clock, for tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	cp := *l
	cp.now = now
	return &cp
}

func (l *Logger) LogAction(ctx context.Context, action string, data any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrEmptyAction
	}

	attrs := []slog.Attr{
		slog.String("ts", l.now().UTC().Format(time.RFC3339Nano)),
		slog.String("event", action),
	}
	if rid, ok := slogx.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if uid, ok := httpx.UserIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("user_id", uid))
	}
	if data != nil {
		attrs = append(attrs, slog.Any("fields", data))
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
