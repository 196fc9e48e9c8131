package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// observe runs fn under handler name and emits one handler.handled line.
func observe(c tele.Context, name string, fn func() error, extra ...slog.Attr) error {
	start := time.Now()
	tghelpers.WithHandler(c, name)
	err := fn()
	summarize(c, name, start, logger.Status(err), err, extra...)
	return err
}

// skipped records an update that had no handler.
func skipped(c tele.Context, name string) {
	summarize(c, name, time.Now(), "skip", nil)
}

func summarize(c tele.Context, name string, start time.Time, status string, err error, extra ...slog.Attr) {
	attrs := make([]slog.Attr, 0, 6+len(extra))
	attrs = append(attrs,
		slog.String("status", status),
		slog.String("outcome", logger.Status(err)),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(netutil.RedactError(err), 256)),
			slog.String("err_code", netutil.ClassifyError(err)),
		)
	}
	attrs = append(attrs, extra...)
	logger.Info(tghelpers.WithHandler(c, name), "tg", "handler.handled", attrs...)
}

// normalizeHandlerName turns "/Start" or "Back To Menu" into a log-friendly
// snake_case name.
func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(name), "_")
}
