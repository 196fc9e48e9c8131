// Package logger is the process-wide structured logger. Every line carries a
// component and an event name plus the update metadata found in the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/buildinfo"
	coreconfig "github.com/m3rciful/shopbot/core/config"
)

var (
	initOnce sync.Once
	stopOnce sync.Once

	sink    *asyncWriter
	closers []io.Closer

	level         slog.LevelVar
	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the root logger. Until InitLogger runs it discards everything.
	L *slog.Logger

	TG      *slog.Logger // Telegram transport
	TWire   *slog.Logger // handler and command wiring
	CMS     *slog.Logger // remote content service
	Engine  *slog.Logger // conversation state machine
	Session *slog.Logger // session store and locks
	App     *slog.Logger // process lifecycle
)

func init() {
	setRoot(slog.New(slog.DiscardHandler))
}

func setRoot(root *slog.Logger) {
	L = root
	TG = root.With("component", "tg")
	TWire = root.With("component", "tg.wire")
	CMS = root.With("component", "cms")
	Engine = root.With("component", "engine")
	Session = root.With("component", "session")
	App = root.With("component", "app")
}

// settings is the resolved logging configuration.
type settings struct {
	level    slog.Level
	format   logFormat
	order    []string
	num, den int
	profile  string
}

func resolve(cfg *coreconfig.Config) settings {
	s := settings{
		level:   slog.LevelInfo,
		format:  formatJSON,
		order:   defaultKeyOrder,
		num:     1,
		den:     50,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.order = order
	}
	if num, den, ok := parseRatio(lc.DebugSample); ok {
		s.num, s.den = num, den
	}
	return s
}

// splitKeys parses a comma separated key order; "default" keeps the built-in one.
func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// InitLogger installs the structured logger. Calls after the first are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		s := resolve(cfg)
		level.Set(s.level)
		debugSampler.Set(s.num, s.den)
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")

		var outputs []io.Writer
		outputs, closers, err = openOutputs(cfg)
		sink = newAsyncWriter(outputs, 64<<10)

		root := slog.New(newStructuredHandler(handlerConfig{
			level:    &level,
			writer:   sink,
			format:   s.format,
			keyOrder: s.order,
		}))
		slog.SetDefault(root)
		setRoot(root)

		attrs := []slog.Attr{
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		}
		if cfg != nil {
			attrs = append(attrs,
				slog.String("session_backend", cfg.Session.Backend),
				slog.String("mode", cfg.Telegram.RunMode),
			)
		}
		Info(context.Background(), "app", "startup", attrs...)
	})
	return err
}

// openOutputs always includes stdout. A log file is added when both dir and
// file name are set; failing to open it is reported but not fatal.
func openOutputs(cfg *coreconfig.Config) ([]io.Writer, []io.Closer, error) {
	outputs := []io.Writer{os.Stdout}
	if cfg == nil {
		return outputs, nil, nil
	}
	dir, name := strings.TrimSpace(cfg.Logging.Dir), strings.TrimSpace(cfg.Logging.BotFile)
	if dir == "" || name == "" {
		return outputs, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return outputs, nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return outputs, nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return append(outputs, f), []io.Closer{f}, nil
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Shutdown drains pending lines and closes log files. Only the first call
// does any work.
func Shutdown() error {
	var err error
	stopOnce.Do(func() {
		if sink == nil {
			return
		}
		errs := []error{sink.Flush(), sink.Close()}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// LogEvent writes attrs under event through logg, or the context logger when
// logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !logg.Enabled(ctx, lvl) {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

// Component scopes L to name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

func Event(ctx context.Context, component string, lvl slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), lvl, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug gates high-volume debug lines. TRACE=1 lets all through.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
