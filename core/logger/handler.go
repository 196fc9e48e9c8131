package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as single lines with a stable key order.
type structuredHandler struct {
	cfg    handlerConfig
	rank   map[string]int
	prefix string
	preset []field
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if len(cfg.keyOrder) == 0 {
		cfg.keyOrder = defaultKeyOrder
	}
	rank := make(map[string]int, len(cfg.keyOrder))
	for i, k := range cfg.keyOrder {
		if _, dup := rank[k]; !dup {
			rank[k] = i
		}
	}
	return &structuredHandler{cfg: cfg, rank: rank}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	jsonOut := h.cfg.format == formatJSON

	rec := newRecord(16 + len(h.preset))
	ts := r.Time.UTC()
	rec.set("ts", ts.Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z07:00"))
	rec.set("level", normalizeLevel(r.Level.String()))
	if jsonOut {
		rec.set("ts_unix_nano", ts.UnixNano())
	}
	for _, f := range h.preset {
		rec.set(f.key, f.val)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(rec, h.prefix, a)
		return true
	})
	rec.fillFromContext(ctx)
	rec.finish(r.Message, jsonOut)

	var line []byte
	if jsonOut {
		var err error
		if line, err = encodeJSON(rec.sorted(h.rank)); err != nil {
			return err
		}
	} else {
		line = encodeKV(rec.sorted(h.rank))
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	rec := newRecord(len(h.preset) + len(attrs))
	for _, f := range h.preset {
		rec.set(f.key, f.val)
	}
	for _, a := range attrs {
		h.put(rec, h.prefix, a)
	}
	next := *h
	next.preset = rec.fields
	return &next
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = dotted(h.prefix, name)
	return &next
}

// put flattens groups into dotted keys.
func (h *structuredHandler) put(rec *record, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = dotted(prefix, a.Key)
		}
		for _, child := range v.Group() {
			h.put(rec, sub, child)
		}
		return
	}
	key := dotted(prefix, a.Key)
	if key == "" {
		return
	}
	if k, val, ok := scalar(key, v); ok {
		rec.set(k, val)
	}
}

func dotted(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// scalar converts v into a JSON-friendly value. Durations are emitted as
// whole milliseconds under a *_ms key.
func scalar(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return "", nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	case string:
		return key, strings.TrimSpace(x), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	if key == "duration" {
		return "duration_ms"
	}
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
