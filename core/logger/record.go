package logger

import (
	"context"
	"sort"
)

type field struct {
	key string
	val any
}

// record is an insertion-ordered field set where later writes win.
type record struct {
	fields []field
	index  map[string]int
}

func newRecord(capacity int) *record {
	return &record{
		fields: make([]field, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

func (r *record) set(key string, val any) {
	if i, ok := r.index[key]; ok {
		r.fields[i].val = val
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, field{key: key, val: val})
}

func (r *record) has(key string) bool {
	_, ok := r.index[key]
	return ok
}

func (r *record) str(key string) string {
	if i, ok := r.index[key]; ok {
		s, _ := r.fields[i].val.(string)
		return s
	}
	return ""
}

func (r *record) setDefault(key string, val any) {
	if !r.has(key) {
		r.set(key, val)
	}
}

func (r *record) fillFromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		r.setDefault("rid", rid)
	}
	if id := UpdateIDFrom(ctx); id != 0 {
		r.setDefault("update_id", id)
	}
	if id := UserIDFrom(ctx); id != 0 {
		r.setDefault("user_id", id)
	}
	if id := ChatIDFrom(ctx); id != 0 {
		r.setDefault("chat_id", id)
	}
	if name := HandlerFrom(ctx); name != "" {
		r.setDefault("handler", name)
	}
}

// finish applies defaults and enum rules. Empty strings and unknown outcomes
// are dropped; statuses are lower-cased.
func (r *record) finish(msg string, keepFullRID bool) {
	if rid := r.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			r.set("rid", short)
			if keepFullRID {
				r.setDefault("rid_full", rid)
			}
		}
	}
	if r.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		r.set("event", msg)
	}
	if r.str("component") == "" {
		r.set("component", "app")
	}
	if s := r.str("status"); s != "" {
		v, _ := normalizeEnum(s, allowedStatus)
		r.set("status", v)
	}
	if o := r.str("outcome"); o != "" {
		if v, ok := normalizeEnum(o, allowedOutcome); ok {
			r.set("outcome", v)
		} else {
			r.set("outcome", "")
		}
	}
}

// sorted returns the non-empty fields: ranked keys first, then the rest
// alphabetically.
func (r *record) sorted(rank map[string]int) []field {
	out := make([]field, 0, len(r.fields))
	for _, f := range r.fields {
		if f.val == nil {
			continue
		}
		if s, ok := f.val.(string); ok && s == "" {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i].key]
		rj, jok := rank[out[j].key]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i].key < out[j].key
	})
	return out
}
