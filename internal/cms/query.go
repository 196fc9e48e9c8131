package cms

import (
	"net/url"
	"sort"
	"strings"
)

// Query builds Strapi collection query parameters.
type Query struct {
	filters  map[string]string
	populate string
}

// NewQuery returns an empty query.
func NewQuery() *Query {
	return &Query{filters: map[string]string{}}
}

// Eq adds an equality filter. Dotted fields address relations,
// e.g. "cart.documentId" becomes filters[cart][documentId][$eq].
func (q *Query) Eq(field, value string) *Query {
	var b strings.Builder
	b.WriteString("filters")
	for _, part := range strings.Split(field, ".") {
		b.WriteString("[" + part + "]")
	}
	b.WriteString("[$eq]")
	q.filters[b.String()] = value
	return q
}

// Populate sets the relation population, "*" for all.
func (q *Query) Populate(fields string) *Query {
	q.populate = fields
	return q
}

// Values renders the query for a request URL.
func (q *Query) Values() url.Values {
	v := url.Values{}
	if q == nil {
		return v
	}
	for k, val := range q.filters {
		v.Set(k, val)
	}
	if q.populate != "" {
		v.Set("populate", q.populate)
	}
	return v
}

// String renders a stable form for logs. Filter values are omitted.
func (q *Query) String() string {
	if q == nil {
		return ""
	}
	keys := make([]string, 0, len(q.filters))
	for k := range q.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if q.populate != "" {
		keys = append(keys, "populate="+q.populate)
	}
	return strings.Join(keys, "&")
}
