// Package listing implements filtered, selectable and paginated list views over a
// remote resource.
package listing

import (
	"net/url"
	"sort"
	"strconv"
	"time"
)

// DefaultPageSize is used when a view does not configure its own page size.
const DefaultPageSize = 15

// DateLayout is the wire format of date filter values.
const DateLayout = "2006-01-02"

// DateRange is an inclusive calendar range. Zero bounds are open.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Value is a single filter value: either free text/enum or a date range.
type Value struct {
	Text  string     `json:"text,omitempty"`
	Range *DateRange `json:"range,omitempty"`
}

// Text returns a text filter value.
func Text(s string) Value {
	return Value{Text: s}
}

// Between returns a date range filter value.
func Between(from, to time.Time) Value {
	return Value{Range: &DateRange{From: from, To: to}}
}

// IsZero reports whether the value carries nothing to filter by.
func (v Value) IsZero() bool {
	if v.Range != nil {
		return v.Range.From.IsZero() && v.Range.To.IsZero()
	}
	return v.Text == ""
}

// Equal compares two values.
func (v Value) Equal(o Value) bool {
	if v.Text != o.Text {
		return false
	}
	if (v.Range == nil) != (o.Range == nil) {
		return false
	}
	if v.Range == nil {
		return true
	}
	return v.Range.From.Equal(o.Range.From) && v.Range.To.Equal(o.Range.To)
}

// Filters maps a filter key to its value.
type Filters map[string]Value

// Clone returns a deep copy.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		if v.Range != nil {
			r := *v.Range
			v.Range = &r
		}
		out[k] = v
	}
	return out
}

// Equal reports whether both filter sets carry the same non-empty values.
func (f Filters) Equal(o Filters) bool {
	for k, v := range f {
		if v.IsZero() {
			continue
		}
		if !v.Equal(o[k]) {
			return false
		}
	}
	for k, v := range o {
		if v.IsZero() {
			continue
		}
		if _, ok := f[k]; !ok {
			return false
		}
	}
	return true
}

// Keys returns the keys carrying a value, sorted.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k, v := range f {
		if !v.IsZero() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Param names the query parameters a filter key is sent as.
type Param struct {
	Key  string
	From string
	To   string
}

// ParamFor returns the default parameter names for key.
func ParamFor(key string) Param {
	return Param{Key: key, From: key + "_from", To: key + "_to"}
}

// Encode writes the filters into vals. names overrides default parameter names per key.
func (f Filters) Encode(vals url.Values, names map[string]Param) {
	for _, k := range f.Keys() {
		v := f[k]
		p, ok := names[k]
		if !ok {
			p = ParamFor(k)
		}
		if v.Range == nil {
			vals.Set(p.Key, v.Text)
			continue
		}
		if !v.Range.From.IsZero() {
			vals.Set(p.From, v.Range.From.Format(DateLayout))
		}
		if !v.Range.To.IsZero() {
			vals.Set(p.To, v.Range.To.Format(DateLayout))
		}
	}
}

// Query is the request for one page of a list view.
type Query struct {
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Filters  Filters `json:"filters,omitempty"`
}

// Normalize clamps page and page size to their minimums.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.Filters == nil {
		q.Filters = Filters{}
	}
	return q
}

// Values encodes the query as URL parameters.
func (q Query) Values(names map[string]Param) url.Values {
	q = q.Normalize()
	vals := url.Values{}
	q.Filters.Encode(vals, names)
	vals.Set("page", strconv.Itoa(q.Page))
	vals.Set("per_page", strconv.Itoa(q.PageSize))
	return vals
}

// ListPage is one fetched page plus pagination bookkeeping.
type ListPage[T any] struct {
	Items               []T  `json:"items"`
	Page                int  `json:"page"`
	PageSize            int  `json:"page_size"`
	EstimatedTotalPages int  `json:"estimated_total_pages"`
	HasMore             bool `json:"has_more"`
}

// TotalCountEstimate is an upper bound derived from the page estimate, not an authoritative count.
func (p ListPage[T]) TotalCountEstimate() int {
	return p.EstimatedTotalPages * p.PageSize
}

// Empty reports whether the page carries no items.
func (p ListPage[T]) Empty() bool {
	return len(p.Items) == 0
}

// Batch is the raw result of one fetch before normalization.
type Batch[T any] struct {
	Items []T
	// TotalPages is set when the backend reports an authoritative page count.
	TotalPages int
}

// BuildPage normalizes a batch into a ListPage and returns the updated estimate.
func BuildPage[T any](q Query, b Batch[T], prev Estimation) (ListPage[T], Estimation) {
	q = q.Normalize()
	items := b.Items
	if len(items) > q.PageSize {
		items = items[:q.PageSize]
	}
	if items == nil {
		items = []T{}
	}
	est := Estimate(q.Page, q.PageSize, len(items), prev)
	if b.TotalPages > 0 {
		est = Estimation{Pages: b.TotalPages, Settled: true}
	}
	return ListPage[T]{
		Items:               items,
		Page:                q.Page,
		PageSize:            q.PageSize,
		EstimatedTotalPages: est.Pages,
		HasMore:             len(items) == q.PageSize,
	}, est
}
