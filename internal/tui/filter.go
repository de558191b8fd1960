package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// ParseAssignments turns "key=value" pairs into filter values for fields. Date range
// fields take "from..to", where either side may be empty.
func ParseAssignments(fields []listing.Field, pairs []string) (map[string]listing.Value, error) {
	kinds := make(map[string]listing.FieldKind, len(fields))
	for _, f := range fields {
		kinds[f.Key] = f.Kind
	}
	out := make(map[string]listing.Value, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%q: expected key=value", pair)
		}
		kind, known := kinds[key]
		if !known {
			return nil, fmt.Errorf("%q: %w", key, listing.ErrUnknownField)
		}
		raw = strings.TrimSpace(raw)
		if kind != listing.FieldDateRange {
			out[key] = listing.Text(raw)
			continue
		}
		from, to, _ := strings.Cut(raw, "..")
		v, err := dateRange(from, to)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// ParseLine splits a filter prompt line on commas and parses the pairs.
func ParseLine(fields []listing.Field, line string) (map[string]listing.Value, error) {
	return ParseAssignments(fields, strings.Split(line, ","))
}

func dateRange(from, to string) (listing.Value, error) {
	var bounds [2]time.Time
	for i, raw := range []string{from, to} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t, err := time.Parse(listing.DateLayout, raw)
		if err != nil {
			return listing.Value{}, errors.New("dates must look like 2024-01-31")
		}
		bounds[i] = t
	}
	return listing.Between(bounds[0], bounds[1]), nil
}

// FormatFilters renders applied filters in the same form ParseLine accepts.
func FormatFilters(fields []listing.Field, applied listing.Filters) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := applied[f.Key]
		if !ok || v.IsZero() {
			continue
		}
		if v.Range == nil {
			parts = append(parts, f.Key+"="+v.Text)
			continue
		}
		parts = append(parts, f.Key+"="+isoDate(v.Range.From)+".."+isoDate(v.Range.To))
	}
	return strings.Join(parts, ", ")
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(listing.DateLayout)
}
