// Package render turns list pages into display-ready tables.
package render

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

const (
	dateDisplay     = "02 Jan 2006"
	datetimeDisplay = "02 Jan 2006 15:04"
	placeholder     = "-"
)

// Formatter renders cell values for one locale. It is not safe for concurrent use.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	title   cases.Caser
	loc     *time.Location
}

// NewFormatter builds a formatter for a BCP 47 locale such as "en-IN". Unknown locales fall
// back to English.
func NewFormatter(locale string, loc *time.Location) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		title:   cases.Title(tag),
		loc:     loc,
	}
}

// Cell formats the value under key using format.
func (f *Formatter) Cell(r listing.Record, key, format string) string {
	raw := r.Lookup(key)
	if raw == nil {
		return placeholder
	}
	kind, arg, _ := strings.Cut(format, ":")
	switch kind {
	case "date":
		return f.date(raw, dateDisplay)
	case "datetime":
		return f.date(raw, datetimeDisplay)
	case "number":
		if n, ok := toFloat(raw); ok {
			return f.printer.Sprint(number.Decimal(n))
		}
	case "currency":
		if n, ok := toFloat(raw); ok {
			return f.money(arg, n)
		}
	case "status":
		s := strings.TrimSpace(r.String(key))
		if s == "" {
			return placeholder
		}
		return f.title.String(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	case "bool":
		switch v := raw.(type) {
		case bool:
			return yesNo(v)
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return yesNo(b)
			}
		}
	}
	if s := r.String(key); s != "" {
		return s
	}
	return placeholder
}

func (f *Formatter) money(iso string, n float64) string {
	amount := f.printer.Sprint(number.Decimal(n, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	unit, err := currency.ParseISO(iso)
	if err != nil {
		return amount
	}
	return unit.String() + " " + amount
}

func (f *Formatter) date(raw any, layout string) string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return placeholder
	}
	for _, in := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", listing.DateLayout} {
		if t, err := time.Parse(in, s); err == nil {
			if in == listing.DateLayout {
				return t.Format(dateDisplay)
			}
			return t.In(f.loc).Format(layout)
		}
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
