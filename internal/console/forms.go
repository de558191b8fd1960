package console

import (
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// filterInput is one field of the filter dialog.
type filterInput struct {
	Key      string
	Label    string
	Kind     string
	Options  []string
	Required bool
	Value    string
	From     string
	To       string
	Error    string
}

func filterInputs(fields []listing.Field, draft listing.Filters, errs map[string]string) []filterInput {
	out := make([]filterInput, 0, len(fields))
	for _, f := range fields {
		in := filterInput{
			Key:      f.Key,
			Label:    f.Label,
			Kind:     string(f.Kind),
			Options:  f.Options,
			Required: f.Required,
			Error:    errs[f.Key],
		}
		if in.Label == "" {
			in.Label = f.Key
		}
		v := draft[f.Key]
		if v.Range != nil {
			in.From = isoDate(v.Range.From)
			in.To = isoDate(v.Range.To)
		} else {
			in.Value = v.Text
		}
		out = append(out, in)
	}
	return out
}

// parseFilters reads filter values keyed by field; date ranges use "<key>_from" and
// "<key>_to". Fields absent from form are skipped. Unparseable dates are reported per field
// and left out of the result.
func parseFilters(form url.Values, fields []listing.Field) (map[string]listing.Value, map[string]string) {
	values := map[string]listing.Value{}
	problems := map[string]string{}
	for _, f := range fields {
		if f.Kind != listing.FieldDateRange {
			if !form.Has(f.Key) {
				continue
			}
			values[f.Key] = listing.Text(strings.TrimSpace(form.Get(f.Key)))
			continue
		}
		if !form.Has(f.Key+"_from") && !form.Has(f.Key+"_to") {
			continue
		}
		from, errFrom := parseDate(form.Get(f.Key + "_from"))
		to, errTo := parseDate(form.Get(f.Key + "_to"))
		if errFrom != nil || errTo != nil {
			problems[f.Key] = "must use dates like 2024-01-31"
			continue
		}
		values[f.Key] = listing.Between(from, to)
	}
	return values, problems
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(listing.DateLayout, raw)
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(listing.DateLayout)
}

// actionParams collects the free-form action inputs, submitted as "param.<name>".
func actionParams(form url.Values) map[string]string {
	params := map[string]string{}
	for key, vals := range form {
		name, ok := strings.CutPrefix(key, "param.")
		if !ok || name == "" || len(vals) == 0 {
			continue
		}
		if v := strings.TrimSpace(vals[0]); v != "" {
			params[name] = v
		}
	}
	return params
}
