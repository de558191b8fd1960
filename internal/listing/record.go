package listing

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is a schemaless row decoded from a JSON list endpoint.
type Record map[string]any

// ID formats the value under field as a row identifier. JSON numbers are rendered
// without exponent so 1e+06 style ids do not appear.
func (r Record) ID(field string) string {
	return r.String(field)
}

// Lookup returns the value under a dotted path such as "site.name".
func (r Record) Lookup(path string) any {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[part]
		case Record:
			cur = m[part]
		default:
			return nil
		}
	}
	return cur
}

// String renders the value under field as text; missing values yield "".
func (r Record) String(field string) string {
	switch v := r.Lookup(field).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// RecordID returns an ID extractor for records keyed by field.
func RecordID(field string) func(Record) string {
	if field == "" {
		field = "id"
	}
	return func(r Record) string {
		return r.ID(field)
	}
}
