package listing

import (
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldKind enumerates the filter inputs a view can declare.
type FieldKind string

const (
	// FieldText is a free text input.
	FieldText FieldKind = "text"
	// FieldSelect is a single choice out of Options.
	FieldSelect FieldKind = "select"
	// FieldDateRange is a from/to date pair.
	FieldDateRange FieldKind = "date_range"
)

// Field declares one filter input of a view.
type Field struct {
	Key      string
	Label    string
	Kind     FieldKind
	Options  []string
	Required bool
	Param    Param
}

// ResetPolicy decides whether Reset promotes the defaults straight to the applied filters.
type ResetPolicy int

const (
	// ResetKeepsApplied restores the draft only; an explicit Apply is still required.
	ResetKeepsApplied ResetPolicy = iota
	// ResetApplies restores the draft and applies it immediately.
	ResetApplies
)

// DefaultsFunc produces the default filter draft of a view.
type DefaultsFunc func() Filters

// NoDefaults yields an empty draft.
func NoDefaults() Filters {
	return Filters{}
}

// TrailingWindow builds defaults holding a date range of the given months ending today.
func TrailingWindow(key string, months int, now func() time.Time) DefaultsFunc {
	if now == nil {
		now = time.Now
	}
	return func() Filters {
		t := now()
		to := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return Filters{key: Between(to.AddDate(0, -months, 0), to)}
	}
}

type rangeRule struct {
	From time.Time
	To   time.Time `validate:"omitempty,gtefield=From"`
}

var validate = validator.New()

// FilterHolder keeps the draft being edited apart from the applied snapshot that drives
// fetching. It is not safe for concurrent use.
type FilterHolder struct {
	fields   map[string]Field
	order    []string
	defaults DefaultsFunc
	policy   ResetPolicy
	draft    Filters
	applied  Filters
}

// NewFilterHolder returns a holder whose draft and applied filters both start at the defaults.
func NewFilterHolder(fields []Field, defaults DefaultsFunc, policy ResetPolicy) *FilterHolder {
	if defaults == nil {
		defaults = NoDefaults
	}
	h := &FilterHolder{
		fields:   make(map[string]Field, len(fields)),
		defaults: defaults,
		policy:   policy,
	}
	for _, f := range fields {
		if f.Kind == "" {
			f.Kind = FieldText
		}
		if f.Param.Key == "" {
			f.Param = ParamFor(f.Key)
		}
		h.fields[f.Key] = f
		h.order = append(h.order, f.Key)
	}
	h.applied = defaults().Clone()
	h.draft = h.applied.Clone()
	return h
}

// Fields returns the declared fields in declaration order.
func (h *FilterHolder) Fields() []Field {
	out := make([]Field, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, h.fields[k])
	}
	return out
}

// Params returns the query parameter names per field.
func (h *FilterHolder) Params() map[string]Param {
	out := make(map[string]Param, len(h.fields))
	for k, f := range h.fields {
		out[k] = f.Param
	}
	return out
}

// Policy returns the reset policy.
func (h *FilterHolder) Policy() ResetPolicy {
	return h.policy
}

// Draft returns a copy of the pending filters.
func (h *FilterHolder) Draft() Filters {
	return h.draft.Clone()
}

// Applied returns a copy of the filters currently driving the list.
func (h *FilterHolder) Applied() Filters {
	return h.applied.Clone()
}

// SetField changes the draft only.
func (h *FilterHolder) SetField(key string, v Value) error {
	if _, ok := h.fields[key]; !ok {
		return ErrUnknownField
	}
	if v.IsZero() {
		delete(h.draft, key)
		return nil
	}
	if v.Range != nil {
		r := *v.Range
		v.Range = &r
	}
	h.draft[key] = v
	return nil
}

// Apply validates the draft and promotes it. Invalid drafts leave the applied filters untouched.
func (h *FilterHolder) Apply() (bool, error) {
	if err := h.Validate(); err != nil {
		return false, err
	}
	changed := !h.applied.Equal(h.draft)
	h.applied = h.draft.Clone()
	return changed, nil
}

// Reset restores the draft to the defaults and reports whether the applied filters changed.
func (h *FilterHolder) Reset() bool {
	h.draft = h.defaults().Clone()
	if h.policy != ResetApplies {
		return false
	}
	changed := !h.applied.Equal(h.draft)
	h.applied = h.draft.Clone()
	return changed
}

// Cancel discards the draft in favour of the applied filters.
func (h *FilterHolder) Cancel() {
	h.draft = h.applied.Clone()
}

// Validate checks the draft without applying it.
func (h *FilterHolder) Validate() error {
	problems := map[string]string{}
	for _, key := range h.order {
		f := h.fields[key]
		v, ok := h.draft[key]
		if !ok || v.IsZero() {
			if f.Required {
				problems[key] = "is required"
			}
			continue
		}
		switch f.Kind {
		case FieldDateRange:
			if v.Range == nil {
				problems[key] = "must be a date range"
				continue
			}
			if err := validate.Struct(rangeRule{From: v.Range.From, To: v.Range.To}); err != nil {
				problems[key] = "end date must not be before start date"
			}
		case FieldSelect:
			if v.Range != nil || !slices.Contains(f.Options, v.Text) {
				problems[key] = "must be one of " + strings.Join(f.Options, ", ")
			}
		default:
			if v.Range != nil {
				problems[key] = "must be text"
			}
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}
