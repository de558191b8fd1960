// Package catalog declares the list views the console serves: which resource each view
// lists, how its responses are shaped, its columns, filters and panel actions.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/facilitydesk/internal/backend"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

//go:embed default.toml
var defaultCatalog []byte

// ErrUnknownView is returned when a view name is not declared.
var ErrUnknownView = errors.New("catalog: unknown view")

// Catalog is the set of declared views. ResetApplies selects the one reset policy shared by
// every filter dialog.
type Catalog struct {
	ResetApplies bool   `toml:"reset_applies" yaml:"reset_applies"`
	Views        []View `toml:"views" yaml:"views"`
}

// View declares one list view.
type View struct {
	Name            string              `toml:"name" yaml:"name"`
	Title           string              `toml:"title" yaml:"title"`
	Resource        string              `toml:"resource" yaml:"resource"`
	IDField         string              `toml:"id_field" yaml:"id_field"`
	PageSize        int                 `toml:"page_size" yaml:"page_size"`
	Envelope        string              `toml:"envelope" yaml:"envelope"`
	ItemsKey        string              `toml:"items_key" yaml:"items_key"`
	TotalPagesKey   string              `toml:"total_pages_key" yaml:"total_pages_key"`
	Columns         []Column            `toml:"columns" yaml:"columns"`
	Filters         []Field             `toml:"filters" yaml:"filters"`
	DefaultWindow   *Window             `toml:"default_window" yaml:"default_window"`
	RetainSelection bool                `toml:"retain_selection" yaml:"retain_selection"`
	EmptyMessage    string              `toml:"empty_message" yaml:"empty_message"`
	Actions         map[string]Endpoint `toml:"actions" yaml:"actions"`
}

// Column is one table column.
type Column struct {
	Key    string `toml:"key" yaml:"key"`
	Label  string `toml:"label" yaml:"label"`
	Format string `toml:"format" yaml:"format"`
}

// Field is one filter input.
type Field struct {
	Key       string   `toml:"key" yaml:"key"`
	Label     string   `toml:"label" yaml:"label"`
	Kind      string   `toml:"kind" yaml:"kind"`
	Param     string   `toml:"param" yaml:"param"`
	FromParam string   `toml:"from_param" yaml:"from_param"`
	ToParam   string   `toml:"to_param" yaml:"to_param"`
	Options   []string `toml:"options" yaml:"options"`
	Required  bool     `toml:"required" yaml:"required"`
}

// Window pre-fills a date range filter with the trailing Months up to today.
type Window struct {
	Field  string `toml:"field" yaml:"field"`
	Months int    `toml:"months" yaml:"months"`
}

// Endpoint is the backend call behind a panel action. Path may contain {id}; a Batch
// endpoint receives every selected id in one request.
type Endpoint struct {
	Method string `toml:"method" yaml:"method"`
	Path   string `toml:"path" yaml:"path"`
	Batch  bool   `toml:"batch" yaml:"batch"`
}

// PathFor substitutes id into the endpoint path.
func (e Endpoint) PathFor(id string) string {
	return strings.ReplaceAll(e.Path, "{id}", id)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog, ".toml")
}

// Load reads a catalog file; the extension selects the format.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes and validates a catalog in the format named by ext.
func Parse(raw []byte, ext string) (*Catalog, error) {
	var c Catalog
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("catalog: decode toml: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("catalog: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("catalog: unsupported format %q", ext)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) normalize() {
	for i := range c.Views {
		v := &c.Views[i]
		if v.IDField == "" {
			v.IDField = "id"
		}
		if v.Envelope == "" {
			v.Envelope = backend.EnvelopeArray
		}
		if v.Title == "" {
			v.Title = v.Name
		}
		for j := range v.Columns {
			if v.Columns[j].Format == "" {
				v.Columns[j].Format = "text"
			}
			if v.Columns[j].Label == "" {
				v.Columns[j].Label = v.Columns[j].Key
			}
		}
		for j := range v.Filters {
			if v.Filters[j].Kind == "" {
				v.Filters[j].Kind = string(listing.FieldText)
			}
		}
	}
}

var (
	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	formatPattern = regexp.MustCompile(`^(text|date|datetime|number|status|bool|currency:[A-Z]{3})$`)
)

// Validate reports every problem in the catalog at once.
func (c *Catalog) Validate() error {
	var errs []error
	if len(c.Views) == 0 {
		errs = append(errs, errors.New("catalog: no views declared"))
	}
	seen := map[string]bool{}
	for _, v := range c.Views {
		prefix := fmt.Sprintf("catalog: view %q", v.Name)
		if !namePattern.MatchString(v.Name) {
			errs = append(errs, fmt.Errorf("%s: invalid name", prefix))
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Errorf("%s: declared twice", prefix))
		}
		seen[v.Name] = true
		if strings.Trim(v.Resource, "/") == "" {
			errs = append(errs, fmt.Errorf("%s: resource required", prefix))
		}
		switch v.Envelope {
		case backend.EnvelopeArray:
		case backend.EnvelopeObject:
			if v.ItemsKey == "" {
				errs = append(errs, fmt.Errorf("%s: object envelope needs items_key", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown envelope %q", prefix, v.Envelope))
		}
		if len(v.Columns) == 0 {
			errs = append(errs, fmt.Errorf("%s: no columns", prefix))
		}
		for _, col := range v.Columns {
			if !formatPattern.MatchString(col.Format) {
				errs = append(errs, fmt.Errorf("%s: column %q has unknown format %q", prefix, col.Key, col.Format))
			}
		}
		keys := map[string]bool{}
		for _, f := range v.Filters {
			if f.Key == "" || keys[f.Key] {
				errs = append(errs, fmt.Errorf("%s: filter key %q empty or repeated", prefix, f.Key))
			}
			keys[f.Key] = true
			switch listing.FieldKind(f.Kind) {
			case listing.FieldText, listing.FieldDateRange:
			case listing.FieldSelect:
				if len(f.Options) == 0 {
					errs = append(errs, fmt.Errorf("%s: select filter %q has no options", prefix, f.Key))
				}
			default:
				errs = append(errs, fmt.Errorf("%s: filter %q has unknown kind %q", prefix, f.Key, f.Kind))
			}
		}
		if w := v.DefaultWindow; w != nil {
			idx := slices.IndexFunc(v.Filters, func(f Field) bool { return f.Key == w.Field })
			if idx < 0 || v.Filters[idx].Kind != string(listing.FieldDateRange) || w.Months < 1 {
				errs = append(errs, fmt.Errorf("%s: default window must name a date range filter and at least one month", prefix))
			}
		}
		for name, ep := range v.Actions {
			action, err := listing.ParseAction(name)
			if err != nil || action == listing.ActionClear {
				errs = append(errs, fmt.Errorf("%s: action %q cannot be bound", prefix, name))
				continue
			}
			if ep.Path == "" {
				errs = append(errs, fmt.Errorf("%s: action %q has no path", prefix, name))
			}
			switch strings.ToUpper(ep.Method) {
			case "POST", "PUT", "PATCH", "DELETE":
			default:
				errs = append(errs, fmt.Errorf("%s: action %q has unsupported method %q", prefix, name, ep.Method))
			}
			if !ep.Batch && !strings.Contains(ep.Path, "{id}") {
				errs = append(errs, fmt.Errorf("%s: per-item action %q needs {id} in its path", prefix, name))
			}
		}
	}
	return errors.Join(errs...)
}

// View looks up a view by name.
func (c *Catalog) View(name string) (View, error) {
	for _, v := range c.Views {
		if v.Name == name {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("%w: %s", ErrUnknownView, name)
}

// Names lists the declared view names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Views))
	for _, v := range c.Views {
		names = append(names, v.Name)
	}
	return names
}

// ResetPolicy returns the reset policy shared by all views.
func (c *Catalog) ResetPolicy() listing.ResetPolicy {
	if c.ResetApplies {
		return listing.ResetApplies
	}
	return listing.ResetKeepsApplied
}

// ListingFields converts the filter declarations.
func (v View) ListingFields() []listing.Field {
	out := make([]listing.Field, 0, len(v.Filters))
	for _, f := range v.Filters {
		p := listing.ParamFor(f.Key)
		if f.Param != "" {
			p.Key = f.Param
		}
		if f.FromParam != "" {
			p.From = f.FromParam
		}
		if f.ToParam != "" {
			p.To = f.ToParam
		}
		out = append(out, listing.Field{
			Key:      f.Key,
			Label:    f.Label,
			Kind:     listing.FieldKind(f.Kind),
			Options:  f.Options,
			Required: f.Required,
			Param:    p,
		})
	}
	return out
}

// Params maps filter keys to their query parameter names.
func (v View) Params() map[string]listing.Param {
	out := map[string]listing.Param{}
	for _, f := range v.ListingFields() {
		out[f.Key] = f.Param
	}
	return out
}

// ResponseEnvelope describes the list response shape to the backend client.
func (v View) ResponseEnvelope() backend.Envelope {
	return backend.Envelope{Kind: v.Envelope, ItemsKey: v.ItemsKey, TotalPagesKey: v.TotalPagesKey}
}

// Defaults returns the default filter draft.
func (v View) Defaults(now func() time.Time) listing.DefaultsFunc {
	if v.DefaultWindow == nil {
		return listing.NoDefaults
	}
	return listing.TrailingWindow(v.DefaultWindow.Field, v.DefaultWindow.Months, now)
}

// Endpoint returns the endpoint bound to action.
func (v View) Endpoint(action listing.Action) (Endpoint, bool) {
	ep, ok := v.Actions[string(action)]
	if ok {
		ep.Method = strings.ToUpper(ep.Method)
	}
	return ep, ok
}

// BoundActions lists the panel actions the view can run, in panel order.
func (v View) BoundActions() []listing.Action {
	out := make([]listing.Action, 0, len(listing.PanelActions))
	for _, a := range listing.PanelActions {
		if _, ok := v.Actions[string(a)]; ok || a == listing.ActionClear {
			out = append(out, a)
		}
	}
	return out
}

// Options assembles controller options for the view.
func (c *Catalog) Options(v View, now func() time.Time, retainDefault bool, actions listing.ActionHandler[listing.Record], observer listing.Observer) listing.Options[listing.Record] {
	return listing.Options[listing.Record]{
		Resource:        v.Resource,
		PageSize:        v.PageSize,
		Fields:          v.ListingFields(),
		Defaults:        v.Defaults(now),
		ResetPolicy:     c.ResetPolicy(),
		RetainSelection: v.RetainSelection || retainDefault,
		ID:              listing.RecordID(v.IDField),
		Actions:         actions,
		Observer:        observer,
	}
}
