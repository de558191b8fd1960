package listing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation marks filter drafts rejected by Apply.
	ErrValidation = errors.New("listing: validation failed")
	// ErrFetch marks failures of the data fetcher.
	ErrFetch = errors.New("listing: fetch failed")
	// ErrSuperseded is returned by loads overtaken by a newer load on the same view.
	ErrSuperseded = errors.New("listing: superseded by a newer request")
	// ErrClosed is returned by loads on an unmounted view.
	ErrClosed = errors.New("listing: view closed")
	// ErrUnknownField is returned when setting a filter the view does not declare.
	ErrUnknownField = errors.New("listing: unknown filter field")
	// ErrNotOnPage is returned when toggling an id that is not on the current page.
	ErrNotOnPage = errors.New("listing: item not on current page")
	// ErrUnknownAction is returned when dispatching an action the panel does not expose.
	ErrUnknownAction = errors.New("listing: unknown action")
	// ErrEmptySelection is returned when dispatching a bulk action with nothing selected.
	ErrEmptySelection = errors.New("listing: nothing selected")
)

// ValidationError carries field level messages for a rejected filter draft.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "listing: invalid filters: " + e.Summary()
}

// Summary lists the field messages as "key: message", ordered by key.
func (e *ValidationError) Summary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FetchError describes a failed page fetch. Status is zero for transport failures.
type FetchError struct {
	Resource string
	Status   int
	Message  string
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString("listing: fetch ")
	b.WriteString(e.Resource)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches ErrFetch.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Unwrap exposes the transport error, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary reports whether repeating the request may succeed.
func (e *FetchError) Temporary() bool {
	return e.Status == 0 || e.Status >= 500
}
