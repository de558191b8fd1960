// Package console serves the web front end of the list views: paging, the filter dialog,
// row selection and the action panel.
package console

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

// Factory builds the controller of a view.
type Factory func(v catalog.View) *listing.Controller[listing.Record]

type mounted struct {
	view  catalog.View
	ctrl  *listing.Controller[listing.Record]
	seen  time.Time
	stale bool
}

// Registry holds the mounted view of every console session. A session shows one view at a
// time: mounting another view closes the previous controller and cancels its load.
type Registry struct {
	mu       sync.Mutex
	build    Factory
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*mounted
	onChange func(active int)
}

// NewRegistry constructs a Registry evicting sessions idle for longer than ttl.
func NewRegistry(build Factory, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{build: build, ttl: ttl, now: time.Now, sessions: map[string]*mounted{}}
}

// OnChange registers a callback receiving the number of mounted views after each change.
func (r *Registry) OnChange(fn func(active int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Mount returns the session's controller for v, creating it when the session shows another
// view or when v was redefined by a catalog reload. fresh is true for new controllers.
func (r *Registry) Mount(session string, v catalog.View) (ctrl *listing.Controller[listing.Record], fresh bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if m, ok := r.sessions[session]; ok {
		if m.view.Name == v.Name && reflect.DeepEqual(m.view, v) {
			m.seen = now
			return m.ctrl, false
		}
		m.ctrl.Close()
	}
	m := &mounted{view: v, ctrl: r.build(v), seen: now}
	r.sessions[session] = m
	r.changed()
	return m.ctrl, true
}

// Lookup returns the session's controller when it currently shows view.
func (r *Registry) Lookup(session, view string) (*listing.Controller[listing.Record], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[session]
	if !ok || m.view.Name != view {
		return nil, false
	}
	m.seen = r.now()
	return m.ctrl, true
}

// TakeStale reports whether the session's view was invalidated since it was last asked,
// clearing the mark.
func (r *Registry) TakeStale(session string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[session]
	if !ok || !m.stale {
		return false
	}
	m.stale = false
	return true
}

// Invalidate marks every mounted view listing resource as stale so its next render
// refetches instead of showing the loaded page.
func (r *Registry) Invalidate(resource string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.sessions {
		if m.view.Resource == resource {
			m.stale = true
			n++
		}
	}
	return n
}

// Unmount closes the session's view.
func (r *Registry) Unmount(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.sessions[session]; ok {
		m.ctrl.Close()
		delete(r.sessions, session)
		r.changed()
	}
}

// Sweep closes views idle for longer than the ttl and returns how many were evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	n := 0
	for id, m := range r.sessions {
		if m.seen.Before(cutoff) {
			m.ctrl.Close()
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.changed()
	}
	return n
}

// Run sweeps periodically until ctx is done, then closes every view.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of mounted views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close unmounts every view.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.sessions {
		m.ctrl.Close()
		delete(r.sessions, id)
	}
	r.changed()
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange(len(r.sessions))
	}
}
