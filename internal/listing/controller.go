package listing

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Source retrieves one page of a resource. Implementations report failures as *FetchError
// and must not keep references to q.
type Source[T any] interface {
	FetchPage(ctx context.Context, resource string, q Query) (Batch[T], error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, resource string, q Query) (Batch[T], error)

// FetchPage calls f.
func (f SourceFunc[T]) FetchPage(ctx context.Context, resource string, q Query) (Batch[T], error) {
	return f(ctx, resource, q)
}

// Observer receives load outcomes, typically for metrics.
type Observer interface {
	LoadCompleted(resource string, elapsed time.Duration, err error)
	LoadSuperseded(resource string)
}

// Status is the lifecycle state of a view.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
)

// Options configures a Controller.
type Options[T any] struct {
	Resource        string
	PageSize        int
	Fields          []Field
	Defaults        DefaultsFunc
	ResetPolicy     ResetPolicy
	RetainSelection bool
	// ID extracts the row identifier of an item.
	ID       func(T) string
	Actions  ActionHandler[T]
	Observer Observer
}

// Snapshot is a consistent copy of a view's state.
type Snapshot[T any] struct {
	Resource string
	Status   Status
	Loaded   bool
	// Query is the query the view is heading for. After a failed load it differs from
	// the displayed page, which was fetched with Shown.
	Query    Query
	Shown    Filters
	Page     ListPage[T]
	Estimate Estimation
	Draft    Filters
	Applied  Filters
	Fields   []Field
	Selected []string
	Panel    PanelState
	Err      error
	Seq      uint64
}

// HasPrev reports whether a previous page exists.
func (s Snapshot[T]) HasPrev() bool {
	return s.Loaded && s.Page.Page > 1
}

// HasNext reports whether the estimate allows another page.
func (s Snapshot[T]) HasNext() bool {
	return s.Loaded && s.Page.Page < s.Estimate.Pages
}

// Controller owns the state of a single list view. Loads are tagged with a sequence number;
// a newer load cancels the one in flight, and completions of superseded loads are discarded
// so an older response can never overwrite a newer one.
type Controller[T any] struct {
	src  Source[T]
	opts Options[T]

	mu       sync.Mutex
	filters  *FilterHolder
	sel      *Selection
	picked   map[string]T
	query    Query
	shown    Filters
	est      Estimation
	restart  bool // the next successful load starts from a fresh estimate
	page     ListPage[T]
	loaded   bool
	status   Status
	err      error
	seq      uint64
	inflight context.CancelFunc
	closed   bool
}

// NewController builds a controller for one view. Nothing is fetched until Load is called.
func NewController[T any](src Source[T], opts Options[T]) *Controller[T] {
	if opts.ID == nil {
		panic("listing: Options.ID is required")
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	filters := NewFilterHolder(opts.Fields, opts.Defaults, opts.ResetPolicy)
	return &Controller[T]{
		src:     src,
		opts:    opts,
		filters: filters,
		sel:     NewSelection(opts.RetainSelection),
		picked:  map[string]T{},
		query:   Query{Page: 1, PageSize: opts.PageSize, Filters: filters.Applied()},
		status:  StatusIdle,
	}
}

// Resource returns the resource path the view lists.
func (c *Controller[T]) Resource() string {
	return c.opts.Resource
}

// Load fetches page under the applied filters.
func (c *Controller[T]) Load(ctx context.Context, page int) (ListPage[T], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ListPage[T]{}, ErrClosed
	}
	if c.inflight != nil {
		c.inflight()
	}
	c.seq++
	seq := c.seq
	q := Query{Page: page, PageSize: c.opts.PageSize, Filters: c.filters.Applied()}.Normalize()
	prev := c.est
	if c.restart {
		prev = Estimation{}
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.inflight = cancel
	c.status = StatusLoading
	c.mu.Unlock()

	start := time.Now()
	batch, err := c.src.FetchPage(fetchCtx, c.opts.Resource, q)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ListPage[T]{}, ErrClosed
	}
	if seq != c.seq {
		if c.opts.Observer != nil {
			c.opts.Observer.LoadSuperseded(c.opts.Resource)
		}
		return ListPage[T]{}, ErrSuperseded
	}
	c.inflight = nil
	c.status = StatusIdle
	if c.opts.Observer != nil {
		c.opts.Observer.LoadCompleted(c.opts.Resource, time.Since(start), err)
	}
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Resource: c.opts.Resource, Err: err}
		}
		c.err = err
		return c.page, err
	}

	lp, est := BuildPage(q, batch, prev)
	c.query = q
	c.shown = q.Filters
	c.est = est
	c.restart = false
	c.page = lp
	c.loaded = true
	c.err = nil
	c.sel.Rebase(c.idsOf(lp.Items))
	if !c.sel.Retaining() {
		c.picked = map[string]T{}
	}
	return lp, nil
}

// Reload fetches the current page again, keeping the estimate. After a failed filter
// change it retries page 1 of the new filters.
func (c *Controller[T]) Reload(ctx context.Context) (ListPage[T], error) {
	c.mu.Lock()
	page := c.query.Page
	c.mu.Unlock()
	return c.Load(ctx, page)
}

// Refresh forgets the estimate and fetches the current page again, for use after the
// underlying data has been mutated.
func (c *Controller[T]) Refresh(ctx context.Context) (ListPage[T], error) {
	c.mu.Lock()
	c.restart = true
	page := c.query.Page
	c.mu.Unlock()
	return c.Load(ctx, page)
}

// Next loads the following page when the estimate allows one.
func (c *Controller[T]) Next(ctx context.Context) (ListPage[T], error) {
	c.mu.Lock()
	if !c.loaded || c.page.Page >= c.est.Pages {
		page := c.page
		c.mu.Unlock()
		return page, nil
	}
	next := c.page.Page + 1
	c.mu.Unlock()
	return c.Load(ctx, next)
}

// Prev loads the preceding page.
func (c *Controller[T]) Prev(ctx context.Context) (ListPage[T], error) {
	c.mu.Lock()
	if !c.loaded || c.page.Page <= 1 {
		page := c.page
		c.mu.Unlock()
		return page, nil
	}
	prev := c.page.Page - 1
	c.mu.Unlock()
	return c.Load(ctx, prev)
}

// SetFilter edits the draft. Nothing is fetched.
func (c *Controller[T]) SetFilter(key string, v Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.SetField(key, v)
}

// CancelFilters discards the draft.
func (c *Controller[T]) CancelFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters.Cancel()
}

// ApplyFilters promotes the draft and loads page 1 of the new result set. A draft equal to
// the filters of the loaded page issues no request.
func (c *Controller[T]) ApplyFilters(ctx context.Context) (ListPage[T], error) {
	return c.applyFilters(ctx, 0)
}

// ApplyFiltersAt is ApplyFilters landing on page instead of page 1, with a single fetch.
// Nothing is fetched when the filters are unchanged and page is already displayed.
func (c *Controller[T]) ApplyFiltersAt(ctx context.Context, page int) (ListPage[T], error) {
	return c.applyFilters(ctx, max(page, 1))
}

// applyFilters promotes the draft. page 0 means page 1 on change and no move otherwise.
func (c *Controller[T]) applyFilters(ctx context.Context, page int) (ListPage[T], error) {
	c.mu.Lock()
	changed, err := c.filters.Apply()
	if err != nil {
		current := c.page
		c.mu.Unlock()
		return current, err
	}
	if !changed && c.loaded && (page == 0 || c.page.Page == page) && c.shown.Equal(c.filters.Applied()) {
		current := c.page
		c.mu.Unlock()
		return current, nil
	}
	target := max(page, 1)
	c.restartAt(target)
	c.mu.Unlock()
	return c.Load(ctx, target)
}

// ResetFilters restores the default draft. Under ResetApplies a change of the applied
// filters loads page 1; otherwise nothing is fetched.
func (c *Controller[T]) ResetFilters(ctx context.Context) (ListPage[T], error) {
	c.mu.Lock()
	if !c.filters.Reset() {
		page := c.page
		c.mu.Unlock()
		return page, nil
	}
	c.restartAt(1)
	c.mu.Unlock()
	return c.Load(ctx, 1)
}

// restartAt records page under the applied filters as the target, so a failed load is
// retried there rather than on the page shown before the filters changed. The estimate
// on display stays until the new one arrives. Callers hold c.mu.
func (c *Controller[T]) restartAt(page int) {
	c.query = Query{Page: page, PageSize: c.opts.PageSize, Filters: c.filters.Applied()}
	c.restart = true
}

// Toggle flips the selection of id.
func (c *Controller[T]) Toggle(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var item T
	found := false
	for _, it := range c.page.Items {
		if c.opts.ID(it) == id {
			item, found = it, true
			break
		}
	}
	// Retained ids stay selectable off page only once picked, so actions always
	// receive the item of every id.
	if !found && !c.sel.Has(id) {
		return false, ErrNotOnPage
	}
	on, err := c.sel.Toggle(id)
	if err != nil {
		return false, err
	}
	if !on {
		delete(c.picked, id)
		return false, nil
	}
	c.picked[id] = item
	return true, nil
}

// SelectAll selects every row on the current page.
func (c *Controller[T]) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sel.SelectAll()
	for _, item := range c.page.Items {
		c.picked[c.opts.ID(item)] = item
	}
}

// ClearSelection empties the selection.
func (c *Controller[T]) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearSelection()
}

func (c *Controller[T]) clearSelection() {
	c.sel.Clear()
	c.picked = map[string]T{}
}

// Dispatch runs a panel action over the selection. ActionClear only clears; every other
// action is handed to the configured ActionHandler and clears the selection on success.
func (c *Controller[T]) Dispatch(ctx context.Context, action Action, params map[string]string) (string, error) {
	if !action.Valid() {
		return "", ErrUnknownAction
	}
	c.mu.Lock()
	if action == ActionClear {
		c.clearSelection()
		c.mu.Unlock()
		return "", nil
	}
	if c.sel.Count() == 0 {
		c.mu.Unlock()
		return "", ErrEmptySelection
	}
	if c.opts.Actions == nil {
		c.mu.Unlock()
		return "", ErrUnknownAction
	}
	ids := c.sel.IDs()
	items := make([]T, 0, len(ids))
	for _, id := range ids {
		if item, ok := c.picked[id]; ok {
			items = append(items, item)
		}
	}
	handler := c.opts.Actions
	c.mu.Unlock()

	ref, err := handler.HandleAction(ctx, ActionRequest[T]{
		Resource: c.opts.Resource,
		Action:   action,
		IDs:      ids,
		Items:    items,
		Params:   params,
	})
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.clearSelection()
	c.mu.Unlock()
	return ref, nil
}

// Snapshot returns a copy of the view state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	page := c.page
	page.Items = append(make([]T, 0, len(c.page.Items)), c.page.Items...)
	return Snapshot[T]{
		Resource: c.opts.Resource,
		Status:   c.status,
		Loaded:   c.loaded,
		Query:    c.query,
		Shown:    c.shown,
		Page:     page,
		Estimate: c.est,
		Draft:    c.filters.Draft(),
		Applied:  c.filters.Applied(),
		Fields:   c.filters.Fields(),
		Selected: c.sel.IDs(),
		Panel:    panelFor(c.sel),
		Err:      c.err,
		Seq:      c.seq,
	}
}

// Close unmounts the view, cancelling any load in flight.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.inflight != nil {
		c.inflight()
		c.inflight = nil
	}
	c.status = StatusIdle
}

func (c *Controller[T]) idsOf(items []T) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, c.opts.ID(item))
	}
	return ids
}
