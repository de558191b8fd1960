package console

import (
	"log/slog"
	"time"

	"github.com/odyssey-erp/facilitydesk/internal/backend"
	"github.com/odyssey-erp/facilitydesk/internal/catalog"
	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/platform/cache"
)

// ActionBinder provides the panel action handler of a view.
type ActionBinder interface {
	For(v catalog.View) listing.ActionHandler[listing.Record]
}

// ControllerConfig wires list controllers to the backend.
type ControllerConfig struct {
	Client          *backend.Client
	Pages           *cache.PageCache
	Catalog         catalog.Holder
	Actions         ActionBinder
	Observer        listing.Observer
	RetainSelection bool
	PageSize        int
	Now             func() time.Time
	Logger          *slog.Logger
}

// NewFactory returns a Factory building controllers that read through the page cache.
func NewFactory(cfg ControllerConfig) Factory {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(v catalog.View) *listing.Controller[listing.Record] {
		records := backend.NewRecordSource(cfg.Client, v.ResponseEnvelope(), v.Params())
		var src listing.Source[listing.Record] = records
		if cfg.Pages.Enabled() {
			src = backend.NewCachedSource(records, cfg.Pages, cfg.Logger)
		}
		var actions listing.ActionHandler[listing.Record]
		if cfg.Actions != nil {
			actions = cfg.Actions.For(v)
		}
		opts := cfg.Catalog.Current().Options(v, cfg.Now, cfg.RetainSelection, actions, cfg.Observer)
		if opts.PageSize < 1 {
			opts.PageSize = cfg.PageSize
		}
		return listing.NewController[listing.Record](src, opts)
	}
}
