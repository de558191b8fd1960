package backend

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
	"github.com/odyssey-erp/facilitydesk/internal/platform/cache"
)

// CachedSource serves list pages from the page cache and collapses concurrent identical
// requests into one backend call. Cache failures degrade to a direct fetch.
type CachedSource struct {
	src    *RecordSource
	pages  *cache.PageCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedSource wraps src with pages.
func NewCachedSource(src *RecordSource, pages *cache.PageCache, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{src: src, pages: pages, logger: logger}
}

// FetchPage implements listing.Source.
func (s *CachedSource) FetchPage(ctx context.Context, resource string, q listing.Query) (listing.Batch[listing.Record], error) {
	if !s.pages.Enabled() {
		return s.src.FetchPage(ctx, resource, q)
	}
	vals := q.Values(s.src.Params())
	key, err := s.pages.Key(ctx, s.src.client.BaseURL(), resource, vals.Encode())
	if err != nil {
		s.logger.Warn("page cache unavailable", slog.String("resource", resource), slog.Any("error", err))
		return s.src.FetchPage(ctx, resource, q)
	}

	if body, err := s.pages.Get(ctx, key); err == nil {
		return s.src.envelope.Decode(resource, body)
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("page cache read failed", slog.String("resource", resource), slog.Any("error", err))
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// Detached from the first caller so its cancellation does not fail the others.
		body, err := s.src.client.Get(context.WithoutCancel(ctx), resource, vals)
		if err != nil {
			return nil, err
		}
		if _, err := s.src.envelope.Decode(resource, body); err != nil {
			return nil, err
		}
		if err := s.pages.Set(context.WithoutCancel(ctx), key, body); err != nil {
			s.logger.Warn("page cache write failed", slog.String("resource", resource), slog.Any("error", err))
		}
		return body, nil
	})
	select {
	case <-ctx.Done():
		return listing.Batch[listing.Record]{}, &listing.FetchError{Resource: resource, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return listing.Batch[listing.Record]{}, res.Err
		}
		return s.src.envelope.Decode(resource, res.Val.([]byte))
	}
}
