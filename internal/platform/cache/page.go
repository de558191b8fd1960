package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionPrefix = "facilitydesk:pagever:"
	pagePrefix    = "facilitydesk:page:"
	// BumpChannel carries "<resource> <version>" after every Bump.
	BumpChannel = "facilitydesk.bump"
)

// ErrMiss reports a cache miss.
var ErrMiss = errors.New("cache: miss")

// PageCache stores raw list responses under per-resource versions. Bumping a resource
// version orphans every page cached for it.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPageCache builds a page cache. A nil client disables caching.
func NewPageCache(client *redis.Client, ttl time.Duration) *PageCache {
	return &PageCache{client: client, ttl: ttl}
}

// Enabled reports whether pages are cached at all.
func (c *PageCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Version returns the current version of resource, initialising it when missing.
func (c *PageCache) Version(ctx context.Context, resource string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	key := versionPrefix + resource
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes the cache key for one page request.
func (c *PageCache) Key(ctx context.Context, tenant, resource, query string) (string, error) {
	ver, err := c.Version(ctx, resource)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(tenant + "|" + query))
	return strings.Join([]string{
		pagePrefix + resource,
		strconv.FormatInt(ver, 10),
		hex.EncodeToString(sum[:12]),
	}, ":"), nil
}

// Get returns the cached payload or ErrMiss.
func (c *PageCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrMiss
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return payload, err
}

// Set stores payload for the configured TTL.
func (c *PageCache) Set(ctx context.Context, key string, payload []byte) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

// Bump invalidates every cached page of resource and announces the new version.
func (c *PageCache) Bump(ctx context.Context, resource string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, versionPrefix+resource).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: bump %s: %w", resource, err)
	}
	if err := c.client.Publish(ctx, BumpChannel, resource+" "+strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, fmt.Errorf("cache: publish bump: %w", err)
	}
	return ver, nil
}

// Subscribe calls fn for every bump announced on BumpChannel until ctx ends.
func (c *PageCache) Subscribe(ctx context.Context, fn func(resource string, version int64)) error {
	if !c.Enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("cache: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				resource, raw, found := strings.Cut(msg.Payload, " ")
				if !found {
					continue
				}
				if ver, err := strconv.ParseInt(raw, 10, 64); err == nil {
					fn(resource, ver)
				}
			}
		}
	}()
	return nil
}
