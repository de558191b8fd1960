package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newPageCache(t *testing.T) (*PageCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPageCache(client, time.Minute), mr
}

func TestPageCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	pc, _ := newPageCache(t)

	key, err := pc.Key(ctx, "https://tenant.example", "pms/assets", "page=1&per_page=15")
	require.NoError(t, err)

	_, err = pc.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, pc.Set(ctx, key, []byte(`[{"id":1}]`)))
	got, err := pc.Get(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":1}]`, string(got))
}

func TestPageCacheBumpOrphansPages(t *testing.T) {
	ctx := context.Background()
	pc, _ := newPageCache(t)

	before, err := pc.Key(ctx, "t", "pms/assets", "page=1")
	require.NoError(t, err)
	other, err := pc.Key(ctx, "t", "amc/contracts", "page=1")
	require.NoError(t, err)

	ver, err := pc.Bump(ctx, "pms/assets")
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)

	after, err := pc.Key(ctx, "t", "pms/assets", "page=1")
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	untouched, err := pc.Key(ctx, "t", "amc/contracts", "page=1")
	require.NoError(t, err)
	require.Equal(t, other, untouched)
}

func TestPageCacheKeySeparatesTenants(t *testing.T) {
	ctx := context.Background()
	pc, _ := newPageCache(t)

	a, err := pc.Key(ctx, "https://a.example", "pms/assets", "page=1")
	require.NoError(t, err)
	b, err := pc.Key(ctx, "https://b.example", "pms/assets", "page=1")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestPageCacheTTL(t *testing.T) {
	ctx := context.Background()
	pc, mr := newPageCache(t)

	key, err := pc.Key(ctx, "t", "pms/assets", "page=1")
	require.NoError(t, err)
	require.NoError(t, pc.Set(ctx, key, []byte(`[]`)))
	mr.FastForward(2 * time.Minute)

	_, err = pc.Get(ctx, key)
	require.ErrorIs(t, err, ErrMiss)
}

func TestPageCacheDisabled(t *testing.T) {
	ctx := context.Background()
	pc := NewPageCache(nil, time.Minute)
	require.False(t, pc.Enabled())

	require.NoError(t, pc.Set(ctx, "k", []byte("x")))
	_, err := pc.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
	ver, err := pc.Bump(ctx, "pms/assets")
	require.NoError(t, err)
	require.Zero(t, ver)
}

func TestPageCacheSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pc, _ := newPageCache(t)

	got := make(chan string, 1)
	require.NoError(t, pc.Subscribe(ctx, func(resource string, version int64) {
		got <- resource
	}))
	_, err := pc.Bump(ctx, "tickets")
	require.NoError(t, err)

	select {
	case resource := <-got:
		require.Equal(t, "tickets", resource)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not delivered")
	}
}
