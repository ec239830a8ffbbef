package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

// failingSource simulates an upstream outage.
type failingSource struct {
	err error
}

func (f *failingSource) Rate(context.Context, string) (model.TreasuryRate, error) {
	return model.TreasuryRate{}, f.err
}

func newTestCache(t *testing.T, src Source) (*Cached, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCached(src, rdb, 2*time.Second, 30*time.Second, nil), mr
}

func TestCached_FreshFetchIsFirm(t *testing.T) {
	cached, _ := newTestCache(t, NewStaticSource())

	res, err := cached.Fetch(context.Background(), "USDINR")
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.Equal(t, "USDINR", res.Rate.Pair)
}

func TestCached_ServesStaleOnUpstreamFailure(t *testing.T) {
	book := NewStaticSource()
	cached, _ := newTestCache(t, book)

	// Warm the cache.
	_, err := cached.Fetch(context.Background(), "USDINR")
	require.NoError(t, err)

	// Swap the upstream for a failing one sharing the same redis.
	cached.src = &failingSource{err: errors.New("upstream timeout")}

	res, err := cached.Fetch(context.Background(), "USDINR")
	require.NoError(t, err)
	assert.True(t, res.Stale, "rate served past the upstream failure must be marked stale")
	assert.Equal(t, "USDINR", res.Rate.Pair)
}

func TestCached_StaleBeyondTTLFails(t *testing.T) {
	book := NewStaticSource()
	cached, _ := newTestCache(t, book)

	_, err := cached.Fetch(context.Background(), "USDINR")
	require.NoError(t, err)

	cached.src = &failingSource{err: errors.New("upstream down")}
	cached.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = cached.Fetch(context.Background(), "USDINR")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestCached_UnknownPairIsMissNotStale(t *testing.T) {
	cached, _ := newTestCache(t, NewStaticSource())

	_, err := cached.Fetch(context.Background(), "ZZZQQQ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestCached_NoRedisStillServes(t *testing.T) {
	cached := NewCached(NewStaticSource(), nil, time.Second, 30*time.Second, nil)

	res, err := cached.Fetch(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.False(t, res.Stale)
}
