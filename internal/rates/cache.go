package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Result is a rate lookup outcome. Stale marks a rate served from the
// cache past its freshness window; callers must downgrade such responses
// to INDICATIVE.
type Result struct {
	Rate  model.TreasuryRate
	Stale bool
}

type cacheEntry struct {
	Rate     model.TreasuryRate `json:"rate"`
	StoredAt time.Time          `json:"stored_at"`
}

// Cached wraps a Source with a Redis read-through cache and a stale-read
// fallback. The upstream fetch is bounded by timeout; on timeout or error
// the cached entry is served as long as it is no older than staleTTL.
type Cached struct {
	src      Source
	redis    *redis.Client
	timeout  time.Duration
	staleTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewCached creates a cached rate source. The redis client may be nil, in
// which case lookups go straight to the upstream source with no fallback.
func NewCached(src Source, rdb *redis.Client, timeout, staleTTL time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		src:      src,
		redis:    rdb,
		timeout:  timeout,
		staleTTL: staleTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Cached) key(pair string) string {
	return fmt.Sprintf("fxrate:%s", pair)
}

// Fetch resolves a pair with freshness information.
func (c *Cached) Fetch(ctx context.Context, pair string) (Result, error) {
	fetchCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rate, err := c.src.Rate(fetchCtx, pair)
	if err == nil {
		c.store(ctx, pair, rate)
		metrics.IncRateCache("fresh")
		return Result{Rate: rate}, nil
	}

	if errors.Is(err, ErrRateUnavailable) {
		metrics.IncRateCache("miss")
		return Result{}, err
	}

	// Upstream failed or timed out — fall back to the cached entry.
	entry, ok := c.load(ctx, pair)
	if !ok {
		c.logger.Warn("rates.fetch_failed_no_cache", zap.String("pair", pair), zap.Error(err))
		metrics.IncRateCache("miss")
		return Result{}, fmt.Errorf("%w: %s", ErrRateUnavailable, pair)
	}

	age := c.now().Sub(entry.StoredAt)
	if age > c.staleTTL {
		c.logger.Warn("rates.cache_entry_too_stale",
			zap.String("pair", pair),
			zap.Duration("age", age))
		metrics.IncRateCache("miss")
		return Result{}, fmt.Errorf("%w: %s", ErrRateUnavailable, pair)
	}

	c.logger.Info("rates.serving_stale",
		zap.String("pair", pair),
		zap.Duration("age", age))
	metrics.IncRateCache("stale")
	return Result{Rate: entry.Rate, Stale: true}, nil
}

// Rate satisfies Source, discarding freshness information.
func (c *Cached) Rate(ctx context.Context, pair string) (model.TreasuryRate, error) {
	res, err := c.Fetch(ctx, pair)
	return res.Rate, err
}

func (c *Cached) store(ctx context.Context, pair string, rate model.TreasuryRate) {
	if c.redis == nil {
		return
	}
	entry := cacheEntry{Rate: rate, StoredAt: c.now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(pair), data, c.staleTTL*2).Err(); err != nil {
		c.logger.Debug("rates.cache_store_failed", zap.String("pair", pair), zap.Error(err))
	}
}

func (c *Cached) load(ctx context.Context, pair string) (cacheEntry, bool) {
	if c.redis == nil {
		return cacheEntry{}, false
	}
	data, err := c.redis.Get(ctx, c.key(pair)).Bytes()
	if err != nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return cacheEntry{}, false
	}
	return entry, true
}
