package keyset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/edgebridge/edgebridge/pkg/cache"
	"github.com/edgebridge/edgebridge/pkg/observability"
)

// Cache keys live under a dedicated namespace so a teardown flush cannot
// touch unrelated host data.
const (
	certsCacheKey       = "cfaccess:certs"
	lastUpdatedCacheKey = "cfaccess:certs:last_updated"
)

const (
	// DefaultFreshTTL is how long a fetched key set is served from cache.
	DefaultFreshTTL = 7 * 24 * time.Hour

	// DefaultMarkerTTL is how long the last-updated marker survives; past
	// it the marker itself is considered stale.
	DefaultMarkerTTL = 30 * 24 * time.Hour
)

// ClientOptions tunes a key cache Client. Zero values select defaults.
type ClientOptions struct {
	FreshTTL  time.Duration
	MarkerTTL time.Duration
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

// Client serves the issuer's signing keys out of the shared cache,
// fetching from the issuer on miss or forced refresh. It performs no
// locking: concurrent forced refreshes race benignly, both writers
// converging on equivalent fresh key data.
type Client struct {
	cache     cache.Cache
	fetcher   *Fetcher
	freshTTL  time.Duration
	markerTTL time.Duration
	log       *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewClient creates a key cache client over the given cache backend and
// fetcher.
func NewClient(c cache.Cache, f *Fetcher, opts ClientOptions) *Client {
	if opts.FreshTTL <= 0 {
		opts.FreshTTL = DefaultFreshTTL
	}
	if opts.MarkerTTL <= 0 {
		opts.MarkerTTL = DefaultMarkerTTL
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		cache:     c,
		fetcher:   f,
		freshTTL:  opts.FreshTTL,
		markerTTL: opts.MarkerTTL,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Keys returns the current signing key set. With force=false a cached set
// is served when present; with force=true the issuer is always consulted
// and the cache replaced. A *FetchError means verification is impossible
// for this attempt; callers must not loop fetching within one attempt.
func (c *Client) Keys(ctx context.Context, force bool) (*KeySet, error) {
	if !force {
		raw, err := c.cache.Get(ctx, certsCacheKey)
		if err == nil {
			set, perr := parseKeySet([]byte(raw))
			if perr == nil {
				c.countCacheHit()
				if at, lerr := c.LastUpdated(ctx); lerr == nil {
					set.FetchedAt = at
				}
				return set, nil
			}
			// Corrupt cache entry; drop it and fall through to a fetch.
			c.log.WithError(perr).Warn("dropping unparseable cached key set")
			_ = c.cache.Delete(ctx, certsCacheKey)
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			// Cache backend trouble is treated like a miss; the issuer
			// remains the source of truth.
			c.log.WithError(err).Warn("key cache read failed")
		}
		c.countCacheMiss()
	}

	set, raw, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.countFetch(force, "error")
		return nil, err
	}
	c.countFetch(force, "ok")

	now := c.now()
	set.FetchedAt = now

	if err := c.cache.Set(ctx, certsCacheKey, string(raw), c.freshTTL); err != nil {
		c.log.WithError(err).Warn("failed to cache signing keys")
	}
	marker := strconv.FormatInt(now.Unix(), 10)
	if err := c.cache.Set(ctx, lastUpdatedCacheKey, marker, c.markerTTL); err != nil {
		c.log.WithError(err).Warn("failed to record key fetch time")
	}

	c.log.WithFields(map[string]interface{}{
		"forced": force,
		"keys":   len(set.Keys),
	}).Debug("signing keys refreshed")

	return set, nil
}

// LastUpdated returns when the cached key set was last fetched, or an
// error when no unexpired marker exists.
func (c *Client) LastUpdated(ctx context.Context) (time.Time, error) {
	raw, err := c.cache.Get(ctx, lastUpdatedCacheKey)
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last-updated marker: %w", err)
	}
	return time.Unix(unix, 0), nil
}

// NextUpdate returns when the cached key set falls out of its freshness
// window.
func (c *Client) NextUpdate(ctx context.Context) (time.Time, error) {
	at, err := c.LastUpdated(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(c.freshTTL), nil
}

// Flush removes the cached key material. Called on host teardown.
func (c *Client) Flush(ctx context.Context) error {
	return c.cache.Delete(ctx, certsCacheKey, lastUpdatedCacheKey)
}

func (c *Client) countCacheHit() {
	if c.metrics != nil {
		c.metrics.KeyCacheHitsTotal.Inc()
	}
}

func (c *Client) countCacheMiss() {
	if c.metrics != nil {
		c.metrics.KeyCacheMissesTotal.Inc()
	}
}

func (c *Client) countFetch(forced bool, status string) {
	if c.metrics != nil {
		c.metrics.KeyFetchesTotal.WithLabelValues(strconv.FormatBool(forced), status).Inc()
	}
}
