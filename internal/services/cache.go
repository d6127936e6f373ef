package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// CachedExtractor wraps an [Extractor], caching successful probes for a TTL and
// collapsing concurrent probes of the same URL and network config into one call.
// Fetch is never cached.
type CachedExtractor struct {
	Extractor
	cache *ristretto.Cache[string, *models.Metadata]
	group singleflight.Group
	ttl   time.Duration
}

// NewCachedExtractor creates a cache holding up to size probe results.
func NewCachedExtractor(next Extractor, size int64, ttl time.Duration) (*CachedExtractor, error) {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *models.Metadata]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create probe cache: %w", err)
	}
	return &CachedExtractor{Extractor: next, cache: cache, ttl: ttl}, nil
}

func probeKey(url string, net models.NetworkConfig) string {
	return url + "|" + net.Proxy + "|" + net.CookieFile + "|" + net.CookiesFromBrowser
}

// Probe serves from cache when possible. Concurrent probes of the same key share one
// underlying call, and a caller whose context ends returns early without failing the rest.
func (c *CachedExtractor) Probe(ctx context.Context, url string, net models.NetworkConfig) (*models.Metadata, error) {
	key := probeKey(url, net)
	if m, ok := c.cache.Get(key); ok {
		return copyMetadata(m), nil
	}

	// Callers share one detached call; each one only waits on its own context.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		m, err := c.Extractor.Probe(shared, url, net)
		if err != nil {
			return nil, err
		}
		c.cache.SetWithTTL(key, m, 1, c.ttl)
		c.cache.Wait()
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, NewExtractError(KindCancelled, "probe", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyMetadata(res.Val.(*models.Metadata)), nil
	}
}

// Close releases the cache's background goroutines.
func (c *CachedExtractor) Close() {
	c.cache.Close()
}

func copyMetadata(m *models.Metadata) *models.Metadata {
	out := *m
	out.AvailableHeights = append([]int(nil), m.AvailableHeights...)
	out.VideoExts = append([]string(nil), m.VideoExts...)
	out.AudioExts = append([]string(nil), m.AudioExts...)
	return &out
}

// BrowserCookies forwards to the wrapped extractor when it supports cookie probing.
func (c *CachedExtractor) BrowserCookies(ctx context.Context, browser, siteURL string) ([]Cookie, error) {
	p, ok := c.Extractor.(CookieProber)
	if !ok {
		return nil, fmt.Errorf("%s cannot read browser cookies", c.Extractor.Name())
	}
	return p.BrowserCookies(ctx, browser, siteURL)
}
