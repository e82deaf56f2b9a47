// Package geocode resolves (company, city) pairs to coordinates through a
// primary/fallback provider chain backed by a cache. Mapbox is the primary
// (token-gated) provider and Nominatim the public fallback.
package geocode

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/jobatlas/internal/model"
)

// Provider represents a single geocoding backend. Geocode returns (nil, nil)
// on a clean no-match; errors are treated by the resolver as misses, not
// failures.
type Provider interface {
	Name() string
	Available() bool
	Geocode(ctx context.Context, company, city string) (*model.Coordinates, error)
}

// CacheKey builds the normalized lookup key for a (company, city) pair.
// Empty segments are allowed; a fully empty pair yields "" and is never
// looked up.
func CacheKey(company, city string) string {
	c := strings.ToLower(strings.TrimSpace(company))
	t := strings.ToLower(strings.TrimSpace(city))
	if c == "" && t == "" {
		return ""
	}
	return c + "|" + t
}

// Resolver tries providers in order, memoizing results — including negative
// ones — in the cache. Concurrent lookups for the same key are collapsed
// into a single provider call via singleflight.
type Resolver struct {
	cache     Cache
	providers []Provider
	group     singleflight.Group
}

// NewResolver creates a Resolver over the given cache and provider chain.
func NewResolver(cache Cache, providers ...Provider) *Resolver {
	return &Resolver{cache: cache, providers: providers}
}

// Resolve returns coordinates for the pair, or nil when unresolvable. A nil
// result is cached so repeated futile lookups never reach a provider again.
func (r *Resolver) Resolve(ctx context.Context, company, city string) (*model.Coordinates, error) {
	key := CacheKey(company, city)
	if key == "" {
		return nil, nil
	}

	if coords, ok := r.cacheGet(ctx, key); ok {
		return coords, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// A concurrent flight may have filled the cache between our check
		// and joining the group.
		if coords, ok := r.cacheGet(ctx, key); ok {
			return coords, nil
		}

		for _, p := range r.providers {
			if !p.Available() {
				continue
			}
			coords, provErr := p.Geocode(ctx, company, city)
			if provErr != nil {
				zap.L().Debug("geocode: provider error, trying next",
					zap.String("provider", p.Name()),
					zap.Error(provErr),
				)
				continue
			}
			if coords != nil {
				r.cachePut(ctx, key, coords)
				return coords, nil
			}
		}

		// All providers missed. Cache the negative result so the next
		// lookup for this key stays local.
		r.cachePut(ctx, key, nil)
		return (*model.Coordinates)(nil), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Coordinates), nil
}

func (r *Resolver) cacheGet(ctx context.Context, key string) (*model.Coordinates, bool) {
	coords, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		zap.L().Debug("geocode: cache read failed, treating as miss", zap.Error(err))
		return nil, false
	}
	if ok {
		zap.L().Debug("geocode: cache hit", zap.String("key", key), zap.Bool("matched", coords != nil))
	}
	return coords, ok
}

func (r *Resolver) cachePut(ctx context.Context, key string, coords *model.Coordinates) {
	if err := r.cache.Put(ctx, key, coords); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.String("key", key), zap.Error(err))
	}
}
