// Package geocode resolves coordinates to human-readable addresses via the
// Google Maps API, with a pluggable cache in front. Coordinates are rounded
// to four decimals (~11m) for the cache key, so nearby lookups share an
// entry.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"googlemaps.github.io/maps"

	"github.com/openvelo/rental-backend/geo"
)

var ErrNoAddress = errors.New("no address found for location")

// Cache is an explicit get/set collaborator, injected rather than hidden
// module-level state.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type Resolver struct {
	maps   *maps.Client
	cache  Cache
	logger *slog.Logger
}

func NewResolver(apiKey string, cache Cache, logger *slog.Logger) (*Resolver, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{maps: client, cache: cache, logger: logger}, nil
}

func (r *Resolver) Address(ctx context.Context, p geo.Point) (string, error) {
	key := cacheKey(p)
	if r.cache != nil {
		if addr, ok := r.cache.Get(ctx, key); ok {
			return addr, nil
		}
	}

	results, err := r.maps.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", ErrNoAddress
	}

	addr := results[0].FormattedAddress
	if r.cache != nil {
		r.cache.Set(ctx, key, addr)
	}
	return addr, nil
}

func cacheKey(p geo.Point) string {
	return fmt.Sprintf("geocode:%.4f,%.4f", p.Lat, p.Lng)
}

// RedisCache stores resolved addresses in Redis with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) {
	c.rdb.Set(ctx, key, value, c.ttl)
}
