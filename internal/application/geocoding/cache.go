package geocoding

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cachePrefix = "geocode:"

// CachedGeocoder memoizes definitive geocoder answers (OK, ZERO_RESULTS) in Redis.
type CachedGeocoder struct {
	Next Geocoder
	Rdb  *redis.Client
	TTL  time.Duration
}

func cacheKey(address string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(address))))
	return cachePrefix + hex.EncodeToString(sum[:])
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (*Response, error) {
	key := cacheKey(address)
	if b, err := c.Rdb.Get(ctx, key).Bytes(); err == nil {
		var cached Response
		if err := json.Unmarshal(b, &cached); err == nil {
			return &cached, nil
		}
	} else if err != redis.Nil {
		log.Warn().Err(err).Msg("geocode cache: read failed")
	}

	resp, err := c.Next.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusOK || resp.Status == StatusZeroResults {
		if b, err := json.Marshal(resp); err == nil {
			if err := c.Rdb.Set(ctx, key, b, c.TTL).Err(); err != nil {
				log.Warn().Err(err).Msg("geocode cache: write failed")
			}
		}
	}
	return resp, nil
}
