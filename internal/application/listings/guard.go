package listings

import (
	"context"
	"fmt"
	"time"

	"house-marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	guardPrefix     = "listing_submit:"
	DefaultGuardTTL = 2 * time.Minute
)

// Guard serializes submissions for the same listing (or the same user's create).
type Guard interface {
	// Acquire returns domain.ErrSubmissionInProgress when key is already held.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisGuard is a Guard backed by SET NX with a TTL, so a crashed request cannot hold the lock forever.
type RedisGuard struct {
	Rdb *redis.Client
	TTL time.Duration
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	token := uuid.NewString()
	ok, err := g.Rdb.SetNX(ctx, guardPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("submission guard: %w", err)
	}
	if !ok {
		return nil, domain.ErrSubmissionInProgress
	}
	return func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), g.Rdb, []string{guardPrefix + key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("submission guard: release failed")
		}
	}, nil
}

func createGuardKey(userID uuid.UUID) string {
	return "create:" + userID.String()
}

func editGuardKey(listingID uuid.UUID) string {
	return "edit:" + listingID.String()
}
