package deviceauth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

// Blacklist marks refresh-token JTIs as revoked. A blacklisted JTI
// fails validation even though its JWT signature and expiry still
// check out.
type Blacklist struct {
	rdb *redis.Client
}

func NewBlacklist(rdb *redis.Client) *Blacklist {
	return &Blacklist{rdb: rdb}
}

// Revoke blacklists jti until ttl elapses (normally the token's
// remaining lifetime, so the blacklist entry never outlives what it
// guards against).
func (b *Blacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := b.rdb.Set(ctx, jtiBlacklistKey(jti), "1", ttl).Err(); err != nil {
		return coreerrors.Transport(err, "blacklisting jti %s", jti)
	}
	return nil
}

// IsRevoked reports whether jti has been blacklisted.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, jtiBlacklistKey(jti)).Result()
	if err != nil {
		return false, coreerrors.Transport(err, "checking jti blacklist")
	}
	return n > 0, nil
}

// RevokePipelined blacklists many JTIs in a single Redis pipeline,
// used by bulk session revocation.
func (b *Blacklist) RevokePipelined(ctx context.Context, jtis []string, ttl time.Duration) error {
	if len(jtis) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	pipe := b.rdb.Pipeline()
	for _, jti := range jtis {
		pipe.Set(ctx, jtiBlacklistKey(jti), "1", ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Transport(err, "bulk blacklisting %d jtis", len(jtis))
	}
	return nil
}
