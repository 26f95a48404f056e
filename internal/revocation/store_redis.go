package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var containsDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "pharmatrust_key_revocation_check_duration_ms",
	Help:    "Latency of revocation registry lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// Redis key prefix for revoked signing keys. Keys never expire; revocation is
// permanent.
const revokedKeyPrefix = "krl:key:"

// RedisRegistry is the production-recommended registry for distributed
// deployments where many verification instances share revocation state.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// redisKey derives the storage key from the exact PEM bytes. Hashing keeps
// multi-line PEM out of the keyspace without weakening exact-encoding
// matching: any byte difference produces a different key.
func redisKey(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *RedisRegistry) Append(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal revocation entry: %w", err)
	}
	// SETNX keeps the first revocation's reason and timestamp; a duplicate
	// append is a no-op.
	if err := r.client.SetNX(ctx, redisKey(entry.PublicKeyPEM), value, 0).Err(); err != nil {
		return fmt.Errorf("append revocation entry: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Contains(ctx context.Context, publicKeyPEM string) (bool, error) {
	start := time.Now()
	defer func() {
		containsDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	n, err := r.client.Exists(ctx, redisKey(publicKeyPEM)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) Find(ctx context.Context, publicKeyPEM string) (*Entry, error) {
	raw, err := r.client.Get(ctx, redisKey(publicKeyPEM)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find revocation entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal revocation entry: %w", err)
	}
	return &entry, nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]Entry, error) {
	var (
		entries []Entry
		cursor  uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, revokedKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan revocation entries: %w", err)
		}
		for _, key := range keys {
			raw, err := r.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read revocation entry: %w", err)
			}
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, fmt.Errorf("unmarshal revocation entry: %w", err)
			}
			entries = append(entries, entry)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RevokedAt.After(entries[j].RevokedAt) })
	return entries, nil
}
