package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisStore mirrors session state into Redis so operators can observe the
// fleet across processes. Pending call bindings are live Go values and cannot
// leave the process, so the store keeps the authoritative *Session locally
// and writes a JSON snapshot to Redis on every Set. Has consults Redis when
// the local map misses, which lets a second process refuse a duplicate
// connection for a charge point attached elsewhere.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration

	local sync.Map // clientID → *Session
}

// NewRedisStore creates a store backed by the given Redis client. An empty
// prefix defaults to "ocpp:session:".
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ocpp:session:"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (rs *RedisStore) key(clientID string) string { return rs.prefix + clientID }

func (rs *RedisStore) Set(ctx context.Context, clientID string, s *Session) error {
	if s == nil {
		rs.local.Delete(clientID)
		if err := rs.rdb.Del(ctx, rs.key(clientID)).Err(); err != nil {
			return fmt.Errorf("session: redis del %s: %w", clientID, err)
		}
		return nil
	}

	rs.local.Store(clientID, s)
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("session: marshal snapshot %s: %w", clientID, err)
	}
	if err := rs.rdb.Set(ctx, rs.key(clientID), data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set %s: %w", clientID, err)
	}
	return nil
}

func (rs *RedisStore) Get(ctx context.Context, clientID string) (*Session, bool, error) {
	if v, ok := rs.local.Load(clientID); ok {
		return v.(*Session), true, nil
	}
	// A snapshot from another process is observable but not actionable here;
	// it has no live bindings. Report absence for dispatch purposes.
	return nil, false, nil
}

// Snapshots scans the prefix keyspace and returns every stored session
// snapshot, including sessions owned by other processes. Entries that fail to
// decode are skipped with a warning.
func (rs *RedisStore) Snapshots(ctx context.Context) ([]Snapshot, error) {
	var out []Snapshot
	iter := rs.rdb.Scan(ctx, 0, rs.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := rs.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // expired between scan and get
			}
			return nil, fmt.Errorf("session: redis get %s: %w", iter.Val(), err)
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			slog.Warn("session: skipping undecodable snapshot", "key", iter.Val(), "error", err)
			continue
		}
		out = append(out, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: redis scan: %w", err)
	}
	return out, nil
}

func (rs *RedisStore) Has(ctx context.Context, clientID string) (bool, error) {
	if _, ok := rs.local.Load(clientID); ok {
		return true, nil
	}
	n, err := rs.rdb.Exists(ctx, rs.key(clientID)).Result()
	if err != nil {
		slog.Warn("session: redis exists failed, assuming absent", "client", clientID, "error", err)
		return false, nil
	}
	return n > 0, nil
}
