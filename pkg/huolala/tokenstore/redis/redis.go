// Package redis provides a TokenStore shared across processes through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tournevent/huolala/pkg/huolala"
)

// DefaultKeyPrefix namespaces token keys.
const DefaultKeyPrefix = "huolala:token:"

// Refresh lock defaults.
const (
	DefaultLockTTL   = 30 * time.Second
	DefaultLockRetry = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds this owner's value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds Redis store configuration.
type Config struct {
	KeyPrefix string
	// TTL bounds how long a record is kept. Zero keeps records until replaced,
	// which is what lets an expired access token still be refreshed.
	TTL       time.Duration

	// LockTTL expires a refresh lock whose holder died. Defaults to DefaultLockTTL.
	LockTTL   time.Duration
	// LockRetry is the poll interval while waiting for a held lock.
	LockRetry time.Duration
}

// Store persists token records as JSON strings.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	lockTTL   time.Duration
	lockRetry time.Duration
}

// New creates a Redis-backed store.
func New(client redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = DefaultLockTTL
	}
	lockRetry := cfg.LockRetry
	if lockRetry == 0 {
		lockRetry = DefaultLockRetry
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		ttl:       cfg.TTL,
		lockTTL:   lockTTL,
		lockRetry: lockRetry,
	}
}

func (s *Store) redisKey(key huolala.TokenKey) string {
	return s.prefix + key.String()
}

// Get returns the record for key.
func (s *Store) Get(ctx context.Context, key huolala.TokenKey) (*huolala.TokenRecord, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, huolala.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get token: %w", err)
	}

	var record huolala.TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode token record: %w", err)
	}
	return &record, nil
}

// Set stores record under key.
func (s *Store) Set(ctx context.Context, key huolala.TokenKey, record *huolala.TokenRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Delete removes the record for key.
func (s *Store) Delete(ctx context.Context, key huolala.TokenKey) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}

func (s *Store) lockKey(key huolala.TokenKey) string {
	return s.prefix + "lock:" + key.String()
}

// Lock takes the refresh lock for key with SET NX PX, polling until it is
// free or ctx is done. It excludes refreshes across processes.
func (s *Store) Lock(ctx context.Context, key huolala.TokenKey) (func(context.Context) error, error) {
	lockKey := s.lockKey(key)
	owner := uuid.NewString()

	ticker := time.NewTicker(s.lockRetry)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, lockKey, owner, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock token: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, s.client, []string{lockKey}, owner).Err(); err != nil {
					return fmt.Errorf("redis unlock token: %w", err)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var (
	_ huolala.TokenStore  = (*Store)(nil)
	_ huolala.TokenLocker = (*Store)(nil)
)
