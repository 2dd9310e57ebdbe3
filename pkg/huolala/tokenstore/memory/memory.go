// Package memory provides an in-process TokenStore backed by go-cache.
package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tournevent/huolala/pkg/huolala"
)

// Store keeps token records in memory. Records do not expire from the
// cache on their own: an expired access token still carries the refresh
// token needed to renew it.
type Store struct {
	cache *cache.Cache
	locks huolala.KeyedMutex
}

// New creates an in-memory store.
func New() *Store {
	return &Store{cache: cache.New(cache.NoExpiration, 10*time.Minute)}
}

// Get returns a copy of the record for key.
func (s *Store) Get(_ context.Context, key huolala.TokenKey) (*huolala.TokenRecord, error) {
	v, ok := s.cache.Get(key.String())
	if !ok {
		return nil, huolala.ErrTokenNotFound
	}
	record := v.(huolala.TokenRecord)
	return &record, nil
}

// Set stores a copy of record under key.
func (s *Store) Set(_ context.Context, key huolala.TokenKey, record *huolala.TokenRecord) error {
	s.cache.Set(key.String(), *record, cache.NoExpiration)
	return nil
}

// Delete removes the record for key.
func (s *Store) Delete(_ context.Context, key huolala.TokenKey) error {
	s.cache.Delete(key.String())
	return nil
}

// Lock serializes refreshes of key among providers sharing this store.
func (s *Store) Lock(ctx context.Context, key huolala.TokenKey) (func(context.Context) error, error) {
	return s.locks.Lock(ctx, key)
}

var (
	_ huolala.TokenStore  = (*Store)(nil)
	_ huolala.TokenLocker = (*Store)(nil)
)
