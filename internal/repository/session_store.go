package repository

import (
	"context"
	"errors"
	"time"

	"CovDash/pkg/cache"
)

const sessionPrefix = "sess"

// CacheSessionStore keeps session colour-scale maps in a cache.Service.
// Saving refreshes the TTL.
type CacheSessionStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheSessionStore(c cache.Service, ttl time.Duration) *CacheSessionStore {
	return &CacheSessionStore{c: c, ttl: ttl}
}

// Scales returns the stored map, or an empty map for an unknown session.
func (s *CacheSessionStore) Scales(ctx context.Context, session string) (map[string]string, error) {
	scales, err := cache.GetJSON[map[string]string](ctx, s.c, cache.GenerateKey(sessionPrefix, session))
	if errors.Is(err, cache.ErrCacheMiss) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if scales == nil {
		scales = map[string]string{}
	}
	return scales, nil
}

func (s *CacheSessionStore) SaveScales(ctx context.Context, session string, scales map[string]string) error {
	return cache.SetJSON(ctx, s.c, cache.GenerateKey(sessionPrefix, session), scales, s.ttl)
}
