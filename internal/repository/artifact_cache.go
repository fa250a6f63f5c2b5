package repository

import (
	"context"
	"errors"
	"time"

	"CovDash/internal/domain/models"
	"CovDash/pkg/cache"
)

const artifactPrefix = "art"

// CacheArtifactStore memoises export artifacts in a cache.Service.
type CacheArtifactStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheArtifactStore(c cache.Service, ttl time.Duration) *CacheArtifactStore {
	return &CacheArtifactStore{c: c, ttl: ttl}
}

func (s *CacheArtifactStore) Get(ctx context.Context, key string) (*models.Artifact, bool, error) {
	a, err := cache.GetJSON[*models.Artifact](ctx, s.c, cache.GenerateKey(artifactPrefix, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, a != nil, nil
}

func (s *CacheArtifactStore) Put(ctx context.Context, key string, a *models.Artifact) error {
	return cache.SetJSON(ctx, s.c, cache.GenerateKey(artifactPrefix, key), a, s.ttl)
}

// Purge drops every memoised artifact.
func (s *CacheArtifactStore) Purge(ctx context.Context) error {
	return s.c.DeleteByPattern(ctx, cache.BuildPattern(artifactPrefix))
}
