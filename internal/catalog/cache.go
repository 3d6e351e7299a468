package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "catalog:version"

// Cache wraps Redis based caching with versioning controls. Writes bump
// a global version instead of deleting individual keys, so stale
// entries simply age out under their TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) buildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

func (c *Cache) fetch(ctx context.Context, key string, loader func(context.Context) (FinishedGood, error)) (FinishedGood, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var fg FinishedGood
		if err := json.Unmarshal(payload, &fg); err == nil {
			return fg, nil
		}
	} else if err != redis.Nil {
		return FinishedGood{}, err
	}
	// Concurrent misses for the same key share one load.
	result, err, _ := c.group.Do(key, func() (any, error) {
		fg, err := loader(ctx)
		if err != nil {
			return FinishedGood{}, err
		}
		raw, err := json.Marshal(fg)
		if err != nil {
			return FinishedGood{}, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return FinishedGood{}, err
		}
		return fg, nil
	})
	if err != nil {
		return FinishedGood{}, err
	}
	return result.(FinishedGood), nil
}

// Bump invalidates the cache by incrementing the global version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// CachedRepository layers the read cache over the SQL repository.
// Lookups by id and by specification sit on the hot path of sales
// entry and production; everything else passes through and bumps the
// version.
type CachedRepository struct {
	repo  RepositoryPort
	cache *Cache
}

// NewCachedRepository constructs CachedRepository.
func NewCachedRepository(repo RepositoryPort, cache *Cache) *CachedRepository {
	return &CachedRepository{repo: repo, cache: cache}
}

// GetByID loads a finished good through the cache.
func (r *CachedRepository) GetByID(ctx context.Context, id int64) (FinishedGood, error) {
	key, err := r.cache.buildKey(ctx, "catalog", "fg", "id", fmt.Sprintf("%d", id))
	if err != nil {
		return r.repo.GetByID(ctx, id)
	}
	return r.cache.fetch(ctx, key, func(ctx context.Context) (FinishedGood, error) {
		return r.repo.GetByID(ctx, id)
	})
}

// GetBySpec loads a finished good by specification through the cache.
func (r *CachedRepository) GetBySpec(ctx context.Context, spec Spec) (FinishedGood, error) {
	key, err := r.cache.buildKey(ctx, "catalog", "fg", "spec", spec.Model, spec.Type, spec.Ratio, spec.Power)
	if err != nil {
		return r.repo.GetBySpec(ctx, spec)
	}
	return r.cache.fetch(ctx, key, func(ctx context.Context) (FinishedGood, error) {
		return r.repo.GetBySpec(ctx, spec)
	})
}

// Create passes through and invalidates.
func (r *CachedRepository) Create(ctx context.Context, fg FinishedGood) (int64, error) {
	id, err := r.repo.Create(ctx, fg)
	if err == nil {
		_ = r.cache.Bump(ctx)
	}
	return id, err
}

// ReplaceBOM passes through and invalidates.
func (r *CachedRepository) ReplaceBOM(ctx context.Context, fgID int64, lines []BOMLine) error {
	if err := r.repo.ReplaceBOM(ctx, fgID, lines); err != nil {
		return err
	}
	return r.cache.Bump(ctx)
}

// IncrementUnits passes through and invalidates.
func (r *CachedRepository) IncrementUnits(ctx context.Context, fgID int64) error {
	if err := r.repo.IncrementUnits(ctx, fgID); err != nil {
		return err
	}
	return r.cache.Bump(ctx)
}

// List always reads from the repository; listings are filtered and
// paginated, caching them buys little.
func (r *CachedRepository) List(ctx context.Context, filter ListFilter) ([]FinishedGood, error) {
	return r.repo.List(ctx, filter)
}
