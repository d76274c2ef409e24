package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type backend interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
	GetByID(ctx context.Context, id string) (domain.Task, error)
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	Update(ctx context.Context, id string, fields domain.TaskFields, expectedVersion int64) (domain.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	MaxOrderInColumn(ctx context.Context, column domain.Column) (float64, error)
}

const boardCacheKey = "board:tasks"

// Cache wraps a task store with a Redis-backed cache of the full board
// snapshot. Reads of individual tasks and column maxima bypass the cache:
// they feed version-checked writes and must observe the latest state.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching store wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// GetAll serves the board snapshot from Redis when present, falling back to
// the backing store on a miss or any Redis failure.
func (c *Cache) GetAll(ctx context.Context) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx); ok {
		return tasks, nil
	}

	tasks, err := c.base.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, tasks)
	return tasks, nil
}

func (c *Cache) GetByID(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetByID(ctx, id)
}

func (c *Cache) MaxOrderInColumn(ctx context.Context, column domain.Column) (float64, error) {
	return c.base.MaxOrderInColumn(ctx, column)
}

func (c *Cache) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.Create(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return created, nil
}

func (c *Cache) Update(ctx context.Context, id string, fields domain.TaskFields, expectedVersion int64) (domain.Task, error) {
	updated, err := c.base.Update(ctx, id, fields, expectedVersion)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx)
	return updated, nil
}

func (c *Cache) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.base.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		c.evict(ctx)
	}
	return deleted, nil
}

func (c *Cache) loadFromCache(ctx context.Context) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardCacheKey).Err()
}
