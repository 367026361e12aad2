package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dmehra2102/vinyl-storefront/internal/order/domain"
)

const (
	keyPrefix   = "catalog:"
	loadTimeout = 5 * time.Second
)

type Lookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogItem, error)
}

// Cache is a read-through cache in front of a catalog Lookup. Redis failures
// degrade to the underlying lookup.
type Cache struct {
	log  *slog.Logger
	rdb  *redis.Client
	next Lookup
	ttl  time.Duration
	sfg  singleflight.Group
}

func NewCache(log *slog.Logger, rdb *redis.Client, next Lookup, ttl time.Duration) *Cache {
	return &Cache{log: log, rdb: rdb, next: next, ttl: ttl}
}

type cachedVinyl struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	AuthorName string          `json:"authorName"`
	Price      decimal.Decimal `json:"price"`
	ImageURL   string          `json:"imageUrl"`
}

// FindByID coalesces concurrent misses for the same id. The shared load runs
// detached from any one caller, so a caller that gives up only stops waiting.
func (c *Cache) FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogItem, error) {
	key := keyPrefix + id.String()

	ch := c.sfg.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return c.load(loadCtx, key, id)
	})

	select {
	case <-ctx.Done():
		return domain.CatalogItem{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.CatalogItem{}, res.Err
		}
		return res.Val.(domain.CatalogItem), nil
	}
}

func (c *Cache) load(ctx context.Context, key string, id uuid.UUID) (domain.CatalogItem, error) {
	item, err := c.get(ctx, key)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn("catalog cache get error", "vinyl_id", id, "err", err)
	}

	item, err = c.next.FindByID(ctx, id)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if err := c.set(ctx, key, item); err != nil {
		c.log.Warn("catalog cache set error", "vinyl_id", id, "err", err)
	}
	return item, nil
}

func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Del(ctx, keyPrefix+id.String()).Err()
}

func (c *Cache) get(ctx context.Context, key string) (domain.CatalogItem, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return domain.CatalogItem{}, err
	}
	var cv cachedVinyl
	if err := json.Unmarshal(raw, &cv); err != nil {
		return domain.CatalogItem{}, err
	}
	return domain.CatalogItem{
		ID:         cv.ID,
		Name:       cv.Name,
		AuthorName: cv.AuthorName,
		Price:      cv.Price,
		ImageURL:   cv.ImageURL,
	}, nil
}

func (c *Cache) set(ctx context.Context, key string, item domain.CatalogItem) error {
	raw, err := json.Marshal(cachedVinyl{
		ID:         item.ID,
		Name:       item.Name,
		AuthorName: item.AuthorName,
		Price:      item.Price,
		ImageURL:   item.ImageURL,
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}
