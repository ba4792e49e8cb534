package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
)

// Open connects to the server in conf.Redis and pings it.
func Open(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

type Cache struct {
	client redis.UniversalClient
}

var _ core.Cache = (*Cache)(nil)

func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ErrCacheMiss
	} else if err != nil {
		return errors.Wrap(err, "reading "+key)
	}
	return errors.Wrap(json.Unmarshal(data, dest), "decoding "+key)
}

func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding "+key)
	}
	return errors.Wrap(c.client.Set(ctx, key, data, ttl).Err(), "writing "+key)
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "deleting keys")
}

// DeletePrefix deletes every key starting with prefix, eg. all the cached views of an exam.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "scanning "+prefix)
	}
	return c.Delete(ctx, keys...)
}

// NopCache never stores anything; used when Redis is disabled.
type NopCache struct{}

var _ core.Cache = NopCache{}

func (NopCache) GetJSON(context.Context, string, interface{}) error                { return core.ErrCacheMiss }
func (NopCache) SetJSON(context.Context, string, interface{}, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, ...string) error                           { return nil }
func (NopCache) DeletePrefix(context.Context, string) error                        { return nil }
