package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/storage"
)

// RedisClient caches the hot read paths: package lookups and the pin set
// of a package. Cache errors are swallowed; a failed cache read falls
// through to the database and a failed write just skips the cache.
type RedisClient struct {
	client *redis.Client
	ttl    map[string]time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       config.RedisURL,
		Password:   config.RedisPassword,
		DB:         config.RedisDB,
		MaxRetries: config.RedisMaxRetries,
		PoolSize:   config.RedisPoolSize,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := config.CacheTTL
	if ttl == nil {
		ttl = storage.DefaultConfig().CacheTTL
	}
	return &RedisClient{client: client, ttl: ttl}, nil
}

func packageKey(name string) string { return "package:" + name }
func pinsKey(pkg string) string     { return "pins:" + pkg }

// GetPackage returns the cached package, if present and decodable.
func (c *RedisClient) GetPackage(ctx context.Context, name string) (*registry.Package, bool) {
	cached, err := c.client.Get(ctx, packageKey(name)).Result()
	if err != nil {
		return nil, false
	}
	var pkg registry.Package
	if err := json.Unmarshal([]byte(cached), &pkg); err != nil {
		return nil, false
	}
	return &pkg, true
}

// SetPackage caches a package lookup.
func (c *RedisClient) SetPackage(ctx context.Context, pkg *registry.Package) {
	data, err := json.Marshal(pkg)
	if err != nil {
		return
	}
	c.client.Set(ctx, packageKey(pkg.Name), data, c.ttl["package"])
}

// InvalidatePackages drops the package listing key. Individual package
// entries are immutable once created, so they are left in place.
func (c *RedisClient) InvalidatePackages(ctx context.Context) {
	c.client.Del(ctx, "packages:list")
}

// GetPins returns the cached pin set of a package, if present.
func (c *RedisClient) GetPins(ctx context.Context, pkg string) ([]*registry.VersionPin, bool) {
	cached, err := c.client.Get(ctx, pinsKey(pkg)).Result()
	if err != nil {
		return nil, false
	}
	var pins []*registry.VersionPin
	if err := json.Unmarshal([]byte(cached), &pins); err != nil {
		return nil, false
	}
	return pins, true
}

// SetPins caches the pin set of a package.
func (c *RedisClient) SetPins(ctx context.Context, pkg string, pins []*registry.VersionPin) {
	data, err := json.Marshal(pins)
	if err != nil {
		return
	}
	c.client.Set(ctx, pinsKey(pkg), data, c.ttl["pins"])
}

// InvalidatePins drops the cached pin set after any pin mutation.
func (c *RedisClient) InvalidatePins(ctx context.Context, pkg string) {
	c.client.Del(ctx, pinsKey(pkg))
}

// Ping verifies the connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
