package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstack/pinstack/pkg/registry"
)

func setupRedis(t *testing.T) *RedisClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &RedisClient{
		client: client,
		ttl: map[string]time.Duration{
			"package": time.Hour,
			"pins":    5 * time.Minute,
		},
	}
}

func TestRedisClient_PackageRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := setupRedis(t)
	defer c.Close()

	_, ok := c.GetPackage(ctx, "maya")
	assert.False(t, ok, "miss before set")

	c.SetPackage(ctx, &registry.Package{Name: "maya", CreatedAt: time.Now().UTC()})

	pkg, ok := c.GetPackage(ctx, "maya")
	require.True(t, ok)
	assert.Equal(t, "maya", pkg.Name)
}

func TestRedisClient_PinsRoundTripPreservesCoordinates(t *testing.T) {
	ctx := context.Background()
	c := setupRedis(t)
	defer c.Close()

	coord, err := registry.NewCoordinate("maya", "model", "bayou", "", "")
	require.NoError(t, err)
	pins := []*registry.VersionPin{{
		ID:         3,
		Coordinate: coord,
		Distribution: registry.Distribution{
			ID: 10, Package: "maya", Version: []string{"2018", "sp3"},
		},
		Withs: []string{"vray"},
	}}
	c.SetPins(ctx, "maya", pins)

	got, ok := c.GetPins(ctx, "maya")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].ID)
	assert.True(t, got[0].Coordinate.Equal(coord), "coordinate survives serialization")
	assert.Equal(t, []string{"vray"}, got[0].Withs)
}

func TestRedisClient_InvalidatePins(t *testing.T) {
	ctx := context.Background()
	c := setupRedis(t)
	defer c.Close()

	c.SetPins(ctx, "maya", []*registry.VersionPin{})
	_, ok := c.GetPins(ctx, "maya")
	require.True(t, ok)

	c.InvalidatePins(ctx, "maya")
	_, ok = c.GetPins(ctx, "maya")
	assert.False(t, ok)
}
