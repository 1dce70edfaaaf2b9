package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/fritter-graph/internal/config"
	"github.com/oggyb/fritter-graph/internal/metrics"
)

func setupCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	c := NewRedisCache(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestViewCountMissThenHit(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, ok, err := c.GetViewCount(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.RaiseViewCount(ctx, 7, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stored)

	n, ok, err := c.GetViewCount(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)
	assert.Equal(t, ViewCountTTL, mr.TTL("views:count:7"))
}

func TestRaiseViewCountNeverLowers(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, err := c.RaiseViewCount(ctx, 3, 4)
	require.NoError(t, err)
	mr.FastForward(30 * time.Minute)

	// a fill computed before the latest view must not win
	stored, err := c.RaiseViewCount(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored)
	assert.Equal(t, ViewCountTTL, mr.TTL("views:count:3"))

	stored, err = c.RaiseViewCount(ctx, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored)

	got, err := mr.Get("views:count:3")
	require.NoError(t, err)
	assert.Equal(t, "5", got)
}

func TestRaiseViewCountReplacesJunk(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	require.NoError(t, mr.Set("views:count:8", "not-a-number"))
	stored, err := c.RaiseViewCount(ctx, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored)

	n, ok, err := c.GetViewCount(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)
}

func TestDropViewCount(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, err := c.RaiseViewCount(ctx, 1, 9)
	require.NoError(t, err)
	require.NoError(t, c.DropViewCount(ctx, 1))
	assert.False(t, mr.Exists("views:count:1"))
}

func TestGetViewCountJunkIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	require.NoError(t, mr.Set("views:count:2", "not-a-number"))
	_, ok, err := c.GetViewCount(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetricsHookCountsCommands(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)

	sets := metrics.RedisOpsTotal.WithLabelValues("set", "success")
	gets := metrics.RedisOpsTotal.WithLabelValues("get", "success")
	setsBefore := testutil.ToFloat64(sets)
	getsBefore := testutil.ToFloat64(gets)

	require.NoError(t, c.Set(ctx, c.KeyForViewCount(5), 1, ViewCountTTL))
	_, _, err := c.GetViewCount(ctx, 6) // miss still counts as success
	require.NoError(t, err)

	assert.Equal(t, setsBefore+1, testutil.ToFloat64(sets))
	assert.Equal(t, getsBefore+1, testutil.ToFloat64(gets))
}
