package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	lines       map[int64][]LineInfo
	resolveHits int
	listHits    int
}

func (s *stubSource) ResolveLine(ctx context.Context, orderID, itemID int64) (LineInfo, error) {
	s.resolveHits++
	for _, line := range s.lines[orderID] {
		if line.ItemID == itemID {
			return line, nil
		}
	}
	return LineInfo{}, ErrLineNotFound
}

func (s *stubSource) ListOrderLines(ctx context.Context, orderID int64) ([]LineInfo, error) {
	s.listHits++
	return s.lines[orderID], nil
}

func setupCache(t *testing.T) (*CachedSource, *stubSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	src := &stubSource{lines: map[int64][]LineInfo{
		1: {
			{OrderID: 1, ItemID: 10, OrderedQuantity: 10, ItemName: "Trekking Pole", ItemCode: "TP-01", CategoryID: 3, CategoryName: "Poles", CategoryCode: "POL"},
			{OrderID: 1, ItemID: 11, OrderedQuantity: 4, ItemName: "Dome Tent", ItemCode: "TN-02", CategoryID: 4, CategoryName: "Tents", CategoryCode: "TEN"},
		},
	}}
	return NewCachedSource(src, client, time.Minute, nil), src, mr
}

func TestCachedSourceResolveLine(t *testing.T) {
	cache, src, mr := setupCache(t)
	ctx := context.Background()

	first, err := cache.ResolveLine(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), first.OrderedQuantity)
	require.Equal(t, "Poles", first.CategoryName)

	second, err := cache.ResolveLine(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, src.resolveHits)
	require.True(t, mr.Exists("catalog:line:1:10"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.ResolveLine(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, src.resolveHits)
}

func TestCachedSourceDoesNotCacheMisses(t *testing.T) {
	cache, src, mr := setupCache(t)
	ctx := context.Background()

	_, err := cache.ResolveLine(ctx, 1, 99)
	require.True(t, errors.Is(err, ErrLineNotFound))
	require.False(t, mr.Exists("catalog:line:1:99"))

	_, err = cache.ResolveLine(ctx, 1, 99)
	require.ErrorIs(t, err, ErrLineNotFound)
	require.Equal(t, 2, src.resolveHits)
}

func TestCachedSourceListAndInvalidate(t *testing.T) {
	cache, src, mr := setupCache(t)
	ctx := context.Background()

	lines, err := cache.ListOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	_, err = cache.ListOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, src.listHits)

	require.NoError(t, cache.Invalidate(ctx, 1, 10))
	require.False(t, mr.Exists("catalog:order:1:lines"))

	_, err = cache.ListOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, src.listHits)
}

func TestCachedSourceFallsBackWhenRedisDown(t *testing.T) {
	cache, src, mr := setupCache(t)
	mr.Close()

	line, err := cache.ResolveLine(context.Background(), 1, 11)
	require.NoError(t, err)
	require.Equal(t, "Dome Tent", line.ItemName)
	require.Equal(t, 1, src.resolveHits)
}

func TestCachedSourceDoesNotCacheEmptyOrders(t *testing.T) {
	cache, src, mr := setupCache(t)
	ctx := context.Background()

	lines, err := cache.ListOrderLines(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, lines)
	require.False(t, mr.Exists("catalog:order:7:lines"))

	src.lines[7] = []LineInfo{{OrderID: 7, ItemID: 70, OrderedQuantity: 10}}
	lines, err = cache.ListOrderLines(ctx, 7)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 2, src.listHits)
	require.True(t, mr.Exists("catalog:order:7:lines"))
}

func TestCachedSourceReloadOrderLines(t *testing.T) {
	cache, src, mr := setupCache(t)
	ctx := context.Background()

	lines, err := cache.ListOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	src.lines[1] = append(src.lines[1], LineInfo{OrderID: 1, ItemID: 12, OrderedQuantity: 6})
	lines, err = cache.ReloadOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	lines, err = cache.ListOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, 2, src.listHits)

	src.lines[1] = nil
	lines, err = cache.ReloadOrderLines(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, lines)
	require.False(t, mr.Exists("catalog:order:1:lines"))
}

type gatedSource struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSource) ResolveLine(ctx context.Context, orderID, itemID int64) (LineInfo, error) {
	return LineInfo{}, ErrLineNotFound
}

func (g *gatedSource) ListOrderLines(ctx context.Context, orderID int64) ([]LineInfo, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return []LineInfo{{OrderID: orderID, ItemID: 1, OrderedQuantity: 2}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachedSourceLoadSurvivesCallerCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	cache := NewCachedSource(src, client, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.ListOrderLines(ctx, 5)
		errCh <- err
	}()

	<-src.started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	close(src.release)

	require.Eventually(t, func() bool { return mr.Exists("catalog:order:5:lines") }, time.Second, 5*time.Millisecond)
	lines, err := cache.ListOrderLines(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, int32(1), src.calls.Load())
}
