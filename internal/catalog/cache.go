package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared load, which outlives any single caller.
const loadTimeout = 10 * time.Second

// CachedSource is a Redis read-through cache in front of a Source. Ordered
// quantities are fixed once an order is created, so entries only expire by TTL.
// Redis failures degrade to direct reads.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedSource wraps next with Redis caching.
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{next: next, client: client, ttl: ttl, logger: logger}
}

// ResolveLine returns a cached line or loads it from the wrapped source.
func (c *CachedSource) ResolveLine(ctx context.Context, orderID, itemID int64) (LineInfo, error) {
	var info LineInfo
	err := c.fetch(ctx, keyLine(orderID, itemID), &info, func(ctx context.Context) (any, bool, error) {
		line, err := c.next.ResolveLine(ctx, orderID, itemID)
		return line, true, err
	})
	return info, err
}

// ListOrderLines returns cached order lines or loads them from the wrapped
// source. An empty result is not cached: lines may still be added to the order.
func (c *CachedSource) ListOrderLines(ctx context.Context, orderID int64) ([]LineInfo, error) {
	var lines []LineInfo
	err := c.fetch(ctx, keyOrder(orderID), &lines, func(ctx context.Context) (any, bool, error) {
		lines, err := c.next.ListOrderLines(ctx, orderID)
		return lines, len(lines) > 0, err
	})
	return lines, err
}

// ReloadOrderLines bypasses the cache, reads the order lines from the wrapped
// source and refreshes the cached copy.
func (c *CachedSource) ReloadOrderLines(ctx context.Context, orderID int64) ([]LineInfo, error) {
	lines, err := c.next.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if c.client == nil {
		return lines, nil
	}
	key := keyOrder(orderID)
	if len(lines) == 0 {
		err = c.client.Del(ctx, key).Err()
	} else {
		var raw []byte
		if raw, err = json.Marshal(lines); err == nil {
			err = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
	}
	if err != nil {
		c.logger.Warn("catalog cache refresh", slog.String("key", key), slog.Any("error", err))
	}
	return lines, nil
}

// Invalidate drops cached entries for an order, e.g. after lines were added.
func (c *CachedSource) Invalidate(ctx context.Context, orderID int64, itemIDs ...int64) error {
	if c.client == nil {
		return nil
	}
	keys := []string{keyOrder(orderID)}
	for _, itemID := range itemIDs {
		keys = append(keys, keyLine(orderID, itemID))
	}
	return c.client.Del(ctx, keys...).Err()
}

// fetch reads key from Redis or runs loader once for all concurrent callers.
// The loader reports whether its value may be cached.
func (c *CachedSource) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, bool, error)) error {
	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("catalog cache read", slog.String("key", key), slog.Any("error", err))
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		value, cacheable, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if c.client != nil && cacheable {
			if err := c.client.Set(loadCtx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog cache write", slog.String("key", key), slog.Any("error", err))
			}
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func keyLine(orderID, itemID int64) string {
	return strings.Join([]string{"catalog", "line", strconv.FormatInt(orderID, 10), strconv.FormatInt(itemID, 10)}, ":")
}

func keyOrder(orderID int64) string {
	return strings.Join([]string{"catalog", "order", strconv.FormatInt(orderID, 10), "lines"}, ":")
}
