package core

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON-encoded views (dashboards, analytics) per school.
// Writes that change the underlying data revalidate the affected keys by deleting them.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error // ErrCacheMiss when absent
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// CacheKey builds a tenant scoped cache key, eg. "school:<id>:dashboard".
func CacheKey(schoolID string, parts ...string) string {
	key := "school:" + schoolID
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// DashboardCacheKey is the key of a school's overview, revalidated by attendance and finance writes.
func DashboardCacheKey(schoolID string) string {
	return CacheKey(schoolID, "dashboard")
}

// RevalidateDashboard drops the cached overview of a school. Cache failures are not fatal.
func RevalidateDashboard(ctx context.Context, cache Cache, logger Logger, schoolID string) {
	if err := cache.Delete(ctx, DashboardCacheKey(schoolID)); err != nil && logger != nil {
		logger.Warn("revalidating dashboard cache", err, map[string]interface{}{"school_id": schoolID})
	}
}
