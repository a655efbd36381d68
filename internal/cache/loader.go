package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fronts an LRUCache with a load function. Concurrent misses for the
// same key share one load. Failed loads are not cached.
//
// A shared load is detached from the cancellation of whichever caller
// started it and is bounded by the load timeout instead. A caller whose
// context ends stops waiting and gets its context error.
type Loader[T any] struct {
	cache   *LRUCache[T]
	group   singleflight.Group
	timeout time.Duration
}

func NewLoader[T any](c *LRUCache[T]) *Loader[T] {
	return &Loader[T]{cache: c, timeout: DefaultLoadTimeout}
}

// DefaultLoadTimeout bounds a shared load when none is configured.
const DefaultLoadTimeout = 30 * time.Second

// WithLoadTimeout sets the upper bound of a shared load. Zero or negative
// values keep the current timeout.
func (l *Loader[T]) WithLoadTimeout(d time.Duration) *Loader[T] {
	if d > 0 {
		l.timeout = d
	}
	return l
}

// Get returns the cached value for key or runs load to fill it. hit reports
// whether the value came from the cache.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (value T, hit bool, err error) {
	if v, ok := l.cache.Get(key); ok {
		return v, true, nil
	}

	ch := l.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, v)
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
	if res.Err != nil {
		var zero T
		return zero, false, res.Err
	}
	v, ok := res.Val.(T)
	if !ok {
		var zero T
		return zero, false, fmt.Errorf("cache: unexpected value type %T for %q", res.Val, key)
	}
	return v, false, nil
}

// Forget drops key from the cache and from in-flight loads.
func (l *Loader[T]) Forget(key string) {
	l.group.Forget(key)
	l.cache.Delete(key)
}

// Invalidate drops every cached key with prefix.
func (l *Loader[T]) Invalidate(prefix string) int {
	return l.cache.DeletePrefix(prefix)
}

// Cache exposes the underlying LRU, e.g. for registration with a Manager.
func (l *Loader[T]) Cache() *LRUCache[T] {
	return l.cache
}
