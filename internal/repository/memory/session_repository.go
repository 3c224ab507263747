package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// AttemptRepository keeps live attempts in memory. Attempts idle past the TTL are
// evicted and handed to the eviction callback so their camera and timer can be released.
type AttemptRepository[T any] struct {
	cache *cache.Cache
}

func NewAttemptRepository[T any](ttl time.Duration, onEvict func(id string, attempt T)) *AttemptRepository[T] {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	c := cache.New(ttl, 10*time.Minute)
	if onEvict != nil {
		c.OnEvicted(func(id string, v interface{}) {
			if attempt, ok := v.(T); ok {
				onEvict(id, attempt)
			}
		})
	}
	return &AttemptRepository[T]{cache: c}
}

func (r *AttemptRepository[T]) Save(id string, attempt T) {
	r.cache.Set(id, attempt, cache.DefaultExpiration)
}

// Get also refreshes the attempt's TTL.
func (r *AttemptRepository[T]) Get(id string) (T, bool) {
	var zero T
	x, found := r.cache.Get(id)
	if !found {
		return zero, false
	}
	attempt, ok := x.(T)
	if !ok {
		return zero, false
	}
	r.cache.Set(id, attempt, cache.DefaultExpiration)
	return attempt, true
}

func (r *AttemptRepository[T]) Delete(id string) {
	r.cache.Delete(id)
}

func (r *AttemptRepository[T]) Count() int {
	return r.cache.ItemCount()
}

// All returns a snapshot of every live attempt keyed by id.
func (r *AttemptRepository[T]) All() map[string]T {
	items := r.cache.Items()
	out := make(map[string]T, len(items))
	for id, item := range items {
		if attempt, ok := item.Object.(T); ok {
			out[id] = attempt
		}
	}
	return out
}
