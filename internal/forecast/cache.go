package forecast

import (
	"container/list"
	"strconv"
	"sync"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/ml"
	"github.com/castlemilk/pfinance/insights/internal/observability"
	"golang.org/x/sync/singleflight"
)

const maxSweepInterval = 5 * time.Minute

// ModelCache keeps one trained model per user, bounded by user count (LRU) and
// idle time (TTL). An entry is only served while its fingerprint matches the
// caller's series.
type ModelCache struct {
	mu       sync.Mutex
	entries  map[int64]*list.Element
	order    *list.List // front is most recently used
	maxUsers int
	ttl      time.Duration
	now      func() time.Time

	group    singleflight.Group
	done     chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	userID      int64
	fingerprint string
	model       ml.Regressor
	trainedAt   time.Time
	lastUsed    time.Time
}

// NewModelCache creates a cache. A positive ttl starts a background sweep that
// runs until Stop.
func NewModelCache(maxUsers int, ttl time.Duration) *ModelCache {
	if maxUsers < 1 {
		maxUsers = 1
	}
	c := &ModelCache{
		entries:  make(map[int64]*list.Element),
		order:    list.New(),
		maxUsers: maxUsers,
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanup(min(ttl, maxSweepInterval))
	}
	return c
}

// Get returns the user's model if it was trained on fingerprint and has not expired.
func (c *ModelCache) Get(userID int64, fingerprint string) (ml.Regressor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	now := c.now()
	if c.expired(entry, now) {
		c.removeLocked(elem)
		observability.ModelCacheEvents.WithLabelValues(observability.CacheEvict).Inc()
		return nil, false
	}
	if entry.fingerprint != fingerprint {
		return nil, false
	}
	entry.lastUsed = now
	c.order.MoveToFront(elem)
	return entry.model, true
}

// Put stores model for the user, replacing any previous entry and evicting the
// least recently used user when full.
func (c *ModelCache) Put(userID int64, fingerprint string, model ml.Regressor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.entries[userID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.fingerprint = fingerprint
		entry.model = model
		entry.trainedAt = now
		entry.lastUsed = now
		c.order.MoveToFront(elem)
		return
	}

	c.entries[userID] = c.order.PushFront(&cacheEntry{
		userID:      userID,
		fingerprint: fingerprint,
		model:       model,
		trainedAt:   now,
		lastUsed:    now,
	})
	for c.order.Len() > c.maxUsers {
		c.removeLocked(c.order.Back())
		observability.ModelCacheEvents.WithLabelValues(observability.CacheEvict).Inc()
	}
	observability.ModelCacheSize.Set(float64(c.order.Len()))
}

// GetOrTrain returns the cached model for (userID, fingerprint) or runs train
// and caches its result. Concurrent misses for the same key share one training
// run. The boolean reports a cache hit.
func (c *ModelCache) GetOrTrain(userID int64, fingerprint string, train func() (ml.Regressor, error)) (ml.Regressor, bool, error) {
	if model, ok := c.Get(userID, fingerprint); ok {
		observability.ModelCacheEvents.WithLabelValues(observability.CacheHit).Inc()
		return model, true, nil
	}
	observability.ModelCacheEvents.WithLabelValues(observability.CacheMiss).Inc()

	key := strconv.FormatInt(userID, 10) + ":" + fingerprint
	v, err, _ := c.group.Do(key, func() (any, error) {
		if model, ok := c.Get(userID, fingerprint); ok {
			return model, nil
		}
		model, err := train()
		if err != nil {
			return nil, err
		}
		c.Put(userID, fingerprint, model)
		return model, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(ml.Regressor), false, nil
}

// Len returns the number of cached users.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stop signals the background sweep goroutine to exit. It is safe to call more than once.
func (c *ModelCache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *ModelCache) expired(entry *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.lastUsed) > c.ttl
}

func (c *ModelCache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry)
	delete(c.entries, entry.userID)
	observability.ModelCacheSize.Set(float64(c.order.Len()))
}

// sweep drops every expired entry and returns how many were removed.
func (c *ModelCache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*cacheEntry), now) {
			c.removeLocked(elem)
			removed++
		}
		elem = prev
	}
	if removed > 0 {
		observability.ModelCacheEvents.WithLabelValues(observability.CacheEvict).Add(float64(removed))
	}
	return removed
}

func (c *ModelCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
