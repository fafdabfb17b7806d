// Package cache is the TTL-keyed response cache that spares repeat paid
// calls. Entries are keyed by task, model, and the task's selected payload
// fields; per-task policy decides whether a task caches at all and for how
// long.
package cache

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/natemoovs/zerochurn-ai/internal/config"
	"github.com/natemoovs/zerochurn-ai/internal/provider"
)

// entry is one cached response. Entries are never mutated in place, only
// replaced or deleted.
type entry struct {
	value     *provider.Response
	expiresAt time.Time
	taskTag   string
	modelKey  string
	entityID  string
}

// Cache stores responses for cacheable tasks. All methods are safe for
// concurrent use; a single mutex guards the map and the hit/miss counters
// because reads also evict expired entries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	hits    uint64
	misses  uint64

	tasks  func() *config.TasksConfig
	fields func() config.CacheConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty cache reading task policies and field lists through
// the given accessors, so a config reload applies to subsequent operations.
func New(tasks func() *config.TasksConfig, fields func() config.CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]entry),
		tasks:   tasks,
		fields:  fields,
		logger:  logger,
		now:     time.Now,
	}
}

// policyFor returns the task's cache policy. Unknown tasks, disabled tasks,
// and zero-TTL tasks are all uncacheable.
func (c *Cache) policyFor(taskTag string) (config.TaskPolicy, bool) {
	policy, ok := c.tasks().Policy(taskTag)
	if !ok || !policy.Cache.Enabled || policy.Cache.TTLSeconds <= 0 {
		return config.TaskPolicy{}, false
	}
	return policy, true
}

// Cacheable reports whether the task's policy permits caching at all. Hosts
// use it to distinguish a real miss from an uncacheable task when counting
// cache events.
func (c *Cache) Cacheable(taskTag string) bool {
	_, ok := c.policyFor(taskTag)
	return ok
}

// Get returns the cached response for (taskTag, payload, modelKey). An
// uncacheable task always misses. Expired entries are evicted on read and
// count as misses. A key derivation failure degrades to a miss.
func (c *Cache) Get(taskTag string, payload map[string]any, modelKey string) (*provider.Response, bool) {
	policy, cacheable := c.policyFor(taskTag)
	if !cacheable {
		return nil, false
	}

	fields := c.fields()
	key, err := buildKey(taskTag, modelKey, payload, policy.CacheKeyFields, fields.VolatileFields, fields.EntityFields)
	if err != nil {
		c.logger.Warn("cache key derivation failed, treating as miss", "task", taskTag, "error", err)
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores a response for (taskTag, payload, modelKey). Uncacheable tasks
// store nothing; a key derivation failure drops the write.
func (c *Cache) Set(taskTag string, payload map[string]any, modelKey string, value *provider.Response) {
	policy, cacheable := c.policyFor(taskTag)
	if !cacheable || value == nil {
		return
	}

	fields := c.fields()
	key, err := buildKey(taskTag, modelKey, payload, policy.CacheKeyFields, fields.VolatileFields, fields.EntityFields)
	if err != nil {
		c.logger.Warn("cache key derivation failed, dropping write", "task", taskTag, "error", err)
		return
	}

	e := entry{
		value:     value,
		expiresAt: c.now().Add(time.Duration(policy.Cache.TTLSeconds) * time.Second),
		taskTag:   taskTag,
		modelKey:  modelKey,
		entityID:  entityID(payload, fields.EntityFields),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Invalidate removes entries matching the given filters and returns how many
// were removed. An empty taskTag matches every task; an empty entity matches
// every entity; entity is a substring match against the identifier embedded
// in the key. Both filters empty clears the whole cache.
func (c *Cache) Invalidate(taskTag, entity string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if taskTag != "" && e.taskTag != taskTag {
			continue
		}
		if entity != "" && !strings.Contains(e.entityID, entity) {
			continue
		}
		delete(c.entries, key)
		removed++
	}
	return removed
}

// ClearExpired sweeps out expired entries and returns how many were removed.
// Expiry is otherwise lazy, so the sweep exists for hosts that want to bound
// memory between reads.
func (c *Cache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports cache performance counters. Hits and misses cover cacheable
// tasks only; gets for uncacheable tasks are unconditional no-ops.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.entries),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
