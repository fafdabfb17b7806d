package cache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/natemoovs/zerochurn-ai/internal/config"
	"github.com/natemoovs/zerochurn-ai/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTasks() *config.TasksConfig {
	return &config.TasksConfig{Tasks: []config.TaskPolicy{
		{
			Tag:      "payment-recovery-email",
			BaseTier: "fast",
			Cache:    config.TaskCachePolicy{Enabled: true, TTLSeconds: 3600},
		},
		{
			Tag:            "renewal-risk-summary",
			BaseTier:       "quality",
			Cache:          config.TaskCachePolicy{Enabled: true, TTLSeconds: 1800},
			CacheKeyFields: []string{"companyId", "renewalDate"},
		},
		{
			Tag:      "live-escalation-reply",
			BaseTier: "balanced",
			Cache:    config.TaskCachePolicy{Enabled: false, TTLSeconds: 3600},
		},
		{
			Tag:      "zero-ttl-task",
			BaseTier: "fast",
			Cache:    config.TaskCachePolicy{Enabled: true, TTLSeconds: 0},
		},
	}}
}

func newTestCache() *Cache {
	tasks := testTasks()
	cacheCfg := config.CacheConfig{
		VolatileFields: []string{"timestamp", "requestId", "sessionId", "nonce"},
		EntityFields:   []string{"companyId", "customerId", "entityId", "accountId"},
	}
	return New(
		func() *config.TasksConfig { return tasks },
		func() config.CacheConfig { return cacheCfg },
		testLogger(),
	)
}

func testResponse(content string) *provider.Response {
	return &provider.Response{Content: content, InputTokens: 400, OutputTokens: 150}
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache()
	payload := map[string]any{"companyId": "acme-42", "amountDue": 129.99}

	c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("Dear Acme"))

	got, ok := c.Get("payment-recovery-email", payload, "gpt-4o-mini")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.Content != "Dear Acme" || got.InputTokens != 400 || got.OutputTokens != 150 {
		t.Errorf("unexpected cached response: %+v", got)
	}
}

func TestCache_DisabledTaskIsNoOp(t *testing.T) {
	c := newTestCache()
	payload := map[string]any{"companyId": "acme-42"}

	c.Set("live-escalation-reply", payload, "claude-sonnet", testResponse("hello"))
	if _, ok := c.Get("live-escalation-reply", payload, "claude-sonnet"); ok {
		t.Error("disabled task must never hit, even immediately after set")
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Errorf("disabled task must store nothing, got %d entries", s.Entries)
	}
}

func TestCache_ZeroTTLTaskIsNoOp(t *testing.T) {
	c := newTestCache()
	payload := map[string]any{"companyId": "acme-42"}

	c.Set("zero-ttl-task", payload, "gpt-4o-mini", testResponse("hello"))
	if _, ok := c.Get("zero-ttl-task", payload, "gpt-4o-mini"); ok {
		t.Error("zero-TTL task must never hit")
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Errorf("zero-TTL task must store nothing, got %d entries", s.Entries)
	}
}

func TestCache_UnknownTaskIsNoOp(t *testing.T) {
	c := newTestCache()
	payload := map[string]any{"companyId": "acme-42"}

	c.Set("never-configured", payload, "gpt-4o-mini", testResponse("hello"))
	if _, ok := c.Get("never-configured", payload, "gpt-4o-mini"); ok {
		t.Error("unknown task must never hit")
	}
}

func TestCache_ExpiryWithSimulatedClock(t *testing.T) {
	c := newTestCache()
	now := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	payload := map[string]any{"companyId": "acme-42"}
	c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("v1"))

	// Just before the 3600s TTL elapses: hit.
	now = now.Add(3599 * time.Second)
	if _, ok := c.Get("payment-recovery-email", payload, "gpt-4o-mini"); !ok {
		t.Error("expected hit before TTL elapsed")
	}

	// At exactly TTL: miss.
	now = now.Add(1 * time.Second)
	if _, ok := c.Get("payment-recovery-email", payload, "gpt-4o-mini"); ok {
		t.Error("expected miss at TTL boundary")
	}
}

func TestCache_ExpiredEntryEvictedOnRead(t *testing.T) {
	c := newTestCache()
	now := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	payload := map[string]any{"companyId": "acme-42"}
	c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("v1"))
	if s := c.Stats(); s.Entries != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Entries)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get("payment-recovery-email", payload, "gpt-4o-mini"); ok {
		t.Fatal("expected miss for expired entry")
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Errorf("expired entry must be evicted on read, got %d entries", s.Entries)
	}
}

func TestCache_VolatileFieldsShareOneEntry(t *testing.T) {
	c := newTestCache()

	first := map[string]any{"companyId": "acme-42", "amountDue": 129.99, "timestamp": "2026-08-21T10:00:00Z"}
	later := map[string]any{"companyId": "acme-42", "amountDue": 129.99, "timestamp": "2026-08-21T11:45:00Z", "requestId": "req-9"}

	c.Set("payment-recovery-email", first, "gpt-4o-mini", testResponse("shared"))

	got, ok := c.Get("payment-recovery-email", later, "gpt-4o-mini")
	if !ok {
		t.Fatal("payloads differing only in volatile fields must share an entry")
	}
	if got.Content != "shared" {
		t.Errorf("unexpected content %q", got.Content)
	}
}

func TestCache_AllowlistTaskKeysOnDeclaredFields(t *testing.T) {
	c := newTestCache()

	a := map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01", "notes": "long meeting transcript"}
	b := map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01", "notes": "a different transcript"}

	c.Set("renewal-risk-summary", a, "gpt-4o", testResponse("summary"))
	if _, ok := c.Get("renewal-risk-summary", b, "gpt-4o"); !ok {
		t.Error("fields outside the allowlist must not fragment the cache")
	}

	shifted := map[string]any{"companyId": "acme-42", "renewalDate": "2027-03-01"}
	if _, ok := c.Get("renewal-risk-summary", shifted, "gpt-4o"); ok {
		t.Error("allowlisted field change must miss")
	}
}

func TestCache_InvalidateByTask(t *testing.T) {
	c := newTestCache()

	c.Set("payment-recovery-email", map[string]any{"companyId": "acme-42"}, "gpt-4o-mini", testResponse("a"))
	c.Set("payment-recovery-email", map[string]any{"companyId": "globex-7"}, "gpt-4o-mini", testResponse("b"))
	c.Set("renewal-risk-summary", map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01"}, "gpt-4o", testResponse("c"))

	removed := c.Invalidate("payment-recovery-email", "")
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if _, ok := c.Get("renewal-risk-summary", map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01"}, "gpt-4o"); !ok {
		t.Error("other task's entries must survive")
	}
}

func TestCache_InvalidateByEntity(t *testing.T) {
	c := newTestCache()

	c.Set("payment-recovery-email", map[string]any{"companyId": "acme-42"}, "gpt-4o-mini", testResponse("a"))
	c.Set("renewal-risk-summary", map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01"}, "gpt-4o", testResponse("b"))
	c.Set("payment-recovery-email", map[string]any{"companyId": "globex-7"}, "gpt-4o-mini", testResponse("c"))

	// Entity filter alone busts one company across tasks.
	removed := c.Invalidate("", "acme-42")
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if _, ok := c.Get("payment-recovery-email", map[string]any{"companyId": "globex-7"}, "gpt-4o-mini"); !ok {
		t.Error("other entity's entries must survive")
	}
}

func TestCache_InvalidateByTaskAndEntity(t *testing.T) {
	c := newTestCache()

	c.Set("payment-recovery-email", map[string]any{"companyId": "acme-42"}, "gpt-4o-mini", testResponse("a"))
	c.Set("renewal-risk-summary", map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01"}, "gpt-4o", testResponse("b"))

	removed := c.Invalidate("payment-recovery-email", "acme-42")
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := c.Get("renewal-risk-summary", map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01"}, "gpt-4o"); !ok {
		t.Error("same entity under another task must survive a combined filter")
	}
}

func TestCache_InvalidateAllWithEmptyFilters(t *testing.T) {
	c := newTestCache()

	c.Set("payment-recovery-email", map[string]any{"companyId": "acme-42"}, "gpt-4o-mini", testResponse("a"))
	c.Set("renewal-risk-summary", map[string]any{"companyId": "globex-7", "renewalDate": "2026-12-01"}, "gpt-4o", testResponse("b"))

	if removed := c.Invalidate("", ""); removed != 2 {
		t.Errorf("expected full clear to remove 2, got %d", removed)
	}
	if s := c.Stats(); s.Entries != 0 {
		t.Errorf("expected empty cache, got %d entries", s.Entries)
	}
}

func TestCache_ClearExpiredSweepsOnlyExpired(t *testing.T) {
	c := newTestCache()
	now := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	// renewal-risk-summary TTL is 1800s, payment-recovery-email is 3600s.
	c.Set("renewal-risk-summary", map[string]any{"companyId": "acme-42", "renewalDate": "2026-12-01"}, "gpt-4o", testResponse("a"))
	c.Set("payment-recovery-email", map[string]any{"companyId": "acme-42"}, "gpt-4o-mini", testResponse("b"))

	now = now.Add(2000 * time.Second)
	if removed := c.ClearExpired(); removed != 1 {
		t.Errorf("expected 1 expired entry swept, got %d", removed)
	}
	if s := c.Stats(); s.Entries != 1 {
		t.Errorf("expected 1 surviving entry, got %d", s.Entries)
	}
	if removed := c.ClearExpired(); removed != 0 {
		t.Errorf("second sweep must find nothing, got %d", removed)
	}
}

func TestCache_StatsHitRate(t *testing.T) {
	c := newTestCache()
	payload := map[string]any{"companyId": "acme-42"}

	c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("a"))

	// Two hits, one miss.
	c.Get("payment-recovery-email", payload, "gpt-4o-mini")
	c.Get("payment-recovery-email", map[string]any{"companyId": "other"}, "gpt-4o-mini")
	c.Get("payment-recovery-email", payload, "gpt-4o-mini")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("expected 2 hits / 1 miss, got %d / %d", s.Hits, s.Misses)
	}
	if want := 2.0 / 3.0; s.HitRate < want-1e-9 || s.HitRate > want+1e-9 {
		t.Errorf("expected hit rate %v, got %v", want, s.HitRate)
	}
}

func TestCache_UncacheableGetsDoNotCountAsMisses(t *testing.T) {
	c := newTestCache()

	c.Get("live-escalation-reply", map[string]any{"companyId": "acme-42"}, "claude-sonnet")
	c.Get("never-configured", map[string]any{"companyId": "acme-42"}, "gpt-4o-mini")

	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("uncacheable gets must not move counters, got %+v", s)
	}
}

func TestCache_ReplaceDoesNotGrowEntries(t *testing.T) {
	c := newTestCache()
	payload := map[string]any{"companyId": "acme-42"}

	c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("v1"))
	c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("v2"))

	if s := c.Stats(); s.Entries != 1 {
		t.Errorf("replacing a key must keep one entry, got %d", s.Entries)
	}
	got, _ := c.Get("payment-recovery-email", payload, "gpt-4o-mini")
	if got.Content != "v2" {
		t.Errorf("expected latest value, got %q", got.Content)
	}
}

func TestCache_ConcurrentAccessWithSweep(t *testing.T) {
	c := newTestCache()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				payload := map[string]any{"companyId": fmt.Sprintf("company-%d-%d", n, j%10)}
				c.Set("payment-recovery-email", payload, "gpt-4o-mini", testResponse("x"))
				c.Get("payment-recovery-email", payload, "gpt-4o-mini")
				if j%50 == 0 {
					c.ClearExpired()
					c.Invalidate("", fmt.Sprintf("company-%d-3", n))
				}
			}
		}(i)
	}
	wg.Wait()

	// The point is surviving the race detector; counters just have to be sane.
	if s := c.Stats(); s.Hits == 0 {
		t.Errorf("unexpected stats after concurrent access: %+v", s)
	}
}
