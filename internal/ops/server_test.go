package ops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/natemoovs/zerochurn-ai/internal/ai"
	"github.com/natemoovs/zerochurn-ai/internal/catalog"
	"github.com/natemoovs/zerochurn-ai/internal/config"
	"github.com/natemoovs/zerochurn-ai/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testService() *ai.Service {
	cfg := config.DefaultConfig()
	models := &config.ModelsConfig{Models: []config.ModelConfig{
		{Key: "gpt-4o-mini", Provider: "openai", Tier: "fast", InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60, MaxTokens: 16384},
		{Key: "claude-opus", Provider: "anthropic", Tier: "premium", InputCostPerMillion: 15.00, OutputCostPerMillion: 75.00, MaxTokens: 4096},
	}}
	tasks := &config.TasksConfig{Tasks: []config.TaskPolicy{
		{
			Tag:      "payment-recovery-email",
			BaseTier: "fast",
			Cache:    config.TaskCachePolicy{Enabled: true, TTLSeconds: 3600},
		},
	}}
	return ai.New(ai.Deps{
		Config: func() *config.Config { return cfg },
		Models: func() *config.ModelsConfig { return models },
		Tasks:  func() *config.TasksConfig { return tasks },
		Invoker: func(ctx context.Context, model catalog.Model, req provider.Request) (*provider.Response, error) {
			return &provider.Response{Content: "ok", InputTokens: 100, OutputTokens: 50}, nil
		},
		Logger: testLogger(),
	})
}

func newTestServer() (*ai.Service, http.Handler) {
	svc := testService()
	return svc, NewServer(svc, testLogger()).Routes()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %q", body["status"])
	}
}

func TestStats_ReflectsRecordedCalls(t *testing.T) {
	svc, h := newTestServer()

	_, err := svc.Invoke(context.Background(), ai.InvokeRequest{
		TaskTag: "payment-recovery-email",
		Payload: map[string]any{"companyId": "co_1"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	rec := get(t, h, "/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats struct {
		TotalCalls int64 `json:"total_calls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stats.TotalCalls != 1 {
		t.Errorf("expected 1 call, got %d", stats.TotalCalls)
	}
}

func TestRecent_RejectsBadLimit(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/v1/stats/recent?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCost_RejectsBadWindow(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/v1/stats/cost?window=yesterday")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestExplain_RequiresTask(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/v1/routing/explain")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestExplain_EscalatesFromQuery(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/v1/routing/explain?task=payment-recovery-email&account_tier=enterprise")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var exp struct {
		Model struct {
			Key string `json:"Key"`
		} `json:"model"`
		Justification string `json:"justification"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if exp.Model.Key != "claude-opus" {
		t.Errorf("expected premium escalation to claude-opus, got %q", exp.Model.Key)
	}
	if !strings.Contains(exp.Justification, "enterprise") {
		t.Errorf("expected enterprise rule in justification, got %q", exp.Justification)
	}
}

func TestModels_ListsCatalog(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/v1/models")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Models []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(body.Models))
	}
	if body.Models[0].Key != "gpt-4o-mini" || body.Models[0].Tier != "fast" {
		t.Errorf("unexpected first model %+v", body.Models[0])
	}
}

func TestCacheInvalidate_RemovesEntries(t *testing.T) {
	svc, h := newTestServer()

	_, err := svc.Invoke(context.Background(), ai.InvokeRequest{
		TaskTag: "payment-recovery-email",
		Payload: map[string]any{"companyId": "co_9"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	rec := post(t, h, "/v1/cache/invalidate", `{"entity":"co_9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["removed"] != 1 {
		t.Errorf("expected 1 removed entry, got %d", body["removed"])
	}
}

func TestCacheInvalidate_EmptyBodyClearsAll(t *testing.T) {
	svc, h := newTestServer()

	for _, company := range []string{"co_1", "co_2"} {
		_, err := svc.Invoke(context.Background(), ai.InvokeRequest{
			TaskTag: "payment-recovery-email",
			Payload: map[string]any{"companyId": company},
		})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
	}

	rec := post(t, h, "/v1/cache/invalidate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["removed"] != 2 {
		t.Errorf("expected 2 removed entries, got %d", body["removed"])
	}
}

func TestCacheSweep(t *testing.T) {
	_, h := newTestServer()

	rec := post(t, h, "/v1/cache/sweep", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestModelHealth_EmptyBeforeTraffic(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/v1/models/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer()

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from promhttp, got %d", rec.Code)
	}
}
