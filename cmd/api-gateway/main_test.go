package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/llm-gateway/app"
	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/routes"
)

const testAPIKey = "gw_test_secret"

const testCatalog = `
models:
  - public_name: echo
    enabled: true
    capabilities:
      context_window: 8000
      max_output_tokens: 1024
      supports: { streaming: true }
      quality_tier: economy
    variants:
      - provider: mock
        provider_model: mock-echo
        enabled: true
        pricing:
          unit_prices: { input_per_1k: 1, output_per_1k: 1 }
        regions:
          available_regions: [LOCAL]
        routing:
          enabled: true
          rollout: { type: percentage, percentage: 100 }
          weights: { base_weight: 1 }
`

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(ctx) })

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

var authorized = map[string]string{"Authorization": "Bearer " + testAPIKey, "Content-Type": "application/json"}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	t.Run("health check returns ok", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/healthz", "", nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("ready with the mock provider", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/readyz", "", nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ready", body["status"])
	})
}

func TestReadinessWithoutProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.Mock.Enabled = false
	ts := newTestServer(t, cfg)

	resp := do(t, http.MethodGet, ts.URL+"/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPIEndpointsRequireKey(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	testCases := []struct {
		name   string
		method string
		path   string
	}{
		{"create response", http.MethodPost, "/v1/responses"},
		{"stream response", http.MethodPost, "/v1/responses/stream"},
		{"chat completion", http.MethodPost, "/v1/chat.completions"},
		{"list models", http.MethodGet, "/v1/models"},
		{"get model", http.MethodGet, "/v1/models/echo"},
		{"usage", http.MethodGet, "/v1/usage"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, tc.method, ts.URL+tc.path, "{}", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/v1/models", "", map[string]string{"X-API-Key": "nope"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/v2/nothing", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestResponsesEndToEnd(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	t.Run("generate", func(t *testing.T) {
		resp := do(t, http.MethodPost, ts.URL+"/v1/responses", `{"model":"echo","input":{"prompt":"hello"}}`, authorized)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "echo", body["model"])
		assert.Equal(t, resp.Header.Get("X-Request-ID"), body["request_id"])
		provider := body["provider"].(map[string]interface{})
		assert.Equal(t, "mock", provider["name"])
	})

	t.Run("unknown model", func(t *testing.T) {
		resp := do(t, http.MethodPost, ts.URL+"/v1/responses", `{"model":"nope","input":{"prompt":"hello"}}`, authorized)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("stream", func(t *testing.T) {
		resp := do(t, http.MethodPost, ts.URL+"/v1/responses/stream", `{"model":"echo","input":{"prompt":"hello"}}`, authorized)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		var events []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events = append(events, name)
			}
		}
		require.NotEmpty(t, events)
		assert.Equal(t, "response.created", events[0])
		assert.Equal(t, "response.completed", events[len(events)-1])
		assert.Contains(t, events, "response.usage")
	})

	t.Run("models and usage", func(t *testing.T) {
		resp := do(t, http.MethodGet, ts.URL+"/v1/models/echo", "", authorized)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(t, http.MethodGet, ts.URL+"/v1/usage", "", authorized)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var summary map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
		assert.Equal(t, "tenant-a", summary["tenant_id"])
		assert.Greater(t, summary["total_cost_usd"].(float64), 0.0)
	})
}

func TestCORSMiddleware(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	resp := do(t, http.MethodOptions, ts.URL+"/v1/responses", "", map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddleware(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "", map[string]string{"X-Request-ID": "caller-chosen"})
	assert.Equal(t, "caller-chosen", resp.Header.Get("X-Request-ID"))

	resp = do(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	assert.True(t, strings.HasPrefix(resp.Header.Get("X-Request-ID"), "req_"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	srv := newServer(cfg, http.NotFoundHandler())
	srv.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, cfg, zaptest.NewLogger(t)) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			ShutdownTimeout: 2 * time.Second,
		},
		Catalog: config.CatalogConfig{Source: config.CatalogSourceFile, Path: path, CacheTTL: time.Second},
		Usage:   config.UsageConfig{Sink: config.UsageSinkMemory},
		Health:  config.HealthConfig{Store: config.HealthStoreMemory, WindowMinutes: 5},
		Routing: config.RoutingConfig{
			DefaultStrategy:  "reliability",
			MaxFallbacks:     2,
			AttemptTimeout:   5 * time.Second,
			RateLimitBackoff: 10 * time.Millisecond,
		},
		Providers: config.ProvidersConfig{Mock: config.MockConfig{Enabled: true}},
		Auth: config.AuthConfig{APIKeys: []config.APIKeyConfig{
			{Key: testAPIKey, TenantID: "tenant-a", ProjectID: "proj-1"},
		}},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "json"},
	}
}
