package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderflow-core/internal/config"
	"orderflow-core/pkg/types"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.DashboardConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.DashboardConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://mm.internal:8080",
			cfg:     config.DashboardConfig{},
			reqHost: "mm.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

type fakeProvider struct {
	health types.HealthResponse
	depth  map[string]types.DepthResponse
}

func (f *fakeProvider) MetricsSnapshot(symbol string) (types.MetricsSnapshot, bool) {
	return types.MetricsSnapshot{}, false
}

func (f *fakeProvider) Depth(symbol string) (types.DepthResponse, bool) {
	d, ok := f.depth[symbol]
	return d, ok
}

func (f *fakeProvider) Health() types.HealthResponse {
	return f.health
}

func testHandlers(p *fakeProvider) *Handlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandlers(p, config.DashboardConfig{}, NewHub(logger), logger)
}

func TestHandleHealthReturnsProviderSnapshot(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{health: types.HealthResponse{OK: true, ActiveSymbols: []string{"BTCUSDT"}}}
	h := testHandlers(p)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleDepthReturns404ForUnknownSymbol(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{depth: map[string]types.DepthResponse{}}
	h := testHandlers(p)

	req := httptest.NewRequest(http.MethodGet, "/api/depth/{symbol}", nil)
	req.SetPathValue("symbol", "DOGEUSDT")
	rec := httptest.NewRecorder()
	h.HandleDepth(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleDepthReturnsSnapshotForKnownSymbol(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{depth: map[string]types.DepthResponse{"BTCUSDT": {LastUpdateID: 42}}}
	h := testHandlers(p)

	req := httptest.NewRequest(http.MethodGet, "/api/depth/{symbol}", nil)
	req.SetPathValue("symbol", "btcusdt")
	rec := httptest.NewRecorder()
	h.HandleDepth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
