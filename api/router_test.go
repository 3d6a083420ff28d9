package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/metascraper/cache"
	"github.com/use-agent/metascraper/config"
	"github.com/use-agent/metascraper/limiter"
	"github.com/use-agent/metascraper/models"
	"github.com/use-agent/metascraper/provider"
	"github.com/use-agent/metascraper/service"
)

// fakeProvider backs the router tests without any network.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "stub" }

func (fakeProvider) TryParseID(input string) (string, bool) {
	if input == "" || strings.HasPrefix(input, "bad") {
		return "", false
	}
	return input, true
}

func (fakeProvider) BuildDetailURL(id string) string {
	return "https://stub.example.com/works/" + id
}

func (fakeProvider) Search(_ context.Context, keyword string, _ int) ([]models.SearchHit, error) {
	if keyword == "boom" {
		return nil, models.Upstream("search exploded", nil)
	}
	return []models.SearchHit{{DetailURL: "https://stub.example.com/works/ID1"}}, nil
}

func (fakeProvider) FetchDetail(_ context.Context, url string) (*models.Metadata, error) {
	id := url[strings.LastIndex(url, "/")+1:]
	if id == "GONE1" {
		return nil, nil
	}
	return &models.Metadata{ID: id, Title: "stub " + id}, nil
}

func testConfig(token string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Mode:           "test",
			RequestTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			Token:      token,
			HeaderName: "X-API-Token",
		},
		ClientRate: config.ClientRateConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
		},
	}
}

func newTestRouter(t *testing.T, token string) http.Handler {
	t.Helper()
	p := fakeProvider{}
	reg := provider.NewRegistry(p)
	runtimes := map[string]*service.ProviderRuntime{
		"stub": {
			Provider: p,
			Slots:    limiter.NewSlotPool(2),
			Rate:     limiter.NewIntervalLimiter(0),
		},
	}
	orch := service.NewOrchestrator(runtimes, cache.New(100, time.Minute),
		100*time.Millisecond, 50, slog.New(slog.DiscardHandler))
	return NewRouter(orch, reg, testConfig(token), time.Now())
}

func doRequest(t *testing.T, h http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, models.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env models.Envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func TestRouter_Info(t *testing.T) {
	h := newTestRouter(t, "secret")
	w, env := doRequest(t, h, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.False(t, env.Timestamp.IsZero())

	data, _ := json.Marshal(env.Data)
	var info models.ServiceInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "metascraper", info.Name)
	assert.True(t, info.AuthEnabled)
}

func TestRouter_HealthIsOpen(t *testing.T) {
	h := newTestRouter(t, "secret")
	w, _ := doRequest(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var env models.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success, "health rides the uniform envelope like every other endpoint")

	data, _ := json.Marshal(env.Data)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 2, health.Slots.Max["stub"])
}

func TestRouter_MetricsIsOpen(t *testing.T) {
	h := newTestRouter(t, "secret")
	w, _ := doRequest(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthRequired(t *testing.T) {
	h := newTestRouter(t, "secret")

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"wrong token", map[string]string{"X-API-Token": "nope"}, http.StatusUnauthorized},
		{"configured header", map[string]string{"X-API-Token": "secret"}, http.StatusOK},
		{"bearer header", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doRequest(t, h, http.MethodGet, "/api/stub/ID1", tt.headers)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				require.NotNil(t, env.Error)
				assert.Equal(t, models.ErrCodeUnauthorized, env.Error.Code)
			}
		})
	}
}

func TestRouter_NoTokenConfiguredMeansOpen(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/ID1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestRouter_DetailEnvelope(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/ID1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
	assert.Nil(t, env.Error)

	data, _ := json.Marshal(env.Data)
	var meta models.Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "ID1", meta.ID)
	assert.Equal(t, "stub ID1", meta.Title)
}

func TestRouter_DetailInvalidID(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/bad-id", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrCodeInvalidInput, env.Error.Code)
}

func TestRouter_DetailNotFound(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/GONE1", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrCodeNotFound, env.Error.Code)
}

func TestRouter_DetailUnknownProvider(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/nosuch/ID1", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrCodeInvalidInput, env.Error.Code)
}

func TestRouter_SearchRequiresTitle(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/search", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrCodeInvalidInput, env.Error.Code)
}

func TestRouter_SearchOK(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/search?title=anything&max=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)

	data, _ := json.Marshal(env.Data)
	var results []models.Metadata
	require.NoError(t, json.Unmarshal(data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "ID1", results[0].ID)
}

func TestRouter_SearchUpstreamFailure(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/search?title=boom", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrCodeUpstream, env.Error.Code)
}

func TestRouter_SearchRejectsNonNumericMax(t *testing.T) {
	h := newTestRouter(t, "")
	w, env := doRequest(t, h, http.MethodGet, "/api/stub/search?title=x&max=lots", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.ErrCodeInvalidInput, env.Error.Code)
}

func TestRouter_Redirect(t *testing.T) {
	h := newTestRouter(t, "secret")

	// Redirects are public: no token needed.
	w, _ := doRequest(t, h, http.MethodGet, "/r/stub/ID1", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://stub.example.com/works/ID1", w.Header().Get("Location"))

	w, env := doRequest(t, h, http.MethodGet, "/r/stub/bad-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)

	w, _ = doRequest(t, h, http.MethodGet, "/r/nosuch/ID1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CacheAdmin(t *testing.T) {
	h := newTestRouter(t, "secret")

	// Warm the cache through the open detail route.
	open := newTestRouter(t, "")
	doRequest(t, open, http.MethodGet, "/api/stub/ID1", nil)

	w, env := doRequest(t, h, http.MethodGet, "/cache/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = doRequest(t, h, http.MethodDelete, "/cache/clear", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = doRequest(t, h, http.MethodDelete, "/cache/stub/ID1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	h := newTestRouter(t, "")

	w, _ := doRequest(t, h, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = doRequest(t, h, http.MethodGet, "/health", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
