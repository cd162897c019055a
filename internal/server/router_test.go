package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpanel/tokengate/internal/gateway"
	"github.com/hostpanel/tokengate/internal/health"
	"github.com/hostpanel/tokengate/internal/ratelimit"
	"github.com/hostpanel/tokengate/internal/token"
)

func TestRouter_Probes(t *testing.T) {
	store := token.NewMemoryStore()
	counter := ratelimit.NewMemoryCounter()
	t.Cleanup(func() { _ = counter.Close() })

	gw, err := gateway.New(gateway.DefaultConfig(), store, counter)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Gateway: gw,
		Store:   store,
		Checker: health.NewChecker(),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID_GeneratedAndEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.request(httptest.NewRequest("GET", "/v1/whoami", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest("GET", "/v1/whoami", nil)
	r.Header.Set("X-Request-ID", "req-42")
	w = env.request(r)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
