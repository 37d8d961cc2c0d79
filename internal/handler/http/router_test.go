package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/config"
)

func newTestEngine(t *testing.T, trustedProxies []string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := NewRouter(RouterDeps{
		Config: &config.Config{
			Server: config.ServerConfig{TrustedProxies: trustedProxies},
		},
		Logger: zap.NewNop(),
	})
	engine.GET("/client-ip", func(c *gin.Context) {
		c.String(http.StatusOK, c.ClientIP())
	})
	return engine
}

func TestRouter_ClientIPIgnoresForwardedHeaderByDefault(t *testing.T) {
	engine := newTestEngine(t, nil)

	// Rate limiting keys on the client IP, so a spoofed X-Forwarded-For must
	// not replace the socket peer.
	req := httptest.NewRequest(http.MethodGet, "/client-ip", nil)
	req.RemoteAddr = "203.0.113.7:4711"
	req.Header.Set("X-Forwarded-For", "9.9.9.9")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "203.0.113.7", rec.Body.String())
}

func TestRouter_ClientIPHonorsConfiguredProxy(t *testing.T) {
	engine := newTestEngine(t, []string{"203.0.113.7"})

	req := httptest.NewRequest(http.MethodGet, "/client-ip", nil)
	req.RemoteAddr = "203.0.113.7:4711"
	req.Header.Set("X-Forwarded-For", "198.51.100.23")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "198.51.100.23", rec.Body.String())
}

func TestRouter_Healthz(t *testing.T) {
	engine := newTestEngine(t, nil)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
