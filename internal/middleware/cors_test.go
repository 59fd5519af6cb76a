package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.yoked.test"}))(okHandler())

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Origin", "https://app.yoked.test")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "https://app.yoked.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_RejectsOtherOrigins(t *testing.T) {
	for name, origins := range map[string][]string{
		"listed":    {"https://app.yoked.test"},
		"none set":  nil,
		"empty set": {},
	} {
		t.Run(name, func(t *testing.T) {
			handler := CORS(DefaultCORSConfig(origins))(okHandler())

			req := httptest.NewRequest("GET", "/api/users/me", nil)
			req.Header.Set("Origin", "https://evil.test")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_PreflightAllowsPreconditionHeaders(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://app.yoked.test"}))(okHandler())

	req := httptest.NewRequest("OPTIONS", "/api/users/me/profile", nil)
	req.Header.Set("Origin", "https://app.yoked.test")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	req.Header.Set("Access-Control-Request-Headers", "If-Match")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "https://app.yoked.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
