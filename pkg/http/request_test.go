package http_test

import (
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "127.0.0.1/32"}}

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, config),
		"spoofed forwarding headers from an untrusted peer are ignored")
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Real-IP", "198.51.100.7")

	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	assert.Equal(t, "198.51.100.7", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_NoConfig_DefaultsSecurely(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestIPAllowed(t *testing.T) {
	allow := []string{"198.51.100.7", "10.1.0.0/16", "not-an-ip", "2001:db8::/32"}

	tests := []struct {
		ip   string
		want bool
	}{
		{"198.51.100.7", true},
		{"198.51.100.8", false},
		{"10.1.44.2", true},
		{"10.2.0.1", false},
		{"2001:db8::1", true},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, pkghttp.IPAllowed(tt.ip, allow))
		})
	}
}

func TestIPAllowed_EmptyListDeniesAll(t *testing.T) {
	assert.False(t, pkghttp.IPAllowed("127.0.0.1", nil))
}

func TestPagination(t *testing.T) {
	req := httptest.NewRequest("GET", "/?page=3&page_size=500", nil)
	page, size := pkghttp.Pagination(req, 20, 100)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, size)

	req = httptest.NewRequest("GET", "/?page=-1", nil)
	page, size = pkghttp.Pagination(req, 20, 100)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)
}
