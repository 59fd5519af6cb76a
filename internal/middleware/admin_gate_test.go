package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/yoked/internal/auth"
	pkghttp "github.com/BradenHooton/yoked/pkg/http"
	pkglogger "github.com/BradenHooton/yoked/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestRequireAdminCreation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	config := AdminCreationConfig{AllowedIPs: []string{"192.0.2.10", "10.20.0.0/16"}, SuperuserSecret: "create-admins"}

	tests := []struct {
		name       string
		remoteAddr string
		secret     string
		wantStatus int
	}{
		{"allowed ip and secret", "192.0.2.10:1234", "create-admins", http.StatusOK},
		{"allowed cidr", "10.20.3.4:1234", "create-admins", http.StatusOK},
		{"ip not allowed", "198.51.100.1:1234", "create-admins", http.StatusForbidden},
		{"wrong secret", "192.0.2.10:1234", "guess", http.StatusForbidden},
		{"missing secret", "192.0.2.10:1234", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/api/admin/create", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.secret != "" {
				req.Header.Set(auth.SuperuserSecretHeader, tt.secret)
			}
			w := httptest.NewRecorder()
			RequireAdminCreation(config, &pkghttp.IPConfig{}, pkglogger.NewAuditLogger(logger), logger)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, reached)
		})
	}
}

func TestRequireAdminCreation_EmptyConfigDeniesAll(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	req := httptest.NewRequest("POST", "/api/admin/create", nil)
	req.RemoteAddr = "127.0.0.1:1"
	w := httptest.NewRecorder()
	RequireAdminCreation(AdminCreationConfig{}, nil, nil, logger)(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
