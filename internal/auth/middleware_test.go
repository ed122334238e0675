package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := NewService(testAuthConfig(t), zap.NewNop())

	r := gin.New()
	api := r.Group("/", s.Middleware())
	api.GET("/operator", RequireRole(RoleOperator), func(c *gin.Context) {
		c.String(http.StatusOK, Actor(c))
	})
	api.GET("/admin", RequireRole(RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, Actor(c))
	})
	return r, s
}

func TestMiddleware(t *testing.T) {
	r, s := newTestRouter(t)
	operator, err := s.Login("alice", "operator-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	admin, err := s.Login("root", "admin-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"missing header", "/operator", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "/operator", "Basic abc", http.StatusUnauthorized, ""},
		{"garbage token", "/operator", "Bearer abc", http.StatusUnauthorized, ""},
		{"operator", "/operator", "Bearer " + operator.AccessToken, http.StatusOK, "alice"},
		{"operator on admin route", "/admin", "Bearer " + operator.AccessToken, http.StatusForbidden, ""},
		{"admin on operator route", "/operator", "Bearer " + admin.AccessToken, http.StatusOK, "root"},
		{"admin", "/admin", "Bearer " + admin.AccessToken, http.StatusOK, "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, w.Body.String())
			}
		})
	}
}
