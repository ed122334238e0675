package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/config"
	"go.uber.org/zap"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := cheapHasher().Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return h
}

func testAuthConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	t.Setenv("CMUX_TEST_JWT_SECRET", "test-secret-with-at-least-32-characters")
	return config.AuthConfig{
		JWTSecretEnv:   "CMUX_TEST_JWT_SECRET",
		AccessTokenTTL: time.Minute,
		Users: []config.UserConfig{
			{Username: "alice", PasswordHash: hashFor(t, "operator-pw"), Role: "operator"},
			{Username: "root", PasswordHash: hashFor(t, "admin-pw"), Role: "admin"},
			{Username: "broken", PasswordHash: "plain", Role: "operator"},
		},
	}
}

func TestServiceLogin(t *testing.T) {
	s := NewService(testAuthConfig(t), zap.NewNop())

	tok, err := s.Login("alice", "operator-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.Role != RoleOperator || tok.AccessToken == "" || tok.ExpiresAt <= time.Now().Unix() {
		t.Errorf("unexpected token %+v", tok)
	}

	claims, err := s.ValidateToken(tok.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != RoleOperator {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestServiceLoginFailures(t *testing.T) {
	s := NewService(testAuthConfig(t), zap.NewNop())

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "admin-pw"},
		{"unknown user", "mallory", "operator-pw"},
		{"unusable hash", "broken", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Login(tt.username, tt.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestServiceRejectsForeignTokens(t *testing.T) {
	s := NewService(testAuthConfig(t), zap.NewNop())

	foreign, _, err := NewJWTHandler("another-secret-with-32-characters!!", time.Minute).GenerateAccessToken("alice", RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := s.ValidateToken(foreign); err == nil {
		t.Error("token signed with another secret must be rejected")
	}

	expired, _, _ := NewJWTHandler("test-secret-with-at-least-32-characters", -time.Minute).GenerateAccessToken("alice", RoleOperator)
	if _, err := s.ValidateToken(expired); err == nil {
		t.Error("expired token must be rejected")
	}

	unknown, _, _ := s.jwtHandler.GenerateAccessToken("mallory", RoleAdmin)
	if _, err := s.ValidateToken(unknown); err == nil {
		t.Error("token of unconfigured user must be rejected")
	}
}

func TestRoleAllows(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleOperator, true},
		{RoleOperator, RoleOperator, true},
		{RoleOperator, RoleAdmin, false},
		{Role(""), RoleOperator, false},
	}
	for _, tt := range tests {
		if got := tt.role.Allows(tt.required); got != tt.want {
			t.Errorf("%q.Allows(%q) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}
}
