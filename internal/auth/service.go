package auth

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/CorrectorMux/internal/config"
	"go.uber.org/zap"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Allows reports whether r may use endpoints that require role required.
// Admins may do everything operators may.
func (r Role) Allows(required Role) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleOperator:
		return required == RoleOperator
	default:
		return false
	}
}

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service authenticates the statically configured users.
type Service struct {
	users      map[string]config.UserConfig
	jwtHandler *JWTHandler
	hasher     *PasswordHasher
	logger     *zap.Logger
}

func NewService(cfg config.AuthConfig, logger *zap.Logger) *Service {
	users := make(map[string]config.UserConfig, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u
	}
	return &Service{
		users:      users,
		jwtHandler: NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		hasher:     NewPasswordHasher(),
		logger:     logger,
	}
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	Role        Role   `json:"role"`
}

// Login checks the password and issues an access token.
func (s *Service) Login(username, password string) (Token, error) {
	user, ok := s.users[username]
	if !ok {
		s.logger.Warn("Login failed", zap.String("username", username), zap.String("reason", "unknown user"))
		return Token{}, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("Stored password hash is unusable", zap.String("username", username), zap.Error(err))
		return Token{}, ErrInvalidCredentials
	}
	if !valid {
		s.logger.Warn("Login failed", zap.String("username", username), zap.String("reason", "invalid password"))
		return Token{}, ErrInvalidCredentials
	}

	role := Role(user.Role)
	token, expires, err := s.jwtHandler.GenerateAccessToken(username, role)
	if err != nil {
		return Token{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Info("User logged in", zap.String("username", username), zap.String("role", user.Role))
	return Token{AccessToken: token, ExpiresAt: expires.Unix(), Role: role}, nil
}

// ValidateToken parses an access token. Tokens of users no longer
// configured are rejected.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	claims, err := s.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if _, ok := s.users[claims.Subject]; !ok {
		return nil, fmt.Errorf("unknown user %q", claims.Subject)
	}
	return claims, nil
}
