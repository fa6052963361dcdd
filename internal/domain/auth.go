package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims: claims сервисного токена, которым дашборд ходит в API.
type ServiceClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "analytics.read": true, "events.write": true
	jwt.RegisteredClaims
}

const (
	ScopeAnalyticsRead = "analytics.read"
	ScopeEventsWrite   = "events.write"
)

// LoginRequest: вход оператора (POST /auth/token и форма логина дашборда).
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator: учетная запись оператора дашборда (из конфига).
type Operator struct {
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отдаем наружу
	Scopes       map[string]bool `json:"scopes"`
}
