package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// OperatorProvider отдает учетку оператора по логину (nil, nil, нет такого).
type OperatorProvider interface {
	GetOperator(ctx context.Context, username string) (*domain.Operator, error)
}

type AuthService struct {
	operators OperatorProvider
	signer    *auth.Signer
}

func NewAuthService(operators OperatorProvider, signer *auth.Signer) *AuthService {
	return &AuthService{operators: operators, signer: signer}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация
	op, err := s.operators.GetOperator(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("auth: lookup operator: %w", err)
	}
	if op == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Scopes берем из учетки
	scopes := make([]string, 0, len(op.Scopes))
	for scope, ok := range op.Scopes {
		if ok {
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)

	// 4. Подпись RS256
	token, err := s.signer.Sign(op.Username, scopes)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.signer.TTL() / time.Second),
	}, nil
}

// StaticOperators: единственный оператор из конфига (auth.operator_*).
type StaticOperators struct {
	operator domain.Operator
}

func NewStaticOperators(username, passwordHash string) *StaticOperators {
	return &StaticOperators{operator: domain.Operator{
		Username:     username,
		PasswordHash: passwordHash,
		Scopes: map[string]bool{
			domain.ScopeAnalyticsRead: true,
			domain.ScopeEventsWrite:   true,
		},
	}}
}

func (s *StaticOperators) GetOperator(_ context.Context, username string) (*domain.Operator, error) {
	if s.operator.Username == "" || username != s.operator.Username {
		return nil, nil
	}
	op := s.operator
	return &op, nil
}

// OperatorChain опрашивает источники по порядку, первый найденный оператор побеждает.
type OperatorChain []OperatorProvider

func (c OperatorChain) GetOperator(ctx context.Context, username string) (*domain.Operator, error) {
	for _, p := range c {
		op, err := p.GetOperator(ctx, username)
		if err != nil {
			return nil, err
		}
		if op != nil {
			return op, nil
		}
	}
	return nil, nil
}
