package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"github.com/xela07ax/usage-analytics-dashboard/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*AuthService, *auth.BaseValidator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ops := NewStaticOperators("admin", string(hash))
	return NewAuthService(ops, auth.NewSigner(key, "test", 15*time.Minute)), auth.NewBaseValidator(&key.PublicKey)
}

func TestGenerateToken(t *testing.T) {
	svc, v := newService(t)

	resp, err := svc.GenerateToken(context.Background(), "admin", "s3cret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 900 {
		t.Fatalf("resp = %+v", resp)
	}

	claims, err := v.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "admin" {
		t.Fatalf("user = %q", claims.UserID)
	}
	if !claims.Scopes[domain.ScopeAnalyticsRead] || !claims.Scopes[domain.ScopeEventsWrite] {
		t.Fatalf("scopes = %v", claims.Scopes)
	}
}

func TestGenerateTokenInvalidCredentials(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.GenerateToken(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v", err)
	}
	if _, err := svc.GenerateToken(ctx, "ghost", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: err = %v", err)
	}
}

func TestStaticOperatorsDisabledWithoutUsername(t *testing.T) {
	ops := NewStaticOperators("", "")
	op, err := ops.GetOperator(context.Background(), "")
	if err != nil || op != nil {
		t.Fatalf("op = %+v, err = %v", op, err)
	}
}

type failingOperators struct{ err error }

func (f failingOperators) GetOperator(context.Context, string) (*domain.Operator, error) {
	return nil, f.err
}

func TestOperatorChainFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	chain := OperatorChain{NewStaticOperators("", ""), NewStaticOperators("ops", "h2"), NewStaticOperators("ops", "h3")}

	op, err := chain.GetOperator(ctx, "ops")
	if err != nil || op == nil || op.PasswordHash != "h2" {
		t.Fatalf("got %+v, %v", op, err)
	}
	if op, err := chain.GetOperator(ctx, "ghost"); op != nil || err != nil {
		t.Fatalf("ghost: got %+v, %v", op, err)
	}

	boom := errors.New("db down")
	broken := OperatorChain{failingOperators{err: boom}, NewStaticOperators("ops", "h")}
	if _, err := broken.GetOperator(ctx, "ops"); !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
}
