package dashboard

import (
	"context"
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("dashboard: invalid username or password")

// Authenticator проверяет логин оператора на форме входа.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) error
}

// OperatorAuth: единственный оператор из конфига (auth.operator_*), пароль в bcrypt.
type OperatorAuth struct {
	username     string
	passwordHash []byte
}

func NewOperatorAuth(username, passwordHash string) *OperatorAuth {
	return &OperatorAuth{username: username, passwordHash: []byte(passwordHash)}
}

func (a *OperatorAuth) Authenticate(_ context.Context, username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// bcrypt считаем всегда: время ответа не зависит от логина
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return ErrBadCredentials
	}
	return nil
}
