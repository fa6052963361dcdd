package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

const getOperatorSQL = `SELECT username, password_hash, scopes FROM operators WHERE username = $1`

func newMockOperators(t *testing.T) (*OperatorRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewOperatorRepoFromDB(db), mock
}

func TestGetOperatorParsesScopes(t *testing.T) {
	repo, mock := newMockOperators(t)
	mock.ExpectQuery(regexp.QuoteMeta(getOperatorSQL)).
		WithArgs("ops").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "scopes"}).
			AddRow("ops", "$2a$hash", "analytics.read, events.write,"))

	op, err := repo.GetOperator(context.Background(), "ops")
	if err != nil {
		t.Fatalf("GetOperator: %v", err)
	}
	if op == nil || op.Username != "ops" || op.PasswordHash != "$2a$hash" {
		t.Fatalf("unexpected operator %+v", op)
	}
	if len(op.Scopes) != 2 || !op.Scopes["analytics.read"] || !op.Scopes["events.write"] {
		t.Fatalf("unexpected scopes %v", op.Scopes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetOperatorMissingReturnsNil(t *testing.T) {
	repo, mock := newMockOperators(t)
	mock.ExpectQuery(regexp.QuoteMeta(getOperatorSQL)).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	op, err := repo.GetOperator(context.Background(), "nobody")
	if err != nil || op != nil {
		t.Fatalf("want nil, nil; got %+v, %v", op, err)
	}
}

func TestGetOperatorWrapsErrors(t *testing.T) {
	repo, mock := newMockOperators(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(getOperatorSQL)).
		WithArgs("ops").
		WillReturnError(boom)

	if _, err := repo.GetOperator(context.Background(), "ops"); !errors.Is(err, boom) {
		t.Fatalf("want wrapped error, got %v", err)
	}
}
