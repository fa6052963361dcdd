package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// OperatorRepo: учетки операторов для выдачи токенов (таблица operators).
type OperatorRepo struct {
	db *sql.DB
}

func NewOperatorRepoFromDB(db *sql.DB) *OperatorRepo {
	return &OperatorRepo{db: db}
}

// Operators открывает репозиторий операторов на том же пуле соединений.
func (r *EventRepo) Operators() *OperatorRepo {
	return &OperatorRepo{db: r.db}
}

func (r *OperatorRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS operators (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("postgres: ensure operators schema: %w", err)
	}
	return nil
}

// GetOperator возвращает nil, nil если оператора нет.
// scopes хранятся строкой через запятую: "analytics.read,events.write".
func (r *OperatorRepo) GetOperator(ctx context.Context, username string) (*domain.Operator, error) {
	const query = `SELECT username, password_hash, scopes FROM operators WHERE username = $1`

	var (
		op     domain.Operator
		scopes string
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(&op.Username, &op.PasswordHash, &scopes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get operator: %w", err)
	}

	op.Scopes = make(map[string]bool)
	for _, s := range strings.Split(scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			op.Scopes[s] = true
		}
	}
	return &op, nil
}
