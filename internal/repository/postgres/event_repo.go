package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// eventColumns: порядок колонок для вставки
const eventColumns = 9

type EventRepo struct {
	db *sql.DB
}

// NewEventRepo открывает пул соединений. Доступность базы проверяем в main через Ping.
func NewEventRepo(connString string, maxConns int) (*EventRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &EventRepo{db: db}, nil
}

// NewEventRepoFromDB оборачивает готовый *sql.DB (тесты, общий пул).
func NewEventRepoFromDB(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			company_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			attribute TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
			original_timestamp TIMESTAMPTZ NOT NULL,
			value NUMERIC
		);
		CREATE INDEX IF NOT EXISTS idx_usage_events_created_at ON usage_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_events_company_id ON usage_events(company_id);
	`)
	if err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// WriteBatch: одна пакетная вставка (Bulk Insert). Повтор id игнорируется,
// RETURNING отдает id только вставленных строк.
func (r *EventRepo) WriteBatch(ctx context.Context, events []domain.UsageEvent) ([]domain.UsageEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*eventColumns)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * eventColumns
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		var value sql.NullString
		if e.Value != nil {
			value = sql.NullString{String: *e.Value, Valid: true}
		}
		vals = append(vals,
			e.ID, e.CreatedAt, e.CompanyID, e.Type, e.Content, e.Attribute,
			e.UpdatedAt, e.OriginalTimestamp, value,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO usage_events (id, created_at, company_id, type, content, attribute, updated_at, original_timestamp, value) VALUES %s ON CONFLICT (id) DO NOTHING RETURNING id",
		placeholders.String(),
	)

	rows, err := r.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("postgres: write batch of %d: %w", len(events), err)
	}
	defer rows.Close()

	stored := make(map[string]bool, len(events))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan inserted id: %w", err)
		}
		stored[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: write batch of %d: %w", len(events), err)
	}

	// Дубль id внутри пачки вставляется один раз: берем первое вхождение
	inserted := make([]domain.UsageEvent, 0, len(stored))
	for _, e := range events {
		if stored[e.ID] {
			inserted = append(inserted, e)
			delete(stored, e.ID)
		}
	}
	return inserted, nil
}

func (r *EventRepo) LoadEvents(ctx context.Context) ([]domain.UsageEvent, error) {
	query := `SELECT id, created_at, company_id, type, content, attribute, updated_at, original_timestamp, value::text
		FROM usage_events ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	var events []domain.UsageEvent
	for rows.Next() {
		var (
			e     domain.UsageEvent
			value sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.CompanyID, &e.Type, &e.Content, &e.Attribute,
			&e.UpdatedAt, &e.OriginalTimestamp, &value); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if value.Valid {
			v := value.String
			e.Value = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate events: %w", err)
	}
	return events, nil
}

// Ping проверяет доступность базы при старте
func (r *EventRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *EventRepo) Close() error {
	return r.db.Close()
}
