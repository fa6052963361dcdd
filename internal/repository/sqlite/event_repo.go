package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	_ "modernc.org/sqlite" // Драйвер SQLite без cgo
)

// timeLayout фиксированной ширины в UTC: сортировка по строке совпадает с сортировкой по времени.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EventRepo хранит события в локальном файле SQLite.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(dbPath string) (*EventRepo, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}

	r := &EventRepo{db: db}
	if err := r.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *EventRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			company_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			attribute TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			original_timestamp TEXT NOT NULL,
			value TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_usage_events_created_at ON usage_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_events_company_id ON usage_events(company_id);
	`)
	if err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	return nil
}

// WriteBatch пишет пачку в одной транзакции. Повтор id игнорируется,
// так повторный импорт того же CSV не плодит дубли. Возвращает только
// реально вставленные строки.
func (r *EventRepo) WriteBatch(ctx context.Context, events []domain.UsageEvent) ([]domain.UsageEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO usage_events
			(id, created_at, company_id, type, content, attribute, updated_at, original_timestamp, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]domain.UsageEvent, 0, len(events))
	for _, e := range events {
		var value sql.NullString
		if e.Value != nil {
			value = sql.NullString{String: *e.Value, Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			e.ID, formatTime(e.CreatedAt), e.CompanyID, e.Type, e.Content, e.Attribute,
			formatTime(e.UpdatedAt), formatTime(e.OriginalTimestamp), value,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: insert %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("sqlite: rows affected %s: %w", e.ID, err)
		}
		if n > 0 {
			inserted = append(inserted, e)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

func (r *EventRepo) LoadEvents(ctx context.Context) ([]domain.UsageEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, company_id, type, content, attribute, updated_at, original_timestamp, value
		FROM usage_events
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	defer rows.Close()

	var events []domain.UsageEvent
	for rows.Next() {
		var (
			e                                  domain.UsageEvent
			createdAt, updatedAt, originalTime string
			value                              sql.NullString
		)
		if err := rows.Scan(&e.ID, &createdAt, &e.CompanyID, &e.Type, &e.Content, &e.Attribute,
			&updatedAt, &originalTime, &value); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: event %s created_at: %w", e.ID, err)
		}
		if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: event %s updated_at: %w", e.ID, err)
		}
		if e.OriginalTimestamp, err = parseTime(originalTime); err != nil {
			return nil, fmt.Errorf("sqlite: event %s original_timestamp: %w", e.ID, err)
		}
		if value.Valid {
			v := value.String
			e.Value = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate events: %w", err)
	}
	return events, nil
}

func (r *EventRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *EventRepo) Close() error {
	return r.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
