package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
	"go.uber.org/zap"
)

// TimestampLayout: формат времени в выгрузке событий (Postgres text с зоной "-07").
const TimestampLayout = "2006-01-02 15:04:05.999999999-07"

// minColumns: id, created_at, company_id, type, content, attribute, ?, updated_at, original_timestamp
const minColumns = 9

var ErrEmptyCSV = errors.New("ingest: csv file is empty or missing data")

// ParseCSV читает события. Первая строка считается заголовком.
// Битые строки пропускаются с предупреждением, файл целиком не отвергается.
func ParseCSV(r io.Reader, logger *zap.Logger) ([]domain.UsageEvent, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest: read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, ErrEmptyCSV
	}

	events := make([]domain.UsageEvent, 0, len(records)-1)
	for i, record := range records[1:] {
		row := i + 1
		if len(record) < minColumns {
			logger.Warn("csv row has insufficient columns, skipping",
				zap.Int("row", row), zap.Int("columns", len(record)))
			continue
		}
		event, err := parseRow(record)
		if err != nil {
			logger.Warn("csv row skipped", zap.Int("row", row), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func parseRow(record []string) (domain.UsageEvent, error) {
	createdAt, err := time.Parse(TimestampLayout, record[1])
	if err != nil {
		return domain.UsageEvent{}, fmt.Errorf("invalid created_at: %w", err)
	}
	updatedAt, err := time.Parse(TimestampLayout, record[7])
	if err != nil {
		return domain.UsageEvent{}, fmt.Errorf("invalid updated_at: %w", err)
	}

	originalTimestamp := createdAt
	if !isNull(record[8]) {
		originalTimestamp, err = time.Parse(TimestampLayout, record[8])
		if err != nil {
			return domain.UsageEvent{}, fmt.Errorf("invalid original_timestamp: %w", err)
		}
	}

	// value необязателен; нечисловое значение просто отбрасываем
	var value *string
	if len(record) > minColumns && !isNull(record[9]) {
		if v, err := strconv.ParseFloat(record[9], 64); err == nil {
			s := strconv.FormatFloat(v, 'f', -1, 64)
			value = &s
		}
	}

	return domain.UsageEvent{
		ID:                record[0],
		CreatedAt:         createdAt,
		CompanyID:         record[2],
		Type:              record[3],
		Content:           record[4],
		Attribute:         record[5],
		UpdatedAt:         updatedAt,
		OriginalTimestamp: originalTimestamp,
		Value:             value,
	}, nil
}

func isNull(s string) bool {
	return s == "" || s == "null"
}

// CSVSource: источник событий поверх файла. Файл перечитывается на каждый LoadEvents,
// так Refresh подхватывает правки без рестарта.
type CSVSource struct {
	path   string
	logger *zap.Logger
}

func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger.With(zap.String("mod", "csv_source"))}
}

func (s *CSVSource) LoadEvents(ctx context.Context) ([]domain.UsageEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open csv: %w", err)
	}
	defer f.Close()

	events, err := ParseCSV(f, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("csv loaded", zap.String("path", s.path), zap.Int("events", len(events)))
	return events, nil
}

// Ping проверяет, что файл на месте (для /health).
func (s *CSVSource) Ping(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}
