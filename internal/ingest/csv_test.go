package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const sampleCSV = `id,created_at,company_id,type,content,attribute,extra,updated_at,original_timestamp,value
e1,2025-07-01 10:00:00.123+00,c1,page,User active CMMS - Acme Corp alice@acme.io /home,a,x,2025-07-01 10:00:00+00,null,
e2,2025-07-02 11:30:00+00,c2,page,User active CMMS - Globex bob@globex.com /wo,a,x,2025-07-02 11:30:00+00,2025-07-02 09:00:00+00,12.50
short,row
e3,not-a-date,c1,page,broken,a,x,2025-07-02 11:30:00+00,null,
e4,2025-07-03 08:00:00+00,c1,page,no email here,a,x,2025-07-03 08:00:00+00,,abc
`

func TestParseCSV(t *testing.T) {
	events, err := ParseCSV(strings.NewReader(sampleCSV), zap.NewNop())
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (short and broken rows skipped)", len(events))
	}

	e1 := events[0]
	if e1.ID != "e1" || e1.CompanyID != "c1" {
		t.Fatalf("unexpected first event: %+v", e1)
	}
	if !e1.OriginalTimestamp.Equal(e1.CreatedAt) {
		t.Fatalf("null original_timestamp must fall back to created_at")
	}
	if e1.Value != nil {
		t.Fatalf("empty value must be nil, got %q", *e1.Value)
	}

	e2 := events[1]
	if e2.Value == nil || *e2.Value != "12.5" {
		t.Fatalf("value = %v, want 12.5", e2.Value)
	}
	want := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	if !e2.OriginalTimestamp.Equal(want) {
		t.Fatalf("original_timestamp = %v", e2.OriginalTimestamp)
	}

	if events[2].Value != nil {
		t.Fatalf("non numeric value must be dropped")
	}
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("id,created_at\n"), zap.NewNop())
	if !errors.Is(err, ErrEmptyCSV) {
		t.Fatalf("err = %v, want ErrEmptyCSV", err)
	}
}

func TestCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	src := NewCSVSource(path, zap.NewNop())
	if err := src.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	events, err := src.LoadEvents(context.Background())
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}

	missing := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"), zap.NewNop())
	if err := missing.Ping(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
