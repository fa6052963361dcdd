package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

var now = time.Date(2025, 7, 15, 13, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func TestApplyWithoutChangesDoesNotRefetch(t *testing.T) {
	f := NewFilterState()
	refetch, err := f.Apply(now)
	if err != nil || refetch {
		t.Fatalf("refetch = %v, err = %v", refetch, err)
	}
}

func TestApplyPromotesInputs(t *testing.T) {
	f := NewFilterState()
	f.Change(FilterPatch{Search: strp("acme"), DateRange: intp(7)})

	if f.Applied.Search != "" {
		t.Fatal("Change must not touch applied filters")
	}
	if !f.HasChangesToApply() {
		t.Fatal("expected pending changes")
	}

	refetch, err := f.Apply(now)
	if err != nil || !refetch {
		t.Fatalf("refetch = %v, err = %v", refetch, err)
	}
	if f.Applied.Search != "acme" || f.Applied.DateRange != 7 {
		t.Fatalf("applied = %+v", f.Applied)
	}
	if f.HasChangesToApply() {
		t.Fatal("no pending changes expected after apply")
	}

	// повторный Apply без правок
	if refetch, _ := f.Apply(now); refetch {
		t.Fatal("second apply must not refetch")
	}
}

func TestInvalidRangeBlocksApply(t *testing.T) {
	f := NewFilterState()
	f.Change(FilterPatch{FromDate: strp("2025-07-10"), ToDate: strp("2025-07-01")})

	refetch, err := f.Apply(now)
	if !errors.Is(err, ErrInvalidDateRange) || refetch {
		t.Fatalf("refetch = %v, err = %v", refetch, err)
	}
	if f.Applied != domain.DefaultQueryParams() {
		t.Fatalf("applied changed: %+v", f.Applied)
	}
	if DateError(f.Inputs, now) != InvalidDateRangeMessage {
		t.Fatal("expected date error message")
	}
}

func TestValidateDateRange(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{"", "", true},
		{"2025-07-01", "", true},
		{"", "2025-07-01", true},
		{"2025-07-01", "2025-07-01", true},
		{"2025-07-01", "2025-07-15", true},
		{"2025-07-02", "2025-07-01", false},
		{"2025-07-16", "", false},
		{"", "2025-08-01", false},
		{"07/01/2025", "", false},
	}
	for _, tc := range cases {
		err := ValidateDateRange(tc.from, tc.to, now)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateDateRange(%q, %q) = %v", tc.from, tc.to, err)
		}
	}
}

func TestClearResetsInputsOnly(t *testing.T) {
	f := NewFilterState()
	f.Change(FilterPatch{CompanyID: strp("c1")})
	if _, err := f.Apply(now); err != nil {
		t.Fatal(err)
	}

	f.Clear()
	if f.Inputs != domain.DefaultQueryParams() {
		t.Fatalf("inputs = %+v", f.Inputs)
	}
	if f.Applied.CompanyID != "c1" {
		t.Fatalf("applied = %+v", f.Applied)
	}
	if f.HasActiveFilters() {
		t.Fatal("cleared inputs are not active filters")
	}
	if refetch, _ := f.Apply(now); !refetch {
		t.Fatal("apply after clear should refetch")
	}
}

func TestResetAndLastYear(t *testing.T) {
	f := NewFilterState()
	if f.Reset() {
		t.Fatal("reset of defaults must not refetch")
	}

	if !f.TryLastYear() {
		t.Fatal("last year should refetch")
	}
	if f.Applied.DateRange != 365 || f.Inputs.DateRange != 365 {
		t.Fatalf("state = %+v", f)
	}
	if f.TryLastYear() {
		t.Fatal("second last-year click must not refetch")
	}

	if !f.Reset() {
		t.Fatal("reset from last year should refetch")
	}
	if f.Applied != domain.DefaultQueryParams() {
		t.Fatalf("applied = %+v", f.Applied)
	}
}

func TestChangeEmptyCompanyMeansAll(t *testing.T) {
	f := NewFilterState()
	f.Change(FilterPatch{CompanyID: strp("  ")})
	if f.Inputs.CompanyID != domain.AllCompanies {
		t.Fatalf("company = %q", f.Inputs.CompanyID)
	}
}
