package dashboard

import (
	"errors"
	"strings"
	"time"

	"github.com/xela07ax/usage-analytics-dashboard/internal/domain"
)

// InvalidDateRangeMessage показывается под фильтрами и блокирует Apply.
const InvalidDateRangeMessage = "Invalid date range. Please check your dates."

var ErrInvalidDateRange = errors.New("dashboard: invalid date range")

// FilterState: живые правки фильтров (Inputs) и последние примененные (Applied).
type FilterState struct {
	Inputs  domain.QueryParams `json:"inputs"`
	Applied domain.QueryParams `json:"applied"`
}

func NewFilterState() FilterState {
	return FilterState{
		Inputs:  domain.DefaultQueryParams(),
		Applied: domain.DefaultQueryParams(),
	}
}

// FilterPatch: частичное изменение полей ввода; nil означает "не трогать".
type FilterPatch struct {
	DateRange *int
	CompanyID *string
	Search    *string
	FromDate  *string
	ToDate    *string
}

// Change меняет только Inputs.
func (f *FilterState) Change(p FilterPatch) {
	if p.DateRange != nil {
		f.Inputs.DateRange = *p.DateRange
	}
	if p.CompanyID != nil {
		f.Inputs.CompanyID = strings.TrimSpace(*p.CompanyID)
		if f.Inputs.CompanyID == "" {
			f.Inputs.CompanyID = domain.AllCompanies
		}
	}
	if p.Search != nil {
		f.Inputs.Search = *p.Search
	}
	if p.FromDate != nil {
		f.Inputs.FromDate = strings.TrimSpace(*p.FromDate)
	}
	if p.ToDate != nil {
		f.Inputs.ToDate = strings.TrimSpace(*p.ToDate)
	}
}

// Apply переносит Inputs в Applied. refetch, изменилось ли хотя бы одно поле.
// При невалидном диапазоне дат ничего не переносится.
func (f *FilterState) Apply(now time.Time) (refetch bool, err error) {
	if err := ValidateDateRange(f.Inputs.FromDate, f.Inputs.ToDate, now); err != nil {
		return false, err
	}
	refetch = !f.Inputs.Equal(f.Applied)
	f.Applied = f.Inputs
	return refetch, nil
}

// Clear сбрасывает Inputs к значениям по умолчанию; Applied меняется только через Apply.
func (f *FilterState) Clear() {
	f.Inputs = domain.DefaultQueryParams()
}

// Reset сбрасывает оба набора. refetch, если примененные фильтры отличались от дефолтных.
func (f *FilterState) Reset() (refetch bool) {
	def := domain.DefaultQueryParams()
	refetch = !f.Applied.Equal(def)
	f.Inputs = def
	f.Applied = def
	return refetch
}

// TryLastYear ставит окно в 365 дней и сразу применяет его.
func (f *FilterState) TryLastYear() (refetch bool) {
	f.Inputs.DateRange = domain.LastYearDateRange
	refetch = !f.Inputs.Equal(f.Applied)
	f.Applied = f.Inputs
	return refetch
}

func (f FilterState) HasChangesToApply() bool {
	return !f.Inputs.Equal(f.Applied)
}

// HasActiveFilters: поля ввода отличаются от значений по умолчанию.
func (f FilterState) HasActiveFilters() bool {
	return !f.Inputs.Equal(domain.DefaultQueryParams())
}

// ValidateDateRange: каждая заданная дата разбирается и не позже сегодняшней,
// при обеих датах from <= to. Пустые даты допустимы.
func ValidateDateRange(from, to string, now time.Time) error {
	today := now.UTC().Truncate(24 * time.Hour)

	parse := func(s string) (time.Time, bool, error) {
		if s == "" {
			return time.Time{}, false, nil
		}
		d, err := time.Parse(domain.DateLayout, s)
		if err != nil {
			return time.Time{}, false, ErrInvalidDateRange
		}
		if d.After(today) {
			return time.Time{}, false, ErrInvalidDateRange
		}
		return d, true, nil
	}

	f, hasFrom, err := parse(from)
	if err != nil {
		return err
	}
	t, hasTo, err := parse(to)
	if err != nil {
		return err
	}
	if hasFrom && hasTo && f.After(t) {
		return ErrInvalidDateRange
	}
	return nil
}

// DateError: текст ошибки для формы, пусто если диапазон корректен.
func DateError(p domain.QueryParams, now time.Time) string {
	if ValidateDateRange(p.FromDate, p.ToDate, now) != nil {
		return InvalidDateRangeMessage
	}
	return ""
}
