package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Monthly RecurrenceType = "MONTHLY"
	Yearly  RecurrenceType = "YEARLY"
	// Custom steps by calendar months, same as Monthly.
	Custom RecurrenceType = "CUSTOM"
)

const (
	dateLayout           = "2006-01-02"
	maxDescriptionLength = 200

	// MaxRecurrenceInterval caps the step count at one century of months.
	// Larger values overflow calendar arithmetic.
	MaxRecurrenceInterval = 1200
)

type (
	RecurrenceType string

	// Date is a calendar date stored as UTC midnight.
	Date struct {
		time.Time
	}

	// Expense is either a concrete transaction or, when IsRecurring is set,
	// a template that the generator expands into instances.
	Expense struct {
		ID                 int64           `json:"id"`
		Date               Date            `json:"date"`
		Category           string          `json:"category"`
		SubCategory        string          `json:"subCategory"` // "" means absent
		Description        string          `json:"description"`
		Amount             decimal.Decimal `json:"amount"`
		IsRecurring        bool            `json:"isRecurring"`
		RecurrenceType     RecurrenceType  `json:"recurrenceType,omitempty"`
		RecurrenceInterval *int            `json:"recurrenceInterval,omitempty"`
		RecurrenceEndDate  *Date           `json:"recurrenceEndDate,omitempty"`
		ParentExpenseID    *int64          `json:"parentExpenseId,omitempty"`
	}

	// DedupKey is the five-field tuple that identifies equivalent expenses.
	DedupKey struct {
		Date        Date
		Category    string
		SubCategory string
		Amount      decimal.Decimal
		Description string
	}

	Category struct {
		Name          string   `json:"name"`
		SubCategories []string `json:"subCategories"`
	}
)

var (
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyCategory      = errors.New("empty category")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrInvalidInterval    = errors.New("recurrence interval must be between 1 and 1200")
	ErrEndBeforeStart     = errors.New("recurrence end date must not be before the start date")
	ErrDuplicateExpense   = errors.New("duplicate expense")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// AddMonths moves the date by n calendar months. When the target month is
// shorter, the day is clamped to its last day (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// AddYears moves the date by n calendar years, clamping Feb 29 to Feb 28.
func (d Date) AddYears(n int) Date {
	return d.AddMonths(12 * n)
}

// MonthBounds returns the first and last day of the given month.
func MonthBounds(year int, month time.Month) (Date, Date) {
	start := NewDate(year, int(month), 1)
	return start, NewDate(year, int(month), daysIn(year, month))
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseRecurrenceType normalizes user input; unknown values are kept as-is so
// the projector can apply its monthly default.
func ParseRecurrenceType(s string) RecurrenceType {
	return RecurrenceType(strings.ToUpper(strings.TrimSpace(s)))
}

// IsKnown reports whether t is one of the supported recurrence types.
func (t RecurrenceType) IsKnown() bool {
	switch t {
	case Monthly, Yearly, Custom:
		return true
	default:
		return false
	}
}

// Normalize trims free-text fields and canonicalizes the recurrence type.
func (e *Expense) Normalize() {
	e.Category = strings.TrimSpace(e.Category)
	e.SubCategory = strings.TrimSpace(e.SubCategory)
	e.Description = strings.TrimSpace(e.Description)
	e.RecurrenceType = ParseRecurrenceType(string(e.RecurrenceType))
}

// Key returns the deduplication key of the expense.
func (e Expense) Key() DedupKey {
	return DedupKey{
		Date:        e.Date,
		Category:    e.Category,
		SubCategory: e.SubCategory,
		Amount:      e.Amount,
		Description: e.Description,
	}
}

// Interval returns the effective recurrence step count (1 when unset).
func (e Expense) Interval() int {
	if e.RecurrenceInterval == nil {
		return 1
	}
	return *e.RecurrenceInterval
}

// Instantiate materializes the occurrence of template e due on date.
func (e Expense) Instantiate(date Date) Expense {
	parentID := e.ID
	return Expense{
		Date:            date,
		Category:        e.Category,
		SubCategory:     e.SubCategory,
		Description:     e.Description,
		Amount:          e.Amount,
		ParentExpenseID: &parentID,
	}
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Description) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !e.IsRecurring {
		return nil
	}

	if e.RecurrenceInterval != nil && (*e.RecurrenceInterval < 1 || *e.RecurrenceInterval > MaxRecurrenceInterval) {
		return ErrInvalidInterval
	}
	if e.RecurrenceEndDate != nil && !e.RecurrenceEndDate.IsZero() && e.RecurrenceEndDate.Before(e.Date.Time) {
		return ErrEndBeforeStart
	}
	return nil
}

// Matches reports whether e carries exactly the fields of k.
func (k DedupKey) Matches(e Expense) bool {
	return e.Date.Equal(k.Date.Time) &&
		e.Category == k.Category &&
		e.SubCategory == k.SubCategory &&
		e.Amount.Equal(k.Amount) &&
		e.Description == k.Description
}

// CanonicalAmount renders an amount so that numerically equal values
// (10, 10.0, 10.00) produce the same string.
func CanonicalAmount(d decimal.Decimal) string {
	return d.String()
}
