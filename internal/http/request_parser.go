// Package http provides the JSON API server and its handlers.
//
// This file implements parsing and validation of request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensetracker/internal/core"
)

const maxJSONBody = 1 << 20

// requestError reports a request the server could not read (malformed) or
// whose fields are invalid.
type requestError struct {
	msg       string
	malformed bool
}

func (e *requestError) Error() string { return e.msg }

func malformed(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...), malformed: true}
}

func invalid(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams reads year and month from the query. Missing values
// default to now; present values must be valid.
func ParseMonthParams(r *http.Request, now time.Time) (MonthParams, error) {
	year, err := ParseYearParam(r, now)
	if err != nil {
		return MonthParams{}, err
	}
	params := MonthParams{Year: year, Month: now.Month()}

	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, invalid("invalid month %q: must be between 1 and 12", v)
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// ParseYearParam reads the year query parameter, defaulting to now.
func ParseYearParam(r *http.Request, now time.Time) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" {
		return now.Year(), nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || y < 1 || y > 9999 {
		return 0, invalid("invalid year %q", v)
	}
	return y, nil
}

// parseID reads the {id} path value.
func parseID(r *http.Request) (int64, error) {
	v := r.PathValue("id")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid id %q", v)
	}
	return id, nil
}

// decodeJSON reads a single JSON value into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return malformed("request body too large")
		}
		return malformed("invalid JSON body: %v", err)
	}
	return nil
}

// flexAmount accepts amounts as JSON numbers or strings ("12.34", "12,34").
type flexAmount string

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*a = flexAmount(str)
		return nil
	}
	*a = flexAmount(s)
	return nil
}

// expenseRequest is the wire form of an expense in request bodies.
type expenseRequest struct {
	Date               string     `json:"date"`
	Category           string     `json:"category"`
	SubCategory        string     `json:"subCategory"`
	Description        string     `json:"description"`
	Amount             flexAmount `json:"amount"`
	IsRecurring        bool       `json:"isRecurring"`
	RecurrenceType     string     `json:"recurrenceType"`
	RecurrenceInterval *int       `json:"recurrenceInterval"`
	RecurrenceEndDate  string     `json:"recurrenceEndDate"`
	ParentExpenseID    *int64     `json:"parentExpenseId"`
}

func (req expenseRequest) toExpense() (core.Expense, error) {
	e := core.Expense{
		Category:           sanitizeInput(req.Category),
		SubCategory:        sanitizeInput(req.SubCategory),
		Description:        sanitizeInput(req.Description),
		IsRecurring:        req.IsRecurring,
		RecurrenceType:     core.ParseRecurrenceType(req.RecurrenceType),
		RecurrenceInterval: req.RecurrenceInterval,
		ParentExpenseID:    req.ParentExpenseID,
	}

	if strings.TrimSpace(req.Date) == "" {
		return core.Expense{}, core.ErrZeroDate
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Expense{}, invalid("invalid date %q: expected YYYY-MM-DD", req.Date)
	}
	e.Date = date

	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w %q", core.ErrInvalidAmount, string(req.Amount))
	}
	e.Amount = amount

	if strings.TrimSpace(req.RecurrenceEndDate) != "" {
		end, err := core.ParseDate(req.RecurrenceEndDate)
		if err != nil {
			return core.Expense{}, invalid("invalid recurrenceEndDate %q: expected YYYY-MM-DD", req.RecurrenceEndDate)
		}
		e.RecurrenceEndDate = &end
	}
	return e, nil
}

// decodeExpense reads one expense from a JSON body.
func decodeExpense(w http.ResponseWriter, r *http.Request) (core.Expense, error) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return core.Expense{}, err
	}
	return req.toExpense()
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
