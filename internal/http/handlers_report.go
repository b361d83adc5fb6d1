package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

type totalResponse struct {
	Year  int             `json:"year"`
	Month int             `json:"month,omitempty"`
	Total decimal.Decimal `json:"total"`
}

type summaryResponse struct {
	Year       int                 `json:"year"`
	Month      int                 `json:"month,omitempty"`
	Categories core.CategoryTotals `json:"categories"`
	Total      decimal.Decimal     `json:"total"`
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r, s.today())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	totals, err := s.reports.CategorySummaryByMonth(r.Context(), params.Year, params.Month)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(summaryResponse{
		Year:       params.Year,
		Month:      int(params.Month),
		Categories: totals,
		Total:      totals.Total(),
	}).Write(w)
}

func (s *Server) handleYearToDate(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYearParam(r, s.today())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	totals, err := s.reports.YearToDateSummary(r.Context(), year)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(summaryResponse{
		Year:       year,
		Categories: totals,
		Total:      totals.Total(),
	}).Write(w)
}

func (s *Server) handleMonthlyTotal(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r, s.today())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	total, err := s.reports.MonthlyTotalFor(r.Context(), params.Year, params.Month)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(totalResponse{Year: params.Year, Month: int(params.Month), Total: total}).Write(w)
}

// handleMonthlyTrend returns twelve totals, January first.
func (s *Server) handleMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYearParam(r, s.today())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	trend, err := s.reports.MonthlyTrend(r.Context(), year)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(trend).Write(w)
}
