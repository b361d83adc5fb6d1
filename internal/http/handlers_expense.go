package http

import (
	"net/http"
	"strings"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// handleCreateExpense answers 201 with the stored expense, or 200 with null
// when an equivalent expense already exists.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	e, err := decodeExpense(w, r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	s.create(w, r, e, false)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	e, err := decodeExpense(w, r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	s.create(w, r, e, true)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, e core.Expense, recurring bool) {
	ctx := r.Context()
	var (
		saved   core.Expense
		created bool
		err     error
	)
	if recurring {
		saved, created, err = s.expenses.AddRecurringTemplate(ctx, e)
	} else {
		saved, created, err = s.expenses.AddExpense(ctx, e)
	}
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	logger := applog.FromContext(ctx)
	if !created {
		logger.InfoContext(ctx, "Duplicate expense ignored", applog.NewFields().WithExpense(e).ToSlice()...)
		NewJSONResponse().Body(nil).Write(w)
		return
	}
	logger.InfoContext(ctx, "Expense created",
		applog.NewFields().WithOperation(applog.OpCreate).WithExpense(saved).ToSlice()...)
	NewJSONResponse().Status(http.StatusCreated).Body(saved).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, false)
}

func (s *Server) handleUpdateRecurring(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, true)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, recurring bool) {
	id, err := parseID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	e, err := decodeExpense(w, r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	var saved core.Expense
	if recurring {
		saved, err = s.expenses.UpdateRecurringTemplate(r.Context(), id, e)
	} else {
		saved, err = s.expenses.UpdateExpense(r.Context(), id, e)
	}
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(saved).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		FromError(r, err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted",
		applog.FieldOperation, applog.OpDelete, applog.FieldExpenseID, id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleList lists one month, or every expense of a category when
// ?category= is given.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		list, err := s.expenses.ListByCategory(r.Context(), category)
		writeList(w, r, list, err)
		return
	}

	params, err := ParseMonthParams(r, s.today())
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	list, err := s.expenses.ListByMonth(r.Context(), params.Year, params.Month)
	writeList(w, r, list, err)
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	list, err := s.expenses.ListAll(r.Context())
	writeList(w, r, list, err)
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	list, err := s.expenses.ListRecurringTemplates(r.Context())
	writeList(w, r, list, err)
}

// writeList renders list as a JSON array, never null.
func writeList(w http.ResponseWriter, r *http.Request, list []core.Expense, err error) {
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if list == nil {
		list = []core.Expense{}
	}
	NewJSONResponse().Body(list).Write(w)
}
