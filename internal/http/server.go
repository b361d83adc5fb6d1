package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the API server.
type Options struct {
	Addr               string
	CORSOrigin         string
	RateLimitPerMinute int
	Location           *time.Location // default month/year for report queries
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	expenses   *services.ExpenseService
	reports    *services.ReportService
	categories *services.CategoryService
	store      Pinger
	location   *time.Location
	now        func() time.Time

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, expenses *services.ExpenseService, reports *services.ReportService, categories *services.CategoryService, store Pinger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		expenses:   expenses,
		reports:    reports,
		categories: categories,
		store:      store,
		location:   opts.Location,
		now:        time.Now,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	ipResolver := security.NewClientIPResolver()
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(ipResolver.ExtractClientIP, ratelimit.IsMutating, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})(handler)
	handler = security.CORSMiddleware(opts.CORSOrigin)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(ipResolver.ExtractClientIP).Middleware(handler)
	handler = applog.Middleware(opts.Logger.WithComponent(applog.ComponentHTTP))(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses", s.handleList)
	mux.HandleFunc("GET /api/expenses/all", s.handleListAll)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/expenses/recurring", s.handleListRecurring)
	mux.HandleFunc("POST /api/expenses/recurring", s.handleCreateRecurring)
	mux.HandleFunc("PUT /api/expenses/recurring/{id}", s.handleUpdateRecurring)
	mux.HandleFunc("DELETE /api/expenses/recurring/{id}", s.handleDeleteExpense)

	mux.HandleFunc("POST /api/expenses/import", s.handleImport)
	mux.HandleFunc("GET /api/expenses/import/template", s.handleImportTemplate)

	mux.HandleFunc("GET /api/expenses/category-summary", s.handleCategorySummary)
	mux.HandleFunc("GET /api/expenses/year-to-date", s.handleYearToDate)
	mux.HandleFunc("GET /api/expenses/monthly-total", s.handleMonthlyTotal)
	mux.HandleFunc("GET /api/expenses/monthly-trend", s.handleMonthlyTrend)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("POST /api/categories/add-subcategory", s.handleAddSubCategory)
	mux.HandleFunc("DELETE /api/categories/{name}", s.handleDeleteCategory)
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// today returns the current time in the configured zone.
func (s *Server) today() time.Time {
	return s.now().In(s.location)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
