package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	*Server
	store *storage.MemoryStore
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	reports := services.NewReportService(store, cache.NewLRUCache[[]core.Expense](50, time.Minute))
	expenses := services.NewExpenseService(store, services.WithInvalidator(reports))
	categories := services.NewCategoryService(store)

	srv := NewServer(opts, expenses, reports, categories, store)
	srv.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, method, path, "application/json", body)
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

const groceries = `{"date":"2024-03-05","category":"Food","subCategory":"Groceries","description":"Weekly shop","amount":"54.20"}`

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: missing security headers", path)
		}
	}

	ts.Server.store = failingPinger{}
	if rr := ts.do(t, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing store: status=%d", rr.Code)
	}
}

func TestCreateExpense(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.doJSON(t, http.MethodPost, "/api/expenses", groceries)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody[core.Expense](t, rr)
	if created.ID == 0 || !created.Amount.Equal(decimal.RequireFromString("54.2")) {
		t.Errorf("unexpected created expense %+v", created)
	}

	// Same five fields with a differently written amount.
	dup := strings.Replace(groceries, `"54.20"`, `54.2`, 1)
	rr = ts.doJSON(t, http.MethodPost, "/api/expenses", dup)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "null" {
		t.Fatalf("duplicate: status=%d body=%s", rr.Code, rr.Body.String())
	}

	all, _ := ts.store.FindAll(context.Background())
	if len(all) != 1 {
		t.Errorf("stored %d expenses, want 1", len(all))
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"date":`, http.StatusBadRequest},
		{"unknown field", `{"date":"2024-03-05","category":"Food","amount":"1","colour":"red"}`, http.StatusBadRequest},
		{"missing category", `{"date":"2024-03-05","amount":"1"}`, http.StatusUnprocessableEntity},
		{"missing date", `{"category":"Food","amount":"1"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"date":"05/03/2024","category":"Food","amount":"1"}`, http.StatusUnprocessableEntity},
		{"bad amount", `{"date":"2024-03-05","category":"Food","amount":"abc"}`, http.StatusUnprocessableEntity},
		{"comma amount", `{"date":"2024-03-06","category":"Food","amount":"12,50"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.doJSON(t, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestListUpdateDelete(t *testing.T) {
	ts := newTestServer(t, Options{})
	first := decodeBody[core.Expense](t, ts.doJSON(t, http.MethodPost, "/api/expenses", groceries))
	ts.doJSON(t, http.MethodPost, "/api/expenses", `{"date":"2024-04-01","category":"Travel","amount":"300"}`)

	// Defaults to the current month (March 2024).
	list := decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/expenses", "", ""))
	if len(list) != 1 || list[0].ID != first.ID {
		t.Fatalf("month list = %+v", list)
	}
	list = decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/expenses?year=2024&month=5", "", ""))
	if len(list) != 0 {
		t.Errorf("empty month returned %d items", len(list))
	}
	if rr := ts.do(t, http.MethodGet, "/api/expenses?month=13", "", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid month status=%d", rr.Code)
	}
	byCategory := decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/expenses?category=Travel", "", ""))
	if len(byCategory) != 1 || byCategory[0].Category != "Travel" {
		t.Errorf("category list = %+v", byCategory)
	}
	if none := decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/expenses?category=Nope", "", "")); len(none) != 0 {
		t.Errorf("unknown category returned %d items", len(none))
	}
	all := decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/expenses/all", "", ""))
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	// Updating onto the other record's key is a conflict.
	rr := ts.doJSON(t, http.MethodPut, "/api/expenses/"+itoa(first.ID), `{"date":"2024-04-01","category":"Travel","amount":"300.00"}`)
	if rr.Code != http.StatusConflict {
		t.Errorf("conflicting update status=%d", rr.Code)
	}
	rr = ts.doJSON(t, http.MethodPut, "/api/expenses/"+itoa(first.ID), `{"date":"2024-03-05","category":"Food","amount":"60"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if updated := decodeBody[core.Expense](t, rr); updated.ID != first.ID || !updated.Amount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("updated = %+v", updated)
	}
	if rr := ts.doJSON(t, http.MethodPut, "/api/expenses/999", groceries); rr.Code != http.StatusNotFound {
		t.Errorf("update missing status=%d", rr.Code)
	}
	if rr := ts.doJSON(t, http.MethodPut, "/api/expenses/abc", groceries); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("update bad id status=%d", rr.Code)
	}

	if rr := ts.do(t, http.MethodDelete, "/api/expenses/"+itoa(first.ID), "", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodDelete, "/api/expenses/"+itoa(first.ID), "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}
}

func TestRecurringTemplates(t *testing.T) {
	ts := newTestServer(t, Options{})

	body := `{"date":"2024-01-15","category":"Housing","description":"Rent","amount":"1000.00","recurrenceType":"monthly","recurrenceInterval":1}`
	rr := ts.doJSON(t, http.MethodPost, "/api/expenses/recurring", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create template status=%d body=%s", rr.Code, rr.Body.String())
	}
	tmpl := decodeBody[core.Expense](t, rr)
	if !tmpl.IsRecurring || tmpl.RecurrenceType != core.Monthly {
		t.Errorf("template = %+v", tmpl)
	}

	bad := `{"date":"2024-01-15","category":"Housing","amount":"10","recurrenceInterval":0}`
	if rr := ts.doJSON(t, http.MethodPost, "/api/expenses/recurring", bad); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero interval status=%d", rr.Code)
	}
	huge := `{"date":"2024-01-15","category":"Housing","amount":"10","recurrenceInterval":9223372036854775807}`
	if rr := ts.doJSON(t, http.MethodPost, "/api/expenses/recurring", huge); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("huge interval status=%d body=%s", rr.Code, rr.Body.String())
	}

	updated := `{"date":"2024-01-15","category":"Housing","description":"Rent","amount":"1100.00","recurrenceType":"YEARLY"}`
	rr = ts.doJSON(t, http.MethodPut, "/api/expenses/recurring/"+itoa(tmpl.ID), updated)
	if rr.Code != http.StatusOK {
		t.Fatalf("update template status=%d body=%s", rr.Code, rr.Body.String())
	}

	list := decodeBody[[]core.Expense](t, ts.do(t, http.MethodGet, "/api/expenses/recurring", "", ""))
	if len(list) != 1 || list[0].RecurrenceType != core.Yearly || !list[0].IsRecurring {
		t.Fatalf("templates = %+v", list)
	}

	if rr := ts.do(t, http.MethodDelete, "/api/expenses/recurring/"+itoa(tmpl.ID), "", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete template status=%d", rr.Code)
	}
}

func TestReports(t *testing.T) {
	ts := newTestServer(t, Options{})
	for _, body := range []string{
		`{"date":"2024-01-10","category":"Food","amount":"10.50"}`,
		`{"date":"2024-01-20","category":"Travel","amount":"100"}`,
		`{"date":"2024-03-05","category":"Food","amount":"4.50"}`,
		`{"date":"2023-12-31","category":"Food","amount":"999"}`,
	} {
		if rr := ts.doJSON(t, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d", rr.Code)
		}
	}

	total := decodeBody[totalResponse](t, ts.do(t, http.MethodGet, "/api/expenses/monthly-total?year=2024&month=1", "", ""))
	if !total.Total.Equal(decimal.RequireFromString("110.50")) {
		t.Errorf("monthly total = %s", total.Total)
	}

	summary := decodeBody[summaryResponse](t, ts.do(t, http.MethodGet, "/api/expenses/category-summary?year=2024&month=1", "", ""))
	if !summary.Categories["Food"].Equal(decimal.RequireFromString("10.5")) || !summary.Total.Equal(decimal.RequireFromString("110.5")) {
		t.Errorf("category summary = %+v", summary)
	}

	trend := decodeBody[[]decimal.Decimal](t, ts.do(t, http.MethodGet, "/api/expenses/monthly-trend?year=2024", "", ""))
	if len(trend) != 12 {
		t.Fatalf("trend has %d entries", len(trend))
	}
	ytd := decodeBody[summaryResponse](t, ts.do(t, http.MethodGet, "/api/expenses/year-to-date?year=2024", "", ""))
	sum := decimal.Zero
	for _, v := range trend {
		sum = sum.Add(v)
	}
	if !sum.Equal(ytd.Total) || !sum.Equal(decimal.RequireFromString("115")) {
		t.Errorf("trend sum %s, year-to-date %s", sum, ytd.Total)
	}

	// Writes invalidate cached months.
	ts.doJSON(t, http.MethodPost, "/api/expenses", `{"date":"2024-01-25","category":"Food","amount":"1"}`)
	total = decodeBody[totalResponse](t, ts.do(t, http.MethodGet, "/api/expenses/monthly-total?year=2024&month=1", "", ""))
	if !total.Total.Equal(decimal.RequireFromString("111.50")) {
		t.Errorf("monthly total after insert = %s", total.Total)
	}
}

func TestImportJSON(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.doJSON(t, http.MethodPost, "/api/expenses", groceries)

	body := `[
		{"date":"2024-03-01","category":"Food","amount":"5"},
		{"date":"2024-03-02","category":"Food","amount":"6"},
		` + groceries + `
	]`
	rr := ts.doJSON(t, http.MethodPost, "/api/expenses/import", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decodeBody[core.ImportSummary](t, rr)
	if got != (core.ImportSummary{Imported: 2, Skipped: 1, Failed: 0}) {
		t.Errorf("summary = %+v", got)
	}
}

func TestImportCSV(t *testing.T) {
	ts := newTestServer(t, Options{})

	csvBody := "Date,Category,Sub_Category,Description,Amount\n" +
		"2024-02-01,Utilities,Power,Electricity,\"80,10\"\n" +
		"2024-02-01,Utilities,Power,Electricity,80.1\n" +
		"not-a-date,Utilities,,Water,10\n" +
		",,,,\n"
	rr := ts.do(t, http.MethodPost, "/api/expenses/import", "text/csv; charset=utf-8", csvBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decodeBody[core.ImportSummary](t, rr)
	if got != (core.ImportSummary{Imported: 1, Skipped: 1, Failed: 1}) {
		t.Errorf("summary = %+v", got)
	}

	if rr := ts.do(t, http.MethodPost, "/api/expenses/import", "text/csv", "foo,bar\n1,2\n"); rr.Code != http.StatusBadRequest {
		t.Errorf("missing columns status=%d", rr.Code)
	}
}

func TestImportXLSXUpload(t *testing.T) {
	ts := newTestServer(t, Options{})

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"date", "category", "subCategory", "description", "amount"},
		{"2024-05-01", "Food", "", "Lunch", 12.5},
		{"2024-05-02", "Food", "", "Dinner", "30"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var workbook bytes.Buffer
	if err := f.Write(&workbook); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "expenses.xlsx")
	part.Write(workbook.Bytes())
	mw.Close()

	rr := ts.do(t, http.MethodPost, "/api/expenses/import", mw.FormDataContentType(), body.String())
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[core.ImportSummary](t, rr); got.Imported != 2 || got.Failed != 0 {
		t.Errorf("summary = %+v", got)
	}
}

func TestImportTemplate(t *testing.T) {
	ts := newTestServer(t, Options{})
	rr := ts.do(t, http.MethodGet, "/api/expenses/import/template", "", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != contentTypeXLSX {
		t.Fatalf("status=%d content-type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	header, err := f.GetCellValue(f.GetSheetName(0), "E1")
	if err != nil || header != "amount" {
		t.Errorf("E1 = %q, %v", header, err)
	}
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, Options{})

	if rr := ts.doJSON(t, http.MethodPost, "/api/categories", `{"name":"Food"}`); rr.Code != http.StatusOK {
		t.Fatalf("create category status=%d", rr.Code)
	}
	if rr := ts.doJSON(t, http.MethodPost, "/api/categories", `{"name":"  "}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty category status=%d", rr.Code)
	}
	rr := ts.doJSON(t, http.MethodPost, "/api/categories/add-subcategory", `{"category":"Food","subCategory":"Groceries"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("add sub status=%d", rr.Code)
	}
	ts.doJSON(t, http.MethodPost, "/api/categories/add-subcategory", `{"category":"Food","subCategory":"Groceries"}`)

	list := decodeBody[[]core.Category](t, ts.do(t, http.MethodGet, "/api/categories", "", ""))
	if len(list) != 1 || len(list[0].SubCategories) != 1 {
		t.Fatalf("categories = %+v", list)
	}

	if rr := ts.do(t, http.MethodDelete, "/api/categories/Food", "", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodDelete, "/api/categories/Food", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}
}

func TestRateLimitOnlyMutatingRequests(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 1})

	if rr := ts.doJSON(t, http.MethodPost, "/api/expenses", groceries); rr.Code != http.StatusCreated {
		t.Fatalf("first post status=%d", rr.Code)
	}
	if rr := ts.doJSON(t, http.MethodPost, "/api/expenses", groceries); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second post status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/expenses/all", "", ""); rr.Code != http.StatusOK {
		t.Errorf("get status=%d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Options{CORSOrigin: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("status=%d headers=%v", rr.Code, rr.Header())
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
