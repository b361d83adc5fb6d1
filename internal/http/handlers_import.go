package http

import (
	"bytes"
	"net/http"

	applog "expensetracker/internal/log"
)

// handleImport adds every parsed row through the dedup-guarded insert path.
// Rows that cannot be parsed count as failed.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	parsed, err := parseImport(w, r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	summary := s.expenses.ImportBatch(r.Context(), parsed.expenses)
	summary.Failed += parsed.failed

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Import request finished",
		applog.FieldOperation, applog.OpImport,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	NewJSONResponse().Body(summary).Write(w)
}

// handleImportTemplate serves an empty XLSX workbook with the import header.
func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := writeXLSXTemplate(&buf); err != nil {
		FromError(r, err).Write(w)
		return
	}
	w.Header().Set("Content-Type", contentTypeXLSX)
	w.Header().Set("Content-Disposition", `attachment; filename="expenses-import.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
