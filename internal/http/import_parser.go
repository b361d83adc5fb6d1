package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"expensetracker/internal/core"
)

const (
	maxImportBody = 10 << 20

	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// importColumns maps accepted header spellings to expenseRequest fields.
var importColumns = map[string]string{
	"date":         "date",
	"category":     "category",
	"subcategory":  "subCategory",
	"sub_category": "subCategory",
	"sub-category": "subCategory",
	"description":  "description",
	"amount":       "amount",
}

// parsedImport holds the rows that could be turned into expenses and the
// number that could not.
type parsedImport struct {
	expenses []core.Expense
	failed   int
}

// parseImport reads an import body as a JSON array, CSV, or XLSX workbook.
// Multipart uploads use the "file" field and are typed by extension.
func parseImport(w http.ResponseWriter, r *http.Request) (parsedImport, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = contentTypeJSON
	}

	var body io.Reader = r.Body
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return parsedImport{}, malformed("missing upload field \"file\": %v", err)
		}
		defer file.Close()
		body = file
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".csv":
			mediaType = contentTypeCSV
		case ".xlsx":
			mediaType = contentTypeXLSX
		default:
			mediaType = contentTypeJSON
		}
	}

	switch mediaType {
	case contentTypeCSV:
		return parseCSVImport(body)
	case contentTypeXLSX:
		return parseXLSXImport(body)
	default:
		return parseJSONImport(body)
	}
}

func parseJSONImport(body io.Reader) (parsedImport, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return parsedImport{}, malformed("invalid JSON array: %v", err)
	}

	var out parsedImport
	for _, item := range raw {
		var req expenseRequest
		if err := json.Unmarshal(item, &req); err != nil {
			out.failed++
			continue
		}
		out.add(req)
	}
	return out, nil
}

func parseCSVImport(body io.Reader) (parsedImport, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return parsedImport{}, malformed("invalid CSV: %v", err)
	}
	return parseTable(records, nil)
}

func parseXLSXImport(body io.Reader) (parsedImport, error) {
	f, err := excelize.OpenReader(body)
	if err != nil {
		return parsedImport{}, malformed("invalid XLSX workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return parsedImport{}, malformed("XLSX workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return parsedImport{}, malformed("read sheet %q: %v", sheets[0], err)
	}

	// Date cells come back as serial numbers in raw mode.
	serialDate := func(v string) string {
		if _, err := core.ParseDate(v); err == nil {
			return v
		}
		serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return v
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return v
		}
		return core.DateOf(t).String()
	}
	return parseTable(rows, map[string]func(string) string{"date": serialDate})
}

// parseTable converts a header row plus data rows. convert rewrites raw cell
// values per field before parsing.
func parseTable(rows [][]string, convert map[string]func(string) string) (parsedImport, error) {
	if len(rows) == 0 {
		return parsedImport{}, malformed("import has no header row")
	}

	columns := make(map[int]string)
	for i, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := importColumns[key]; ok {
			columns[i] = field
		}
	}
	for _, required := range []string{"date", "category", "amount"} {
		if !hasColumn(columns, required) {
			return parsedImport{}, malformed("import header is missing column %q", required)
		}
	}

	var out parsedImport
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		values := make(map[string]string, len(columns))
		for i, field := range columns {
			if i < len(row) {
				v := row[i]
				if fn, ok := convert[field]; ok {
					v = fn(v)
				}
				values[field] = v
			}
		}
		out.add(expenseRequest{
			Date:        values["date"],
			Category:    values["category"],
			SubCategory: values["subCategory"],
			Description: values["description"],
			Amount:      flexAmount(values["amount"]),
		})
	}
	return out, nil
}

func (p *parsedImport) add(req expenseRequest) {
	e, err := req.toExpense()
	if err != nil {
		p.failed++
		return
	}
	p.expenses = append(p.expenses, e)
}

func hasColumn(columns map[int]string, field string) bool {
	for _, f := range columns {
		if f == field {
			return true
		}
	}
	return false
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// writeXLSXTemplate renders an empty import workbook with the header row.
func writeXLSXTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []any{"date", "category", "subCategory", "description", "amount"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	_, err := io.Copy(w, &buf)
	return err
}
