package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"expensetracker/internal/core"
)

const expenseColumns = `id, date, category, sub_category, description, amount, is_recurring,
	recurrence_type, recurrence_interval, recurrence_end_date, parent_expense_id`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serializing connections avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanSQLiteExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) FindAll(ctx context.Context) ([]core.Expense, error) {
	return r.query(ctx, "list expenses", `SELECT `+expenseColumns+` FROM expenses ORDER BY date, id`)
}

func (r *SQLiteRepository) FindByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return r.query(ctx, "find by date range",
		`SELECT `+expenseColumns+` FROM expenses WHERE date BETWEEN ? AND ? ORDER BY date, id`,
		start.String(), end.String())
}

func (r *SQLiteRepository) FindByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	return r.query(ctx, "find by category",
		`SELECT `+expenseColumns+` FROM expenses WHERE category = ? ORDER BY date, id`, category)
}

func (r *SQLiteRepository) FindByYearMonth(ctx context.Context, year int, month time.Month) ([]core.Expense, error) {
	start, end := core.MonthBounds(year, month)
	return r.FindByDateRange(ctx, start, end)
}

func (r *SQLiteRepository) FindRecurringTemplates(ctx context.Context) ([]core.Expense, error) {
	return r.query(ctx, "find recurring templates",
		`SELECT `+expenseColumns+` FROM expenses WHERE is_recurring = 1 ORDER BY date, id`)
}

func (r *SQLiteRepository) FindByParent(ctx context.Context, templateID int64) ([]core.Expense, error) {
	return r.query(ctx, "find by parent",
		`SELECT `+expenseColumns+` FROM expenses WHERE parent_expense_id = ? ORDER BY date, id`, templateID)
}

func (r *SQLiteRepository) FindDuplicate(ctx context.Context, key core.DedupKey) (core.Expense, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		WHERE date = ? AND category = ? AND sub_category = ? AND amount = ? AND description = ?
		LIMIT 1`,
		key.Date.String(), key.Category, key.SubCategory, core.CanonicalAmount(key.Amount), key.Description)
	e, err := scanSQLiteExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, false, nil
	}
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("find duplicate: %w", err)
	}
	return e, true, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, e core.Expense) (core.Expense, error) {
	args := []any{
		e.Date.String(), e.Category, e.SubCategory, e.Description, core.CanonicalAmount(e.Amount),
		e.IsRecurring, string(e.RecurrenceType), nullInt(e.RecurrenceInterval), nullDate(e.RecurrenceEndDate),
		nullInt64(e.ParentExpenseID),
	}

	if e.ID == 0 {
		res, err := r.db.ExecContext(ctx, `INSERT INTO expenses (date, category, sub_category, description, amount,
			is_recurring, recurrence_type, recurrence_interval, recurrence_end_date, parent_expense_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return core.Expense{}, fmt.Errorf("create expense: %w", sqliteErr(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return core.Expense{}, fmt.Errorf("read inserted id: %w", err)
		}
		e.ID = id
		slog.DebugContext(ctx, "Expense saved to SQLite", "id", e.ID, "date", e.Date.String(), "amount", e.Amount.String())
		return e, nil
	}

	res, err := r.db.ExecContext(ctx, `UPDATE expenses SET date = ?, category = ?, sub_category = ?, description = ?,
		amount = ?, is_recurring = ?, recurrence_type = ?, recurrence_interval = ?, recurrence_end_date = ?,
		parent_expense_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, append(args, e.ID)...)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, sqliteErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, ErrNotFound)
	}
	return e, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT c.name, s.name FROM categories c
		LEFT JOIN sub_categories s ON s.category_id = c.id
		ORDER BY c.id, s.position`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var name string
		var sub sql.NullString
		if err := rows.Scan(&name, &sub); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Name != name {
			out = append(out, core.Category{Name: name, SubCategories: []string{}})
		}
		if sub.Valid {
			last := &out[len(out)-1]
			last.SubCategories = append(last.SubCategories, sub.String)
		}
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FindCategory(ctx context.Context, name string) (core.Category, bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT s.name FROM categories c
		LEFT JOIN sub_categories s ON s.category_id = c.id
		WHERE c.name = ? ORDER BY s.position`, name)
	if err != nil {
		return core.Category{}, false, fmt.Errorf("find category %q: %w", name, err)
	}
	defer rows.Close()

	found := false
	c := core.Category{Name: name, SubCategories: []string{}}
	for rows.Next() {
		found = true
		var sub sql.NullString
		if err := rows.Scan(&sub); err != nil {
			return core.Category{}, false, fmt.Errorf("scan sub-category: %w", err)
		}
		if sub.Valid {
			c.SubCategories = append(c.SubCategories, sub.String)
		}
	}
	if err := rows.Err(); err != nil {
		return core.Category{}, false, err
	}
	return c, found, nil
}

func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, c.Name); err != nil {
		return fmt.Errorf("upsert category %q: %w", c.Name, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, c.Name).Scan(&id); err != nil {
		return fmt.Errorf("read category id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sub_categories WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("clear sub-categories: %w", err)
	}
	for i, sub := range c.SubCategories {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sub_categories (category_id, position, name) VALUES (?, ?, ?)`, id, i, sub); err != nil {
			return fmt.Errorf("insert sub-category %q: %w", sub, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sub_categories WHERE category_id IN (SELECT id FROM categories WHERE name = ?)`, name); err != nil {
		return fmt.Errorf("delete sub-categories: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete category %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) query(ctx context.Context, op, q string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanSQLiteExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteExpense(row rowScanner) (core.Expense, error) {
	var (
		e                  core.Expense
		date, amount, rt   string
		interval, parentID sql.NullInt64
		endDate            sql.NullString
	)
	if err := row.Scan(&e.ID, &date, &e.Category, &e.SubCategory, &e.Description, &amount, &e.IsRecurring,
		&rt, &interval, &endDate, &parentID); err != nil {
		return core.Expense{}, err
	}

	var err error
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.RecurrenceType = core.RecurrenceType(rt)
	if interval.Valid {
		v := int(interval.Int64)
		e.RecurrenceInterval = &v
	}
	if endDate.Valid && endDate.String != "" {
		d, err := core.ParseDate(endDate.String)
		if err != nil {
			return core.Expense{}, fmt.Errorf("parse end date %q: %w", endDate.String, err)
		}
		e.RecurrenceEndDate = &d
	}
	if parentID.Valid {
		v := parentID.Int64
		e.ParentExpenseID = &v
	}
	return e, nil
}

// sqliteErr maps a unique index violation to core.ErrDuplicateExpense.
func sqliteErr(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %v", core.ErrDuplicateExpense, err)
	}
	return err
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullDate(d *core.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
