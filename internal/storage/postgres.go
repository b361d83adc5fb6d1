package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

const (
	pgUniqueViolation = "23505"

	pgExpenseColumns = `id, date, category, sub_category, description, amount::text, is_recurring,
	recurrence_type, recurrence_interval, recurrence_end_date, parent_expense_id`
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository migrates the schema and opens a connection pool.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (core.Expense, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgExpenseColumns+` FROM expenses WHERE id = $1`, id)
	e, err := scanPgExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) FindAll(ctx context.Context) ([]core.Expense, error) {
	return r.query(ctx, "list expenses", `SELECT `+pgExpenseColumns+` FROM expenses ORDER BY date, id`)
}

func (r *PostgresRepository) FindByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return r.query(ctx, "find by date range",
		`SELECT `+pgExpenseColumns+` FROM expenses WHERE date BETWEEN $1 AND $2 ORDER BY date, id`,
		start.Time, end.Time)
}

func (r *PostgresRepository) FindByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	return r.query(ctx, "find by category",
		`SELECT `+pgExpenseColumns+` FROM expenses WHERE category = $1 ORDER BY date, id`, category)
}

func (r *PostgresRepository) FindByYearMonth(ctx context.Context, year int, month time.Month) ([]core.Expense, error) {
	start, end := core.MonthBounds(year, month)
	return r.FindByDateRange(ctx, start, end)
}

func (r *PostgresRepository) FindRecurringTemplates(ctx context.Context) ([]core.Expense, error) {
	return r.query(ctx, "find recurring templates",
		`SELECT `+pgExpenseColumns+` FROM expenses WHERE is_recurring ORDER BY date, id`)
}

func (r *PostgresRepository) FindByParent(ctx context.Context, templateID int64) ([]core.Expense, error) {
	return r.query(ctx, "find by parent",
		`SELECT `+pgExpenseColumns+` FROM expenses WHERE parent_expense_id = $1 ORDER BY date, id`, templateID)
}

func (r *PostgresRepository) FindDuplicate(ctx context.Context, key core.DedupKey) (core.Expense, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+pgExpenseColumns+` FROM expenses
		WHERE date = $1 AND category = $2 AND sub_category = $3 AND amount = $4::text::numeric AND description = $5
		LIMIT 1`,
		key.Date.Time, key.Category, key.SubCategory, key.Amount.String(), key.Description)
	e, err := scanPgExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, false, nil
	}
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("find duplicate: %w", err)
	}
	return e, true, nil
}

func (r *PostgresRepository) Save(ctx context.Context, e core.Expense) (core.Expense, error) {
	var endDate *time.Time
	if e.RecurrenceEndDate != nil && !e.RecurrenceEndDate.IsZero() {
		endDate = &e.RecurrenceEndDate.Time
	}
	args := []any{
		e.Date.Time, e.Category, e.SubCategory, e.Description, e.Amount.String(),
		e.IsRecurring, string(e.RecurrenceType), e.RecurrenceInterval, endDate, e.ParentExpenseID,
	}

	if e.ID == 0 {
		err := r.pool.QueryRow(ctx, `INSERT INTO expenses (date, category, sub_category, description, amount,
			is_recurring, recurrence_type, recurrence_interval, recurrence_end_date, parent_expense_id)
			VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10)
			RETURNING id`, args...).Scan(&e.ID)
		if err != nil {
			return core.Expense{}, fmt.Errorf("create expense: %w", pgErr(err))
		}
		return e, nil
	}

	tag, err := r.pool.Exec(ctx, `UPDATE expenses SET date = $1, category = $2, sub_category = $3,
		description = $4, amount = $5::text::numeric, is_recurring = $6, recurrence_type = $7,
		recurrence_interval = $8, recurrence_end_date = $9, parent_expense_id = $10, updated_at = now()
		WHERE id = $11`, append(args, e.ID)...)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", e.ID, pgErr(err))
	}
	if tag.RowsAffected() == 0 {
		return core.Expense{}, fmt.Errorf("expense %d: %w", e.ID, ErrNotFound)
	}
	return e, nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.name, COALESCE(array_agg(s.name ORDER BY s.position)
		FILTER (WHERE s.name IS NOT NULL), '{}')
		FROM categories c LEFT JOIN sub_categories s ON s.category_id = c.id
		GROUP BY c.id, c.name ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.Name, &c.SubCategories); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) FindCategory(ctx context.Context, name string) (core.Category, bool, error) {
	c := core.Category{Name: name}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(array_agg(s.name ORDER BY s.position)
		FILTER (WHERE s.name IS NOT NULL), '{}')
		FROM categories c LEFT JOIN sub_categories s ON s.category_id = c.id
		WHERE c.name = $1 GROUP BY c.id`, name).Scan(&c.SubCategories)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, false, nil
	}
	if err != nil {
		return core.Category{}, false, fmt.Errorf("find category %q: %w", name, err)
	}
	return c, true, nil
}

func (r *PostgresRepository) SaveCategory(ctx context.Context, c core.Category) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`, c.Name).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert category %q: %w", c.Name, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sub_categories WHERE category_id = $1`, id); err != nil {
			return fmt.Errorf("clear sub-categories: %w", err)
		}
		for i, sub := range c.SubCategories {
			if _, err := tx.Exec(ctx, `INSERT INTO sub_categories (category_id, position, name) VALUES ($1, $2, $3)`, id, i, sub); err != nil {
				return fmt.Errorf("insert sub-category %q: %w", sub, err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) DeleteCategory(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete category %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, op, q string, args ...any) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanPgExpense(rows)
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

func scanPgExpense(row pgx.Row) (core.Expense, error) {
	var (
		e        core.Expense
		date     time.Time
		amount   string
		rt       string
		endDate  *time.Time
		interval *int32
	)
	if err := row.Scan(&e.ID, &date, &e.Category, &e.SubCategory, &e.Description, &amount, &e.IsRecurring,
		&rt, &interval, &endDate, &e.ParentExpenseID); err != nil {
		return core.Expense{}, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.Date = core.DateOf(date)
	e.Amount = d
	e.RecurrenceType = core.RecurrenceType(rt)
	if interval != nil {
		v := int(*interval)
		e.RecurrenceInterval = &v
	}
	if endDate != nil {
		ed := core.DateOf(*endDate)
		e.RecurrenceEndDate = &ed
	}
	return e, nil
}

func pgErr(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrDuplicateExpense, pe.ConstraintName)
	}
	return err
}
