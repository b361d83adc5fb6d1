package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/sheets"
	"expensetracker/internal/storage"
)

type fakeWriter struct {
	rows []sheets.AuditRow
	err  error
}

func (w *fakeWriter) Append(_ context.Context, row sheets.AuditRow) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.rows = append(w.rows, row)
	return "Audit!A2:H2", nil
}

func seedExpense(t *testing.T, store *storage.MemoryStore) core.Expense {
	t.Helper()
	saved, err := store.Save(context.Background(), core.Expense{
		Date:        core.NewDate(2024, 5, 3),
		Category:    "Food",
		SubCategory: "Groceries",
		Description: "Weekly shop",
		Amount:      decimal.RequireFromString("54.20"),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return saved
}

func TestSheetsMirror_Created(t *testing.T) {
	store := storage.NewMemoryStore()
	saved := seedExpense(t, store)
	writer := &fakeWriter{}
	mirror := NewSheetsMirror(store, writer)

	event := amqp.NewExpenseEvent(saved.ID, amqp.EventCreated)
	if err := mirror.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(writer.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(writer.rows))
	}
	row := writer.rows[0]
	if row.Action != "created" || row.Expense == nil || row.Expense.Description != "Weekly shop" {
		t.Errorf("unexpected row %+v", row)
	}
	if !row.Timestamp.Equal(event.Timestamp) {
		t.Errorf("timestamp = %v, want event timestamp %v", row.Timestamp, event.Timestamp)
	}
}

func TestSheetsMirror_Deleted(t *testing.T) {
	writer := &fakeWriter{}
	mirror := NewSheetsMirror(storage.NewMemoryStore(), writer)

	event := &amqp.ExpenseEvent{ID: 42, Type: amqp.EventDeleted}
	if err := mirror.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(writer.rows) != 1 || writer.rows[0].Expense != nil || writer.rows[0].ExpenseID != 42 {
		t.Fatalf("unexpected rows %+v", writer.rows)
	}
	if writer.rows[0].Timestamp.IsZero() || time.Since(writer.rows[0].Timestamp) > time.Minute {
		t.Errorf("missing timestamp should default to now, got %v", writer.rows[0].Timestamp)
	}
}

func TestSheetsMirror_SkipsVanishedExpense(t *testing.T) {
	writer := &fakeWriter{}
	mirror := NewSheetsMirror(storage.NewMemoryStore(), writer)

	if err := mirror.HandleEvent(context.Background(), amqp.NewExpenseEvent(7, amqp.EventUpdated)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(writer.rows) != 0 {
		t.Errorf("expected no rows, got %d", len(writer.rows))
	}
}

func TestSheetsMirror_WriterError(t *testing.T) {
	store := storage.NewMemoryStore()
	saved := seedExpense(t, store)
	boom := errors.New("quota exceeded")
	mirror := NewSheetsMirror(store, &fakeWriter{err: boom})

	err := mirror.HandleEvent(context.Background(), amqp.NewExpenseEvent(saved.ID, amqp.EventCreated))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}
