package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/sheets"
	"expensetracker/internal/storage"
)

// SheetsMirror appends one audit row per expense event.
type SheetsMirror struct {
	store  storage.ExpenseStore
	writer sheets.AuditWriter
}

func NewSheetsMirror(store storage.ExpenseStore, writer sheets.AuditWriter) *SheetsMirror {
	return &SheetsMirror{
		store:  store,
		writer: writer,
	}
}

// HandleEvent mirrors a single expense event. Created and updated events
// carry the current state of the expense; an expense deleted before the
// event is handled is skipped.
func (m *SheetsMirror) HandleEvent(ctx context.Context, event *amqp.ExpenseEvent) error {
	slog.InfoContext(ctx, "Processing expense event",
		"id", event.ID,
		"type", event.Type,
		"message_id", event.MessageID)

	row := sheets.AuditRow{
		Timestamp: event.Timestamp,
		Action:    string(event.Type),
		ExpenseID: event.ID,
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}

	if event.Type != amqp.EventDeleted {
		expense, err := m.store.FindByID(ctx, event.ID)
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Expense no longer exists, skipping", "id", event.ID, "type", event.Type)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		row.Expense = &expense
	}

	ref, err := m.writer.Append(ctx, row)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	attrs := []any{"id", event.ID, "type", event.Type, "sheets_ref", ref}
	if row.Expense != nil {
		attrs = append(attrs, "amount", core.FormatAmount(row.Expense.Amount))
	}
	slog.InfoContext(ctx, "Mirrored expense event", attrs...)
	return nil
}
