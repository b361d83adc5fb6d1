package services

import (
	"context"
	"log/slog"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// GenerationReport summarizes one generation cycle for logging.
type GenerationReport struct {
	Templates  int
	Generated  int
	Duplicates int
	Failed     int
}

// Generator materializes due occurrences of every recurring template.
type Generator struct {
	store     storage.ExpenseStore
	projector *Projector
	expenses  *ExpenseService
}

func NewGenerator(store storage.ExpenseStore, projector *Projector, expenses *ExpenseService) *Generator {
	return &Generator{
		store:     store,
		projector: projector,
		expenses:  expenses,
	}
}

// RunGenerationCycle creates every occurrence due on or before asOf.
//
// Running it twice with the same asOf creates nothing the second time. Errors
// on one template are logged and the cycle moves on to the next; a failed save
// stops that template so the next cycle resumes from the same baseline.
func (g *Generator) RunGenerationCycle(ctx context.Context, asOf core.Date) GenerationReport {
	var report GenerationReport

	templates, err := g.store.FindRecurringTemplates(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load recurring templates", "error", err)
		report.Failed++
		return report
	}
	report.Templates = len(templates)

	slog.InfoContext(ctx, "Processing recurring templates",
		"templates", len(templates),
		"as_of", asOf.String())

	for _, tmpl := range templates {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "Generation cycle interrupted", "reason", ctx.Err())
			break
		}
		g.generateFor(ctx, tmpl, asOf, &report)
	}

	slog.InfoContext(ctx, "Recurring generation complete",
		"templates", report.Templates,
		"generated", report.Generated,
		"duplicates", report.Duplicates,
		"failed", report.Failed)
	return report
}

func (g *Generator) generateFor(ctx context.Context, tmpl core.Expense, asOf core.Date, report *GenerationReport) {
	instances, err := g.store.FindByParent(ctx, tmpl.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load template instances",
			"template_id", tmpl.ID,
			"error", err)
		report.Failed++
		return
	}

	due, err := g.projector.ProjectDue(tmpl, instances, asOf)
	if err != nil {
		slog.ErrorContext(ctx, "Skipping malformed recurring template",
			"template_id", tmpl.ID,
			"error", err)
		report.Failed++
		return
	}

	for date := range due {
		_, created, err := g.expenses.insert(ctx, tmpl.Instantiate(date))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create expense from recurring template",
				"template_id", tmpl.ID,
				"date", date.String(),
				"error", err)
			report.Failed++
			return
		}
		if !created {
			report.Duplicates++
			continue
		}
		report.Generated++
		slog.InfoContext(ctx, "Created expense from recurring template",
			"template_id", tmpl.ID,
			"date", date.String(),
			"amount", tmpl.Amount.String())
	}
}
