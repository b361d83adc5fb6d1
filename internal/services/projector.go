package services

import (
	"iter"
	"log/slog"

	"expensetracker/internal/core"
)

// Projector computes which occurrences of a template are due.
type Projector struct {
	logger *slog.Logger
}

func NewProjector(logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{logger: logger}
}

// ProjectDue returns the dates, strictly increasing and never after asOf,
// on which template is due but has no instance yet.
//
// Counting starts one step after the latest existing instance, or after the
// template date when there are none. Each step is applied to the previous
// occurrence, so Jan 31 monthly yields Feb 29, Mar 29, Apr 29 in 2024.
// When the template's end date is already before asOf the sequence is empty.
//
// The returned sequence is lazy and can be ranged over more than once.
func (p *Projector) ProjectDue(template core.Expense, instances []core.Expense, asOf core.Date) (iter.Seq[core.Date], error) {
	interval := template.Interval()
	if interval < 1 || interval > core.MaxRecurrenceInterval {
		return nil, core.ErrInvalidInterval
	}

	stepper, known := GetStepper(template.RecurrenceType)
	if !known {
		p.logger.Warn("Unknown recurrence type, stepping monthly",
			"template_id", template.ID,
			"recurrence_type", template.RecurrenceType)
	}

	baseline := template.Date
	for _, inst := range instances {
		if inst.Date.After(baseline.Time) {
			baseline = inst.Date
		}
	}

	var end *core.Date
	if template.RecurrenceEndDate != nil && !template.RecurrenceEndDate.IsZero() {
		e := *template.RecurrenceEndDate
		end = &e
	}

	return func(yield func(core.Date) bool) {
		if end != nil && asOf.After(end.Time) {
			return
		}
		prev := baseline
		for next := stepper.Step(prev, interval); !next.After(asOf.Time); next = stepper.Step(next, interval) {
			// A stepper that fails to advance would never reach asOf.
			if !next.After(prev.Time) {
				p.logger.Error("Recurrence step did not advance, stopping projection",
					"template_id", template.ID,
					"recurrence_type", template.RecurrenceType,
					"from", prev.String(),
					"to", next.String())
				return
			}
			if end != nil && next.After(end.Time) {
				return
			}
			if !yield(next) {
				return
			}
			prev = next
		}
	}, nil
}
