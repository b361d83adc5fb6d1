// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence stepping.
// Each recurrence type maps to a Stepper that advances a date by a number of
// calendar units.
package services

import (
	"expensetracker/internal/core"
)

// Stepper advances a date by n recurrence units.
type Stepper interface {
	Step(from core.Date, n int) core.Date
}

// MonthStepper steps by calendar months, clamping to the end of shorter months.
type MonthStepper struct{}

func (MonthStepper) Step(from core.Date, n int) core.Date {
	return from.AddMonths(n)
}

// YearStepper steps by calendar years; Feb 29 clamps to Feb 28.
type YearStepper struct{}

func (YearStepper) Step(from core.Date, n int) core.Date {
	return from.AddYears(n)
}

// DefaultStepper is used for recurrence types without a registered stepper.
var DefaultStepper Stepper = MonthStepper{}

// stepStrategies maps recurrence types to their steppers.
// CUSTOM has no semantics of its own and steps like MONTHLY.
var stepStrategies = map[core.RecurrenceType]Stepper{
	core.Monthly: MonthStepper{},
	core.Custom:  MonthStepper{},
	core.Yearly:  YearStepper{},
}

// GetStepper returns the stepper for t. The boolean is false when t is not
// registered and DefaultStepper was returned instead.
func GetStepper(t core.RecurrenceType) (Stepper, bool) {
	s, ok := stepStrategies[t]
	if !ok {
		return DefaultStepper, false
	}
	return s, true
}

// RegisterStepper adds or replaces the stepper for a recurrence type.
// It is not safe to call concurrently with GetStepper; register at init time.
func RegisterStepper(t core.RecurrenceType, s Stepper) {
	stepStrategies[t] = s
}
