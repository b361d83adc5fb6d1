package services

import (
	"testing"

	"expensetracker/internal/core"
)

func TestGetStepper(t *testing.T) {
	tests := []struct {
		rt        core.RecurrenceType
		wantKnown bool
		from      core.Date
		n         int
		want      string
	}{
		{core.Monthly, true, core.NewDate(2024, 1, 31), 1, "2024-02-29"},
		{core.Custom, true, core.NewDate(2024, 1, 31), 2, "2024-03-31"},
		{core.Yearly, true, core.NewDate(2024, 2, 29), 1, "2025-02-28"},
		{core.Yearly, true, core.NewDate(2024, 6, 1), 2, "2026-06-01"},
		{"WEEKLY", false, core.NewDate(2024, 1, 15), 1, "2024-02-15"},
		{"", false, core.NewDate(2024, 1, 15), 3, "2024-04-15"},
	}

	for _, tt := range tests {
		t.Run(string(tt.rt)+"_"+tt.want, func(t *testing.T) {
			stepper, known := GetStepper(tt.rt)
			if known != tt.wantKnown {
				t.Errorf("GetStepper(%q) known = %v, want %v", tt.rt, known, tt.wantKnown)
			}
			if got := stepper.Step(tt.from, tt.n).String(); got != tt.want {
				t.Errorf("Step(%s, %d) = %s, want %s", tt.from, tt.n, got, tt.want)
			}
		})
	}
}

type fixedStepper struct{ days int }

func (s fixedStepper) Step(from core.Date, n int) core.Date {
	return core.DateOf(from.AddDate(0, 0, s.days*n))
}

func TestRegisterStepper(t *testing.T) {
	const biweekly core.RecurrenceType = "BIWEEKLY"
	RegisterStepper(biweekly, fixedStepper{days: 14})
	t.Cleanup(func() { delete(stepStrategies, biweekly) })

	stepper, known := GetStepper(biweekly)
	if !known {
		t.Fatal("registered stepper should be known")
	}
	if got := stepper.Step(core.NewDate(2024, 1, 1), 1).String(); got != "2024-01-15" {
		t.Errorf("Step = %s, want 2024-01-15", got)
	}
}
