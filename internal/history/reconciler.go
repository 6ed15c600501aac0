// Package history classifies a day's raw clock-event list into
// display-ready structures. All functions are pure: they analyze the event
// sequence exactly as received from the server and never mutate it. Anomalies
// (incomplete days, order issues) are display classifications for a human
// reviewer, not errors, and never block rendering.
package history

import (
	"github.com/timely-app/timelyd/internal/models"
)

// Period is one clock-in paired with its (possibly absent) following
// clock-out, representing a continuous work span.
type Period struct {
	Entry *models.ClockEvent `json:"entry,omitempty"`
	Exit  *models.ClockEvent `json:"exit,omitempty"`
}

// Open reports whether the period still awaits its exit event.
func (p Period) Open() bool {
	return p.Entry != nil && p.Exit == nil
}

// IsIncompleteDay reports whether any CLOCK_IN event has no later CLOCK_OUT
// following it in the list. A day with zero events is not incomplete: no open
// entry exists.
func IsIncompleteDay(day models.ClockHistoryDay) bool {
	for i, event := range day.Events {
		if event.Action != models.ClockIn {
			continue
		}

		closed := false
		for _, later := range day.Events[i+1:] {
			if later.Action == models.ClockOut {
				closed = true
				break
			}
		}

		if !closed {
			return true
		}
	}

	return false
}

// HasOrderIssue reports whether a CLOCK_OUT event appears before any
// CLOCK_IN in the raw list, i.e. the sequence violates the expected
// alternating IN→OUT order at the start.
func HasOrderIssue(day models.ClockHistoryDay) bool {
	for _, event := range day.Events {
		switch event.Action {
		case models.ClockIn:
			return false
		case models.ClockOut:
			return true
		}
	}

	return false
}

// SegmentPeriods groups a day's events into periods by adjacency. Each
// CLOCK_IN opens a new period; a CLOCK_OUT closes the current one. A CLOCK_IN
// arriving while a period is already open flushes the open period first, so
// no event is ever dropped even under anomalous orderings. A leading
// CLOCK_OUT yields an exit-only period.
func SegmentPeriods(events []models.ClockEvent) []Period {
	var periods []Period
	var open *Period

	for i := range events {
		event := &events[i]

		switch event.Action {
		case models.ClockIn:
			if open != nil {
				periods = append(periods, *open)
			}
			open = &Period{Entry: event}
		case models.ClockOut:
			if open != nil {
				open.Exit = event
				periods = append(periods, *open)
				open = nil
			} else {
				periods = append(periods, Period{Exit: event})
			}
		}
	}

	if open != nil {
		periods = append(periods, *open)
	}

	return periods
}

// DayView is a ClockHistoryDay annotated with reconciler output for
// rendering. Server-derived aggregates pass through unmodified.
type DayView struct {
	models.ClockHistoryDay
	Periods    []Period `json:"periods"`
	Incomplete bool     `json:"incomplete"`
	OrderIssue bool     `json:"orderIssue"`
}

// Reconcile annotates every day of a history response.
func Reconcile(days []models.ClockHistoryDay) []DayView {
	views := make([]DayView, 0, len(days))

	for _, day := range days {
		views = append(views, DayView{
			ClockHistoryDay: day,
			Periods:         SegmentPeriods(day.Events),
			Incomplete:      IsIncompleteDay(day),
			OrderIssue:      HasOrderIssue(day),
		})
	}

	return views
}
