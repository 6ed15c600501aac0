package reminders

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/timely-app/timelyd/internal/models"
	"github.com/timely-app/timelyd/internal/taskqueue"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log interface {
	Debug(string, ...zapcore.Field)
	Info(string, ...zapcore.Field)
}

// Notifier is the local-notification collaborator surface consumed by the
// scheduler. Permission is checked by callers before scheduling; the
// scheduler does not re-check it.
type Notifier interface {
	CancelAll(ctx context.Context) error
	ScheduleRepeating(ctx context.Context, title, body string, weekday time.Weekday, hour, minute int) (string, error)
	Scheduled(ctx context.Context) ([]models.ScheduledNotification, error)
}

// Messages carries the caller-supplied localized texts for the three
// reminder kinds.
type Messages struct {
	EntryTitle string `json:"entryTitle"`
	EntryBody  string `json:"entryBody"`
	LunchTitle string `json:"lunchTitle"`
	LunchBody  string `json:"lunchBody"`
	ExitTitle  string `json:"exitTitle"`
	ExitBody   string `json:"exitBody"`
}

// ReminderTimes are the three computed reminder instants of one weekday.
// Only hour and minute matter; the date part is the fixed base date.
type ReminderTimes struct {
	Entry time.Time
	Lunch time.Time
	Exit  time.Time
}

// Reminder offsets relative to the working interval.
const (
	entryLead = 5 * time.Minute
	lunchLead = 15 * time.Minute
	exitLead  = 5 * time.Minute
)

// baseDate is an arbitrary fixed calendar date: reminder arithmetic is
// time-of-day only.
var baseDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ComputeReminderTimes derives entry, lunch and exit reminder instants from
// a weekday's working interval: entry = start − 5m, lunch = midpoint − 15m,
// exit = end − 5m.
func ComputeReminderTimes(day models.WorkScheduleDay) (ReminderTimes, error) {
	start, err := parseClock(day.Start)
	if err != nil {
		return ReminderTimes{}, fmt.Errorf("invalid start time %q: %w", day.Start, err)
	}

	end, err := parseClock(day.End)
	if err != nil {
		return ReminderTimes{}, fmt.Errorf("invalid end time %q: %w", day.End, err)
	}

	lunchMidpoint := start.Add(end.Sub(start) / 2)

	return ReminderTimes{
		Entry: start.Add(-entryLead),
		Lunch: lunchMidpoint.Add(-lunchLead),
		Exit:  end.Add(-exitLead),
	}, nil
}

func parseClock(value string) (time.Time, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(baseDate.Year(), baseDate.Month(), baseDate.Day(),
		t.Hour(), t.Minute(), 0, 0, baseDate.Location()), nil
}

// Scheduler converts a weekly work schedule into recurring local reminders,
// replacing any prior schedule atomically (full wipe, no diffing). It owns
// the presentation-suppression flag consulted by the notification handler
// while a cancel+reschedule sequence runs.
type Scheduler struct {
	notifier    Notifier
	queue       *taskqueue.Queue
	log         Log
	settleDelay time.Duration
	scheduling  atomic.Bool
}

func NewScheduler(notifier Notifier, queue *taskqueue.Queue, settleDelay time.Duration, log Log) *Scheduler {
	return &Scheduler{
		notifier:    notifier,
		queue:       queue,
		log:         log,
		settleDelay: settleDelay,
	}
}

// Suppressed reports whether notification presentation should be withheld
// because a reschedule sequence is in flight.
func (s *Scheduler) Suppressed() bool {
	return s.scheduling.Load()
}

// Reschedule hands a schedule to the single-slot queue: at most one
// cancel+schedule sequence is in flight, a newer request supersedes an
// undelivered older one.
func (s *Scheduler) Reschedule(schedule models.WorkSchedule, messages Messages) {
	s.queue.Submit(func(ctx context.Context) error {
		return s.ScheduleClockReminders(ctx, schedule, messages)
	})
}

// ScheduleClockReminders runs the full cancel → settle → schedule sequence.
// Any error propagates to the caller after the suppression flag is cleared;
// there is no partial silent success.
func (s *Scheduler) ScheduleClockReminders(ctx context.Context, schedule models.WorkSchedule, messages Messages) (err error) {
	s.scheduling.Store(true)
	defer s.scheduling.Store(false)

	if err = s.notifier.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel scheduled notifications: %w", err)
	}

	// let the cancellation settle before scheduling replacements
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settleDelay):
	}

	active := 0
	for _, name := range models.Weekdays {
		day, ok := schedule[name]
		if !ok {
			continue
		}
		active++

		times, terr := ComputeReminderTimes(day)
		if terr != nil {
			return fmt.Errorf("compute reminders for %s: %w", name, terr)
		}

		weekday := models.WeekdayIndex[name]

		triggers := []struct {
			title string
			body  string
			at    time.Time
		}{
			{messages.EntryTitle, messages.EntryBody, times.Entry},
			{messages.LunchTitle, messages.LunchBody, times.Lunch},
			{messages.ExitTitle, messages.ExitBody, times.Exit},
		}

		for _, trigger := range triggers {
			_, serr := s.notifier.ScheduleRepeating(ctx, trigger.title, trigger.body,
				weekday, trigger.at.Hour(), trigger.at.Minute())
			if serr != nil {
				return fmt.Errorf("schedule reminder for %s: %w", name, serr)
			}
		}
	}

	if active == 0 {
		s.log.Info("no weekdays configured, nothing to schedule")
		return nil
	}

	if scheduled, lerr := s.notifier.Scheduled(ctx); lerr == nil {
		s.log.Debug("clock reminders rescheduled",
			zap.Int("weekdays", active), zap.Int("scheduled", len(scheduled)))
	}

	return nil
}
