// Package trigger computes the next run instant for schedule triggers.
package trigger

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/virtwarden/virtwarden/internal/domain"
)

// FarFuture is the sentinel next-run for one-shot triggers that already
// fired. It effectively disables re-triggering.
var FarFuture = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// fallbackDelay is applied when a trigger cannot be evaluated. Failing open
// keeps a malformed schedule from wedging permanently; the configuration
// error surfaces through lastError instead.
const fallbackDelay = 24 * time.Hour

// Next returns the next trigger instant strictly derived from now. It is
// total: every trigger kind, including malformed ones, yields a value.
func Next(t domain.Trigger, now time.Time) time.Time {
	now = now.UTC()

	switch t.Kind {
	case domain.TriggerOnce:
		return FarFuture

	case domain.TriggerHourly:
		next := now.Truncate(time.Hour)
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next

	case domain.TriggerDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case domain.TriggerWeekly:
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		delta := (int(t.Weekday) - int(now.Weekday()) + 7) % 7
		next := midnight.AddDate(0, 0, delta)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	case domain.TriggerMonthly:
		next := monthlyAt(now.Year(), now.Month(), t.DayOfMonth)
		if !next.After(now) {
			next = monthlyAt(now.Year(), now.Month()+1, t.DayOfMonth)
		}
		return next

	case domain.TriggerCron:
		sched, err := cron.ParseStandard(t.Expr)
		if err != nil {
			return now.Add(fallbackDelay)
		}
		return sched.Next(now)

	default:
		return now.Add(fallbackDelay)
	}
}

// Validate reports whether a trigger can be evaluated. Everything ParseTrigger
// accepts is valid except cron expressions, which are only syntax-checked at
// admin time; Next still fails open on them at execution time.
func Validate(t domain.Trigger) error {
	if t.Kind != domain.TriggerCron {
		return nil
	}
	_, err := cron.ParseStandard(t.Expr)
	return err
}

// monthlyAt returns midnight of the given day-of-month, clamped to the last
// day of short months (day 31 in April becomes April 30).
func monthlyAt(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
