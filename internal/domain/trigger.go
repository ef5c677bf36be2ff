package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerKind identifies how a schedule's next run is computed.
type TriggerKind string

const (
	TriggerOnce    TriggerKind = "once"
	TriggerHourly  TriggerKind = "hourly"
	TriggerDaily   TriggerKind = "daily"
	TriggerWeekly  TriggerKind = "weekly"
	TriggerMonthly TriggerKind = "monthly"
	TriggerCron    TriggerKind = "cron"
)

// Trigger is a parsed schedule trigger. Only the fields relevant to Kind are
// meaningful: Hour/Minute for daily, Weekday for weekly, DayOfMonth for
// monthly, Expr for cron.
type Trigger struct {
	Kind       TriggerKind
	Hour       int
	Minute     int
	Weekday    time.Weekday
	DayOfMonth int
	Expr       string
}

// ParseTrigger parses the stored (kind, value) pair into a Trigger.
// The value encoding is kind-dependent: daily "HH:MM", weekly day-of-week
// index (0 = Sunday), monthly day-of-month, cron a 5-field expression.
func ParseTrigger(kind, value string) (Trigger, error) {
	switch TriggerKind(kind) {
	case TriggerOnce:
		return Trigger{Kind: TriggerOnce}, nil
	case TriggerHourly:
		return Trigger{Kind: TriggerHourly}, nil
	case TriggerDaily:
		h, m, err := parseHHMM(value)
		if err != nil {
			return Trigger{}, err
		}
		return Trigger{Kind: TriggerDaily, Hour: h, Minute: m}, nil
	case TriggerWeekly:
		dow, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || dow < 0 || dow > 6 {
			return Trigger{}, fmt.Errorf("invalid day-of-week %q", value)
		}
		return Trigger{Kind: TriggerWeekly, Weekday: time.Weekday(dow)}, nil
	case TriggerMonthly:
		dom, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || dom < 1 || dom > 31 {
			return Trigger{}, fmt.Errorf("invalid day-of-month %q", value)
		}
		return Trigger{Kind: TriggerMonthly, DayOfMonth: dom}, nil
	case TriggerCron:
		expr := strings.TrimSpace(value)
		if expr == "" {
			return Trigger{}, fmt.Errorf("empty cron expression")
		}
		return Trigger{Kind: TriggerCron, Expr: expr}, nil
	default:
		return Trigger{}, fmt.Errorf("unknown trigger kind %q", kind)
	}
}

// Value re-encodes the trigger payload into its stored string form.
func (t Trigger) Value() string {
	switch t.Kind {
	case TriggerDaily:
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	case TriggerWeekly:
		return strconv.Itoa(int(t.Weekday))
	case TriggerMonthly:
		return strconv.Itoa(t.DayOfMonth)
	case TriggerCron:
		return t.Expr
	default:
		// Unknown kinds carry their stored value in Expr so a corrupt row
		// round-trips unchanged.
		return t.Expr
	}
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
