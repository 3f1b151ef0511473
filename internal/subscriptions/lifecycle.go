package subscriptions

import (
	"time"

	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
)

// AddInterval advances date by count billing periods of the given cadence.
// Month and year arithmetic follows time.AddDate rollover: Jan 31 + 1 month
// lands in early March rather than clamping to Feb 28/29. Renewal dates can
// therefore drift across short months, matching the billing contract.
func AddInterval(date time.Time, interval enums.PlanInterval, count int) (time.Time, error) {
	if count < 1 {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "interval count must be at least 1")
	}
	switch interval {
	case enums.PlanIntervalDaily:
		return date.AddDate(0, 0, count), nil
	case enums.PlanIntervalWeekly:
		return date.AddDate(0, 0, 7*count), nil
	case enums.PlanIntervalMonthly:
		return date.AddDate(0, count, 0), nil
	case enums.PlanIntervalYearly:
		return date.AddDate(count, 0, 0), nil
	default:
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan interval "+string(interval))
	}
}

// DayFloor truncates a timestamp to midnight UTC. All overdue checks compare
// calendar days so a renewal scheduled today is never treated as overdue
// within the same day.
func DayFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// BeforeDay reports whether a falls on an earlier calendar day than b.
func BeforeDay(a, b time.Time) bool {
	return DayFloor(a).Before(DayFloor(b))
}
