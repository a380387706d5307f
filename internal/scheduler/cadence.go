package scheduler

import (
	"time"

	"github.com/sells-group/lending-harvest/internal/model"
)

// quarterlyDelayDays is how long after quarter end filings are expected.
const quarterlyDelayDays = 5

// Due reports whether a job with cadence c last run at lastRun should run
// again at now. A nil lastRun is always due. Windows are computed in now's
// location.
func Due(c model.Cadence, now time.Time, lastRun *time.Time) bool {
	switch c {
	case model.CadenceDaily:
		return DailySchedule(now, lastRun)
	case model.CadenceWeekly:
		return WeeklySchedule(now, lastRun)
	case model.CadenceMonthly:
		return MonthlySchedule(now, lastRun)
	case model.CadenceQuarterly:
		return QuarterlySchedule(now, lastRun)
	default:
		return false
	}
}

// DailySchedule returns true if lastRun is before the start of today.
func DailySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return lastRun.Before(today)
}

// WeeklySchedule returns true if lastRun is before Monday of this week.
func WeeklySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := time.Date(now.Year(), now.Month(), now.Day()-(weekday-1), 0, 0, 0, 0, now.Location())
	return lastRun.Before(weekStart)
}

// MonthlySchedule returns true if lastRun is before the first of this month.
func MonthlySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return lastRun.Before(thisMonth)
}

// QuarterlySchedule returns true if filings for the latest completed
// quarter are available and lastRun predates them.
func QuarterlySchedule(now time.Time, lastRun *time.Time) bool {
	if lastRun == nil {
		return true
	}
	qEnd := mostRecentQuarterEnd(now)
	available := qEnd.AddDate(0, 0, quarterlyDelayDays)
	if now.Before(available) {
		qEnd = mostRecentQuarterEnd(qEnd.AddDate(0, 0, -1))
		available = qEnd.AddDate(0, 0, quarterlyDelayDays)
	}
	return lastRun.Before(available)
}

// mostRecentQuarterEnd returns the last day of the most recent completed quarter.
func mostRecentQuarterEnd(t time.Time) time.Time {
	// First month of the current quarter; the day before it ends the previous one.
	qStart := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), qStart, 0, 23, 59, 59, 0, t.Location())
}
