package records

import (
	"fmt"
	"strings"
	"time"
)

// Period is a calendar interval used for listing records.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts "day", "week" or "month". Empty means month.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	case "":
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("ParsePeriod: unknown period %q", s)
}

// Range returns the calendar day, week or month containing now, as a
// half-open interval in now's location. Weeks start on Sunday.
func (p Period) Range(now time.Time) (from, to time.Time) {
	y, m, d := now.Date()
	loc := now.Location()

	switch p {
	case PeriodDay:
		from = time.Date(y, m, d, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 1)
	case PeriodWeek:
		from = time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 0, 7)
	default:
		from = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, 0)
	}
}
