package library

import "time"

const day = 24 * time.Hour

// DueDate returns issuedAt plus loanDays calendar days, in local time.
func DueDate(issuedAt time.Time, loanDays int) time.Time {
	return issuedAt.AddDate(0, 0, loanDays)
}

// OverdueDays counts the days elapsed past dueDate as of asOf, rounding
// partial days up. Zero when asOf is at or before the due instant.
func OverdueDays(dueDate, asOf time.Time) int {
	late := asOf.Sub(dueDate)
	if late <= 0 {
		return 0
	}
	days := int(late / day)
	if late%day != 0 {
		days++
	}
	return days
}
