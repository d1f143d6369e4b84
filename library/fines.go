package library

import "time"

// LoanStatus is the derived display state of a loan. Overdue is computed on
// read against the current time, never stored or swept by a background job.
type LoanStatus string

const (
	StatusIssued   LoanStatus = "issued"
	StatusOverdue  LoanStatus = "overdue"
	StatusReturned LoanStatus = "returned"
)

// Status derives the loan's display status as of the given instant.
func Status(l *Loan, asOf time.Time) LoanStatus {
	if l.ReturnedAt != nil {
		return StatusReturned
	}
	if asOf.After(l.DueDate) {
		return StatusOverdue
	}
	return StatusIssued
}

// FineAmount computes the fine accrued by a loan under the given policy. An
// open loan accrues against asOf; a returned loan is recomputed from its
// stored timestamps and matches the fine recorded at return time.
func FineAmount(l *Loan, p Policy, asOf time.Time) int {
	end := asOf
	if l.ReturnedAt != nil {
		end = *l.ReturnedAt
	}
	return OverdueDays(l.DueDate, end) * p.FinePerDay
}
