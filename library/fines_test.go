package library

import (
	"testing"
	"time"
)

func openLoan(due time.Time) *Loan {
	return &Loan{
		ID:      "loan-1",
		DueDate: due,
	}
}

func TestStatus(t *testing.T) {
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	l := openLoan(due)

	if got := Status(l, due.Add(-time.Hour)); got != StatusIssued {
		t.Fatalf("want issued, got %s", got)
	}
	if got := Status(l, due.Add(time.Hour)); got != StatusOverdue {
		t.Fatalf("want overdue, got %s", got)
	}

	returned := due.Add(2 * time.Hour)
	l.ReturnedAt = &returned
	// Returned wins regardless of asOf.
	if got := Status(l, due.Add(100*time.Hour)); got != StatusReturned {
		t.Fatalf("want returned, got %s", got)
	}
}

func TestFineAmount(t *testing.T) {
	policy := DefaultPolicy()
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	l := openLoan(due)
	if got := FineAmount(l, policy, due); got != 0 {
		t.Fatalf("on-time fine: want 0, got %d", got)
	}
	if got := FineAmount(l, policy, due.Add(24*time.Hour)); got != policy.FinePerDay {
		t.Fatalf("one day late: want %d, got %d", policy.FinePerDay, got)
	}
	if got := FineAmount(l, policy, due.Add(5*24*time.Hour)); got != 5*policy.FinePerDay {
		t.Fatalf("five days late: want %d, got %d", 5*policy.FinePerDay, got)
	}
}

// A returned loan recomputes from the stored timestamps, so the result is
// stable no matter when it is asked for.
func TestFineAmountIdempotentAfterReturn(t *testing.T) {
	policy := DefaultPolicy()
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	returned := due.Add(3 * 24 * time.Hour)

	l := openLoan(due)
	l.ReturnedAt = &returned
	l.Fine = 3 * policy.FinePerDay

	first := FineAmount(l, policy, returned)
	second := FineAmount(l, policy, returned.Add(365*24*time.Hour))
	if first != second || first != l.Fine {
		t.Fatalf("recomputed fine drifted: stored %d, got %d then %d", l.Fine, first, second)
	}
}
