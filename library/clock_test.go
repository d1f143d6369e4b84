package library

import (
	"testing"
	"time"
)

func TestDueDate(t *testing.T) {
	issued := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	due := DueDate(issued, 14)
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("due date: want %v, got %v", want, due)
	}
}

func TestOverdueDays(t *testing.T) {
	due := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		asOf time.Time
		want int
	}{
		{"before due", due.Add(-48 * time.Hour), 0},
		{"at due instant", due, 0},
		{"one minute late counts as a day", due.Add(time.Minute), 1},
		{"exactly one day", due.Add(24 * time.Hour), 1},
		{"one day and a minute rounds up", due.Add(24*time.Hour + time.Minute), 2},
		{"five days", due.Add(5 * 24 * time.Hour), 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := OverdueDays(due, tc.asOf); got != tc.want {
				t.Fatalf("want %d days, got %d", tc.want, got)
			}
		})
	}
}
