package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func tempStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBookRoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	in := &Book{
		ID: "b1", Title: "1984", Author: "George Orwell", ISBN: "9780451524935",
		Category: "Fiction", RackLocation: "A1", TotalCopies: 3, AvailableCopies: 3,
	}
	if err := s.InsertBook(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetBook(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", got, in)
	}

	if _, err := s.GetBook(ctx, "missing"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("want ErrBookNotFound, got %v", err)
	}
}

func TestMembershipIDUnique(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	m1 := &Member{ID: "m1", Name: "Alice", MembershipID: "LIB-AAAAAA"}
	m2 := &Member{ID: "m2", Name: "Bob", MembershipID: "LIB-AAAAAA"}
	if err := s.InsertMember(ctx, m1); err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if err := s.InsertMember(ctx, m2); err == nil {
		t.Fatalf("expected duplicate membership id to fail")
	}
}

func TestLoanFilters(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	returned := now.Add(24 * time.Hour)
	loans := []*Loan{
		{ID: "l1", MemberID: "m1", BookID: "b1", IssuedAt: now, DueDate: now.AddDate(0, 0, 14)},
		{ID: "l2", MemberID: "m1", BookID: "b2", IssuedAt: now.Add(time.Hour), DueDate: now.AddDate(0, 0, 14), ReturnedAt: &returned},
		{ID: "l3", MemberID: "m2", BookID: "b1", IssuedAt: now.Add(2 * time.Hour), DueDate: now.AddDate(0, 0, 14)},
	}
	err := s.Update(ctx, func(tx Tx) error {
		for _, l := range loans {
			if err := tx.InsertLoan(l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert loans: %v", err)
	}

	byMember, err := s.ListLoans(ctx, LoanFilter{MemberID: "m1"})
	if err != nil {
		t.Fatalf("list by member: %v", err)
	}
	if len(byMember) != 2 || byMember[0].ID != "l1" || byMember[1].ID != "l2" {
		t.Fatalf("member filter wrong: %d loans", len(byMember))
	}

	open, err := s.ListLoans(ctx, LoanFilter{OnlyOpen: true})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("want 2 open loans, got %d", len(open))
	}

	openOnBook, err := s.ListLoans(ctx, LoanFilter{BookID: "b1", OnlyOpen: true})
	if err != nil {
		t.Fatalf("list open on book: %v", err)
	}
	if len(openOnBook) != 2 {
		t.Fatalf("want 2 open loans on b1, got %d", len(openOnBook))
	}
}

// Validation failures inside Update must roll the whole transaction back.
func TestUpdateRollsBackOnError(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	book := &Book{ID: "b1", Title: "T", Author: "A", TotalCopies: 1, AvailableCopies: 1}
	if err := s.InsertBook(ctx, book); err != nil {
		t.Fatalf("insert: %v", err)
	}

	wantErr := errors.New("abort")
	err := s.Update(ctx, func(tx Tx) error {
		b, err := tx.GetBook("b1")
		if err != nil {
			return err
		}
		b.AvailableCopies = 0
		if err := tx.UpdateBook(b); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want abort error, got %v", err)
	}

	b, _ := s.GetBook(ctx, "b1")
	if b.AvailableCopies != 1 {
		t.Fatalf("write leaked from aborted transaction: %d", b.AvailableCopies)
	}
}

func TestDeleteGuards(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	e := NewEngine(s, DefaultPolicy(), nil)

	book := &Book{ID: "b1", Title: "T", Author: "A", TotalCopies: 1, AvailableCopies: 1}
	member := &Member{ID: "m1", Name: "Alice", MembershipID: "LIB-AAAAAA"}
	if err := s.InsertBook(ctx, book); err != nil {
		t.Fatalf("insert book: %v", err)
	}
	if err := s.InsertMember(ctx, member); err != nil {
		t.Fatalf("insert member: %v", err)
	}

	loanID, err := e.IssueBook(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := s.DeleteBook(ctx, "b1"); !errors.Is(err, ErrOpenLoans) {
		t.Fatalf("delete book with open loan: want ErrOpenLoans, got %v", err)
	}
	if err := s.DeleteMember(ctx, "m1"); !errors.Is(err, ErrOpenLoans) {
		t.Fatalf("delete member with open loan: want ErrOpenLoans, got %v", err)
	}

	if _, err := e.ReturnBook(ctx, loanID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := s.DeleteBook(ctx, "b1"); err != nil {
		t.Fatalf("delete book after return: %v", err)
	}
	if err := s.DeleteMember(ctx, "m1"); err != nil {
		t.Fatalf("delete member after return: %v", err)
	}
}

// The end-to-end scenario from the lending flow, against the real store.
func TestLendingFlowSQLite(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	book := &Book{ID: "b1", Title: "1984", Author: "George Orwell", TotalCopies: 2, AvailableCopies: 2}
	member := &Member{ID: "m1", Name: "Alice", MembershipID: "LIB-AAAAAA"}
	if err := s.InsertBook(ctx, book); err != nil {
		t.Fatalf("insert book: %v", err)
	}
	if err := s.InsertMember(ctx, member); err != nil {
		t.Fatalf("insert member: %v", err)
	}

	e := NewEngine(s, DefaultPolicy(), nil)
	e.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	loanID, err := e.IssueBook(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	wantDue := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !loan.DueDate.Equal(wantDue) {
		t.Fatalf("due date: want %v, got %v", wantDue, loan.DueDate)
	}
	b, _ := s.GetBook(ctx, "b1")
	m, _ := s.GetMember(ctx, "m1")
	if b.AvailableCopies != 1 || m.BorrowedBooks != 1 {
		t.Fatalf("counters after issue: copies=%d borrowed=%d", b.AvailableCopies, m.BorrowedBooks)
	}

	e.now = func() time.Time { return time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC) }
	fine, err := e.ReturnBook(ctx, loanID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if fine != 10 {
		t.Fatalf("fine: want 10, got %d", fine)
	}
	b, _ = s.GetBook(ctx, "b1")
	m, _ = s.GetMember(ctx, "m1")
	if b.AvailableCopies != 2 || m.BorrowedBooks != 0 {
		t.Fatalf("counters after return: copies=%d borrowed=%d", b.AvailableCopies, m.BorrowedBooks)
	}
	loan, _ = s.GetLoan(ctx, loanID)
	if loan.ReturnedAt == nil || loan.Fine != 10 {
		t.Fatalf("loan not closed correctly: %+v", loan)
	}
}

// TestConcurrentIssueSQLite races two issues for the last copy through real
// SQLite transactions: exactly one may win.
func TestConcurrentIssueSQLite(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	e := NewEngine(s, DefaultPolicy(), nil)

	book := &Book{ID: "b1", Title: "T", Author: "A", TotalCopies: 1, AvailableCopies: 1}
	if err := s.InsertBook(ctx, book); err != nil {
		t.Fatalf("insert book: %v", err)
	}
	for _, m := range []*Member{
		{ID: "m1", Name: "Alice", MembershipID: "LIB-AAAAAA"},
		{ID: "m2", Name: "Bob", MembershipID: "LIB-BBBBBB"},
	} {
		if err := s.InsertMember(ctx, m); err != nil {
			t.Fatalf("insert member: %v", err)
		}
	}

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() {
		_, err := e.IssueBook(ctx, "m1", "b1")
		done1 <- err
	}()
	go func() {
		_, err := e.IssueBook(ctx, "m2", "b1")
		done2 <- err
	}()

	err1 := <-done1
	err2 := <-done2

	var failures int
	for _, err := range []error{err1, err2} {
		if err == nil {
			continue
		}
		failures++
		if !errors.Is(err, ErrNoCopies) && !errors.Is(err, ErrBusy) {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
	if failures != 1 {
		t.Fatalf("want exactly one failure, got %d (%v / %v)", failures, err1, err2)
	}

	b, _ := s.GetBook(ctx, "b1")
	if b.AvailableCopies != 0 {
		t.Fatalf("available copies: want 0, got %d", b.AvailableCopies)
	}
	open, _ := s.ListLoans(ctx, LoanFilter{OnlyOpen: true})
	if len(open) != 1 {
		t.Fatalf("want 1 open loan, got %d", len(open))
	}
}
