package library

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine performs the two state-changing lending operations. It holds no
// locks of its own: every read and write of one operation runs inside a
// single Store.Update transaction, so concurrent callers racing for the last
// copy of a book resolve to exactly one success.
type Engine struct {
	store  Store
	policy Policy
	log    *zap.Logger
	now    func() time.Time
}

// NewEngine builds an engine over the store with the given lending policy.
// A nil logger disables logging.
func NewEngine(store Store, policy Policy, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, policy: policy, log: log, now: time.Now}
}

// IssueBook lends one copy of the book to the member: it checks that copies
// remain and that the member is under the borrow limit, bumps both counters,
// and appends the loan ledger entry — all in one atomic transaction. The
// preconditions are checked against state re-read inside the transaction,
// never against cached documents. Returns the new loan's ID.
func (e *Engine) IssueBook(ctx context.Context, memberID, bookID string) (string, error) {
	// Pre-generated so the ledger insert can join the same transaction as
	// the counter updates.
	loanID := uuid.NewString()
	now := e.now()

	err := e.store.Update(ctx, func(tx Tx) error {
		member, err := tx.GetMember(memberID)
		if err != nil {
			return err
		}
		book, err := tx.GetBook(bookID)
		if err != nil {
			return err
		}

		if book.AvailableCopies < 1 {
			return fmt.Errorf("%w: %q", ErrNoCopies, book.Title)
		}
		if member.BorrowedBooks >= e.policy.MaxBorrow {
			return fmt.Errorf("%w: member %s already has %d books",
				ErrBorrowLimit, member.MembershipID, member.BorrowedBooks)
		}

		member.BorrowedBooks++
		book.AvailableCopies--
		if err := tx.UpdateMember(member); err != nil {
			return err
		}
		if err := tx.UpdateBook(book); err != nil {
			return err
		}

		// Display fields are snapshotted from the documents just read, so
		// the ledger entry survives later catalogue edits.
		return tx.InsertLoan(&Loan{
			ID:           loanID,
			MemberID:     member.ID,
			MemberName:   member.Name,
			MembershipID: member.MembershipID,
			BookID:       book.ID,
			BookTitle:    book.Title,
			BookAuthor:   book.Author,
			IssuedAt:     now,
			DueDate:      DueDate(now, e.policy.LoanDays),
		})
	})
	if err != nil {
		return "", err
	}

	e.log.Info("book issued",
		zap.String("loan_id", loanID),
		zap.String("member_id", memberID),
		zap.String("book_id", bookID),
	)
	return loanID, nil
}

// ReturnBook closes the loan, records the fine computed from the loan's
// stored due date, and releases the copy back to the book. Returning a loan
// that is already closed fails with ErrAlreadyReturned and changes nothing.
// Returns the fine charged.
func (e *Engine) ReturnBook(ctx context.Context, loanID string) (int, error) {
	now := e.now()
	var fine int

	err := e.store.Update(ctx, func(tx Tx) error {
		loan, err := tx.GetLoan(loanID)
		if err != nil {
			return err
		}
		if !loan.Open() {
			return fmt.Errorf("%w: loan %s", ErrAlreadyReturned, loan.ID)
		}
		member, err := tx.GetMember(loan.MemberID)
		if err != nil {
			return err
		}
		book, err := tx.GetBook(loan.BookID)
		if err != nil {
			return err
		}

		fine = OverdueDays(loan.DueDate, now) * e.policy.FinePerDay
		returned := now
		loan.ReturnedAt = &returned
		loan.Fine = fine
		if err := tx.UpdateLoan(loan); err != nil {
			return err
		}

		// Floor at zero guards a counter that is already inconsistent.
		if member.BorrowedBooks > 0 {
			member.BorrowedBooks--
		}
		book.AvailableCopies++
		if err := tx.UpdateMember(member); err != nil {
			return err
		}
		return tx.UpdateBook(book)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("book returned",
		zap.String("loan_id", loanID),
		zap.Int("fine", fine),
	)
	return fine, nil
}
