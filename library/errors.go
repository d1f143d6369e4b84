package library

import "errors"

// Validation errors are raised inside the store transaction before any write
// is applied, so a failed operation never leaves partial effects behind.
// ErrBusy is the only transient error: the store retries conflicting
// transactions a bounded number of times before surfacing it.
var (
	ErrBookNotFound    = errors.New("book not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrLoanNotFound    = errors.New("loan not found")
	ErrNoCopies        = errors.New("no copies available")
	ErrBorrowLimit     = errors.New("borrow limit reached")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrOpenLoans       = errors.New("open loans reference this record")
	ErrBusy            = errors.New("store busy, try again")
)
