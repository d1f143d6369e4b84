package library

import "context"

// Tx is the read-then-write scope handed to Store.Update. Reads observe
// committed state as of the transaction start; all writes commit together or
// not at all. Getters return the matching NotFound error when the document
// is absent.
type Tx interface {
	GetBook(id string) (*Book, error)
	GetMember(id string) (*Member, error)
	GetLoan(id string) (*Loan, error)
	UpdateBook(b *Book) error
	UpdateMember(m *Member) error
	UpdateLoan(l *Loan) error
	// InsertLoan creates a new ledger entry inside the same atomic unit as
	// the counter updates. Loan IDs are generated client-side so this is
	// possible.
	InsertLoan(l *Loan) error
}

// LoanFilter narrows ListLoans. The zero value lists every loan.
type LoanFilter struct {
	MemberID string
	BookID   string
	OnlyOpen bool
}

// Store is the document-store boundary the engine and catalogue are written
// against: point reads, listings, single-document CRUD, and an atomic
// multi-document transaction scope with bounded conflict retry.
type Store interface {
	GetBook(ctx context.Context, id string) (*Book, error)
	GetMember(ctx context.Context, id string) (*Member, error)
	GetLoan(ctx context.Context, id string) (*Loan, error)

	ListBooks(ctx context.Context) ([]*Book, error)
	ListMembers(ctx context.Context) ([]*Member, error)
	ListLoans(ctx context.Context, f LoanFilter) ([]*Loan, error)

	InsertBook(ctx context.Context, b *Book) error
	InsertMember(ctx context.Context, m *Member) error

	// DeleteBook and DeleteMember refuse to remove a document that open
	// loans still reference, returning ErrOpenLoans.
	DeleteBook(ctx context.Context, id string) error
	DeleteMember(ctx context.Context, id string) error

	// Update runs fn inside one atomic multi-document transaction. On a
	// write conflict the transaction is retried a bounded number of times
	// before the error surfaces wrapped in ErrBusy. fn may run more than
	// once and must be side-effect free outside the Tx.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
