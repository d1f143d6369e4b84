package library

import "time"

// Book represents a catalogued title together with its physical copy counts.
// AvailableCopies is maintained exclusively by the lending engine and stays
// within [0, TotalCopies].
type Book struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Category        string `json:"category"`
	RackLocation    string `json:"rack_location"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// Member represents a registered library member. BorrowedBooks counts the
// member's currently open loans.
type Member struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	MembershipID  string `json:"membership_id"`
	BorrowedBooks int    `json:"borrowed_books"`
	PasswordHash  string `json:"-"` // Don't serialize password hash
}

// Loan is an append-only ledger entry for one borrowed copy. The member and
// book identity fields are snapshotted at issue time so the record survives
// later catalogue edits or deletes. A loan closes exactly once: ReturnedAt is
// nil while the loan is open, set by the return operation, never cleared.
type Loan struct {
	ID           string     `json:"id"`
	MemberID     string     `json:"member_id"`
	MemberName   string     `json:"member_name"`
	MembershipID string     `json:"membership_id"`
	BookID       string     `json:"book_id"`
	BookTitle    string     `json:"book_title"`
	BookAuthor   string     `json:"book_author"`
	IssuedAt     time.Time  `json:"issued_at"`
	DueDate      time.Time  `json:"due_date"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	Fine         int        `json:"fine"`
	FinePaid     bool       `json:"fine_paid"`
}

// Open reports whether the loan has not been returned yet.
func (l *Loan) Open() bool { return l.ReturnedAt == nil }
