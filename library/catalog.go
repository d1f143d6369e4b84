package library

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Catalog is the CRUD surface around the engine: books, members, and
// read-side loan queries. It shares the Store with the engine but never
// touches the lending counters outside a Store.Update transaction.
type Catalog struct {
	store    Store
	validate *validator.Validate
}

// NewCatalog builds the catalogue over the store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store, validate: validator.New()}
}

// ------------------ Books ------------------

// BookInput is the payload for adding a book to the catalogue.
type BookInput struct {
	Title        string `validate:"required"`
	Author       string `validate:"required"`
	ISBN         string `validate:"required"`
	Category     string
	RackLocation string
	TotalCopies  int `validate:"min=1"`
}

// AddBook creates a catalogue entry with all copies available.
func (c *Catalog) AddBook(ctx context.Context, in BookInput) (*Book, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid book: %w", err)
	}
	b := &Book{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Category:        in.Category,
		RackLocation:    in.RackLocation,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
	}
	if err := c.store.InsertBook(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// BookUpdate is the payload for editing a book. Copy counts are included
// because admins may correct them, subject to 0 <= available <= total.
type BookUpdate struct {
	Title           string `validate:"required"`
	Author          string `validate:"required"`
	ISBN            string `validate:"required"`
	Category        string
	RackLocation    string
	TotalCopies     int `validate:"min=1"`
	AvailableCopies int `validate:"min=0"`
}

// UpdateBook applies the edit atomically so it cannot interleave with a
// concurrent issue or return.
func (c *Catalog) UpdateBook(ctx context.Context, id string, in BookUpdate) error {
	if err := c.validate.Struct(in); err != nil {
		return fmt.Errorf("invalid book: %w", err)
	}
	if in.AvailableCopies > in.TotalCopies {
		return fmt.Errorf("available copies (%d) cannot exceed total copies (%d)",
			in.AvailableCopies, in.TotalCopies)
	}
	return c.store.Update(ctx, func(tx Tx) error {
		b, err := tx.GetBook(id)
		if err != nil {
			return err
		}
		b.Title = in.Title
		b.Author = in.Author
		b.ISBN = in.ISBN
		b.Category = in.Category
		b.RackLocation = in.RackLocation
		b.TotalCopies = in.TotalCopies
		b.AvailableCopies = in.AvailableCopies
		return tx.UpdateBook(b)
	})
}

// RemoveBook deletes a catalogue entry. Fails with ErrOpenLoans while any
// copy is still out.
func (c *Catalog) RemoveBook(ctx context.Context, id string) error {
	return c.store.DeleteBook(ctx, id)
}

func (c *Catalog) GetBook(ctx context.Context, id string) (*Book, error) {
	return c.store.GetBook(ctx, id)
}

func (c *Catalog) ListBooks(ctx context.Context) ([]*Book, error) {
	return c.store.ListBooks(ctx)
}

// ------------------ Members ------------------

// MemberInput is the payload for registering a member.
type MemberInput struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Phone    string
	Password string `validate:"required,min=4"`
}

// AddMember registers a member with a generated membership ID and a bcrypt
// password hash.
func (c *Catalog) AddMember(ctx context.Context, in MemberInput) (*Member, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid member: %w", err)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	m := &Member{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		MembershipID: newMembershipID(),
		PasswordHash: hash,
	}
	if err := c.store.InsertMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember deletes a member. Fails with ErrOpenLoans while they still
// hold books.
func (c *Catalog) RemoveMember(ctx context.Context, id string) error {
	return c.store.DeleteMember(ctx, id)
}

func (c *Catalog) GetMember(ctx context.Context, id string) (*Member, error) {
	return c.store.GetMember(ctx, id)
}

func (c *Catalog) ListMembers(ctx context.Context) ([]*Member, error) {
	return c.store.ListMembers(ctx)
}

const membershipChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newMembershipID generates a LIB-XXXXXX membership id.
func newMembershipID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		panic(fmt.Sprintf("read random: %v", err))
	}
	id := make([]byte, len(buf))
	for i, b := range buf {
		id[i] = membershipChars[int(b)%len(membershipChars)]
	}
	return "LIB-" + string(id)
}

// ------------------ Loans & dashboard ------------------

// Loans lists loan ledger entries, optionally filtered.
func (c *Catalog) Loans(ctx context.Context, f LoanFilter) ([]*Loan, error) {
	return c.store.ListLoans(ctx, f)
}

// Stats summarises the dashboard counters.
type Stats struct {
	Books     int
	Members   int
	OpenLoans int
	Overdue   int
}

// Stats counts catalogue entries, members, open loans, and how many of the
// open loans are overdue as of asOf.
func (c *Catalog) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	var st Stats
	books, err := c.store.ListBooks(ctx)
	if err != nil {
		return st, err
	}
	members, err := c.store.ListMembers(ctx)
	if err != nil {
		return st, err
	}
	open, err := c.store.ListLoans(ctx, LoanFilter{OnlyOpen: true})
	if err != nil {
		return st, err
	}
	st.Books = len(books)
	st.Members = len(members)
	st.OpenLoans = len(open)
	for _, l := range open {
		if Status(l, asOf) == StatusOverdue {
			st.Overdue++
		}
	}
	return st, nil
}
