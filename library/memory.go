package library

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store. It is the mocking seam for
// engine tests and the reference implementation of the transactional
// contract: Update holds the write lock for the whole callback, so
// transactions are trivially serializable and never conflict.
type MemoryStore struct {
	mu      sync.RWMutex
	books   map[string]Book
	members map[string]Member
	loans   map[string]Loan
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   map[string]Book{},
		members: map[string]Member{},
		loans:   map[string]Loan{},
	}
}

func (s *MemoryStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Point reads and listings
// ---------------------------------------------------------------------------

func (s *MemoryStore) GetBook(_ context.Context, id string) (*Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return &b, nil
}

func (s *MemoryStore) GetMember(_ context.Context, id string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return &m, nil
}

func (s *MemoryStore) GetLoan(_ context.Context, id string) (*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
	}
	return &l, nil
}

func (s *MemoryStore) ListBooks(_ context.Context) ([]*Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	books := make([]*Book, 0, len(s.books))
	for id := range s.books {
		b := s.books[id]
		books = append(books, &b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books, nil
}

func (s *MemoryStore) ListMembers(_ context.Context) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]*Member, 0, len(s.members))
	for id := range s.members {
		m := s.members[id]
		members = append(members, &m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

func (s *MemoryStore) ListLoans(_ context.Context, f LoanFilter) ([]*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var loans []*Loan
	for id := range s.loans {
		l := s.loans[id]
		if f.MemberID != "" && l.MemberID != f.MemberID {
			continue
		}
		if f.BookID != "" && l.BookID != f.BookID {
			continue
		}
		if f.OnlyOpen && !l.Open() {
			continue
		}
		loans = append(loans, &l)
	}
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].IssuedAt.Equal(loans[j].IssuedAt) {
			return loans[i].ID < loans[j].ID
		}
		return loans[i].IssuedAt.Before(loans[j].IssuedAt)
	})
	return loans, nil
}

// ---------------------------------------------------------------------------
// Catalogue CRUD
// ---------------------------------------------------------------------------

func (s *MemoryStore) InsertBook(_ context.Context, b *Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.ID]; ok {
		return fmt.Errorf("book %s already exists", b.ID)
	}
	s.books[b.ID] = *b
	return nil
}

func (s *MemoryStore) InsertMember(_ context.Context, m *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; ok {
		return fmt.Errorf("member %s already exists", m.ID)
	}
	for id := range s.members {
		if s.members[id].MembershipID == m.MembershipID {
			return fmt.Errorf("membership id %s already taken", m.MembershipID)
		}
	}
	s.members[m.ID] = *m
	return nil
}

func (s *MemoryStore) DeleteBook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	for lid := range s.loans {
		l := s.loans[lid]
		if l.BookID == id && l.Open() {
			return fmt.Errorf("%w: book %s", ErrOpenLoans, id)
		}
	}
	delete(s.books, id)
	return nil
}

func (s *MemoryStore) DeleteMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	for lid := range s.loans {
		l := s.loans[lid]
		if l.MemberID == id && l.Open() {
			return fmt.Errorf("%w: member %s", ErrOpenLoans, id)
		}
	}
	delete(s.members, id)
	return nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// Update runs fn under the write lock with writes staged in the Tx. If fn
// returns an error nothing is applied; otherwise the staged writes commit in
// one step.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		books:   map[string]Book{},
		members: map[string]Member{},
		loans:   map[string]Loan{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes in private maps; reads prefer staged state so the
// callback observes its own writes.
type memTx struct {
	store   *MemoryStore
	books   map[string]Book
	members map[string]Member
	loans   map[string]Loan
}

func (t *memTx) GetBook(id string) (*Book, error) {
	if b, ok := t.books[id]; ok {
		return &b, nil
	}
	b, ok := t.store.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return &b, nil
}

func (t *memTx) GetMember(id string) (*Member, error) {
	if m, ok := t.members[id]; ok {
		return &m, nil
	}
	m, ok := t.store.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return &m, nil
}

func (t *memTx) GetLoan(id string) (*Loan, error) {
	if l, ok := t.loans[id]; ok {
		return &l, nil
	}
	l, ok := t.store.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
	}
	return &l, nil
}

func (t *memTx) UpdateBook(b *Book) error {
	if _, err := t.GetBook(b.ID); err != nil {
		return err
	}
	t.books[b.ID] = *b
	return nil
}

func (t *memTx) UpdateMember(m *Member) error {
	if _, err := t.GetMember(m.ID); err != nil {
		return err
	}
	t.members[m.ID] = *m
	return nil
}

func (t *memTx) UpdateLoan(l *Loan) error {
	if _, err := t.GetLoan(l.ID); err != nil {
		return err
	}
	t.loans[l.ID] = *l
	return nil
}

func (t *memTx) InsertLoan(l *Loan) error {
	if _, err := t.GetLoan(l.ID); err == nil {
		return fmt.Errorf("loan %s already exists", l.ID)
	}
	t.loans[l.ID] = *l
	return nil
}

func (t *memTx) commit() {
	for id, b := range t.books {
		t.store.books[id] = b
	}
	for id, m := range t.members {
		t.store.members[id] = m
	}
	for id, l := range t.loans {
		t.store.loans[id] = l
	}
}
