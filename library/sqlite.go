package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a SQLite database. Atomicity comes from
// SQLite transactions opened in immediate mode; a busy/locked conflict is
// retried a bounded number of times before surfacing as ErrBusy.
type SQLiteStore struct {
	db *sql.DB

	insertBookStmt   *sql.Stmt
	insertMemberStmt *sql.Stmt
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the SQLite database at dbPath, applies
// schema migrations, and prepares common statements.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout keeps concurrent writers waiting instead of failing
	// instantly; _txlock=immediate makes Update transactions take the write
	// lock up front so reads inside them are never stale.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases prepared statements and closes the DB.
func (s *SQLiteStore) Close() error {
	if s.insertBookStmt != nil {
		s.insertBookStmt.Close()
	}
	if s.insertMemberStmt != nil {
		s.insertMemberStmt.Close()
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            rack_location TEXT NOT NULL DEFAULT '',
            total_copies INTEGER NOT NULL,
            available_copies INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS members (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            membership_id TEXT NOT NULL UNIQUE,
            borrowed_books INTEGER NOT NULL DEFAULT 0,
            password_hash TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            id TEXT PRIMARY KEY,
            member_id TEXT NOT NULL,
            member_name TEXT NOT NULL,
            membership_id TEXT NOT NULL,
            book_id TEXT NOT NULL,
            book_title TEXT NOT NULL,
            book_author TEXT NOT NULL,
            issued_at DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            returned_at DATETIME,
            fine INTEGER NOT NULL DEFAULT 0,
            fine_paid BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_book ON loans(book_id);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_open ON loans(returned_at) WHERE returned_at IS NULL;`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (s *SQLiteStore) prepareStatements() error {
	var err error
	if s.insertBookStmt, err = s.db.Prepare(
		`INSERT INTO books(id,title,author,isbn,category,rack_location,total_copies,available_copies)
         VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if s.insertMemberStmt, err = s.db.Prepare(
		`INSERT INTO members(id,name,email,phone,membership_id,borrowed_books,password_hash)
         VALUES(?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Row scanning
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

const bookCols = `id,title,author,isbn,category,rack_location,total_copies,available_copies`

func scanBook(row rowScanner) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Category,
		&b.RackLocation, &b.TotalCopies, &b.AvailableCopies)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const memberCols = `id,name,email,phone,membership_id,borrowed_books,password_hash`

func scanMember(row rowScanner) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.MembershipID,
		&m.BorrowedBooks, &m.PasswordHash)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const loanCols = `id,member_id,member_name,membership_id,book_id,book_title,book_author,issued_at,due_date,returned_at,fine,fine_paid`

func scanLoan(row rowScanner) (*Loan, error) {
	var l Loan
	var returned sql.NullTime
	err := row.Scan(&l.ID, &l.MemberID, &l.MemberName, &l.MembershipID,
		&l.BookID, &l.BookTitle, &l.BookAuthor, &l.IssuedAt, &l.DueDate,
		&returned, &l.Fine, &l.FinePaid)
	if err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		l.ReturnedAt = &t
	}
	return &l, nil
}

// ---------------------------------------------------------------------------
// Point reads and listings
// ---------------------------------------------------------------------------

func (s *SQLiteStore) GetBook(ctx context.Context, id string) (*Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookCols+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return b, err
}

func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return m, err
}

func (s *SQLiteStore) GetLoan(ctx context.Context, id string) (*Loan, error) {
	l, err := scanLoan(s.db.QueryRowContext(ctx, `SELECT `+loanCols+` FROM loans WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
	}
	return l, err
}

func (s *SQLiteStore) ListBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookCols+` FROM books ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *SQLiteStore) ListMembers(ctx context.Context) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+memberCols+` FROM members ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) ListLoans(ctx context.Context, f LoanFilter) ([]*Loan, error) {
	query := `SELECT ` + loanCols + ` FROM loans`
	var conds []string
	var args []any
	if f.MemberID != "" {
		conds = append(conds, "member_id=?")
		args = append(args, f.MemberID)
	}
	if f.BookID != "" {
		conds = append(conds, "book_id=?")
		args = append(args, f.BookID)
	}
	if f.OnlyOpen {
		conds = append(conds, "returned_at IS NULL")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY issued_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// ---------------------------------------------------------------------------
// Catalogue CRUD
// ---------------------------------------------------------------------------

func (s *SQLiteStore) InsertBook(ctx context.Context, b *Book) error {
	_, err := s.insertBookStmt.ExecContext(ctx, b.ID, b.Title, b.Author, b.ISBN,
		b.Category, b.RackLocation, b.TotalCopies, b.AvailableCopies)
	return err
}

func (s *SQLiteStore) InsertMember(ctx context.Context, m *Member) error {
	_, err := s.insertMemberStmt.ExecContext(ctx, m.ID, m.Name, m.Email, m.Phone,
		m.MembershipID, m.BorrowedBooks, m.PasswordHash)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("membership id %s already taken", m.MembershipID)
	}
	return err
}

// DeleteBook removes the book unless open loans still reference it. The
// existence check, loan check, and delete run in one transaction.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx Tx) error {
		st := tx.(*sqliteTx)
		if _, err := st.GetBook(id); err != nil {
			return err
		}
		var open bool
		if err := st.tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM loans WHERE book_id=? AND returned_at IS NULL)`, id).Scan(&open); err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: book %s", ErrOpenLoans, id)
		}
		_, err := st.tx.Exec(`DELETE FROM books WHERE id=?`, id)
		return err
	})
}

// DeleteMember removes the member unless open loans still reference them.
func (s *SQLiteStore) DeleteMember(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx Tx) error {
		st := tx.(*sqliteTx)
		if _, err := st.GetMember(id); err != nil {
			return err
		}
		var open bool
		if err := st.tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM loans WHERE member_id=? AND returned_at IS NULL)`, id).Scan(&open); err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: member %s", ErrOpenLoans, id)
		}
		_, err := st.tx.Exec(`DELETE FROM members WHERE id=?`, id)
		return err
	})
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

const (
	busyRetries   = 5
	busyBaseDelay = 10 * time.Millisecond
)

// Update runs fn in an immediate-mode transaction, retrying on busy/locked
// conflicts with linear backoff before giving up with ErrBusy.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if !isBusy(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * busyBaseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrBusy, err)
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// sqliteTx adapts a *sql.Tx to the Tx scope.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetBook(id string) (*Book, error) {
	b, err := scanBook(t.tx.QueryRow(`SELECT `+bookCols+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, id)
	}
	return b, err
}

func (t *sqliteTx) GetMember(id string) (*Member, error) {
	m, err := scanMember(t.tx.QueryRow(`SELECT `+memberCols+` FROM members WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
	}
	return m, err
}

func (t *sqliteTx) GetLoan(id string) (*Loan, error) {
	l, err := scanLoan(t.tx.QueryRow(`SELECT `+loanCols+` FROM loans WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
	}
	return l, err
}

func (t *sqliteTx) UpdateBook(b *Book) error {
	res, err := t.tx.Exec(
		`UPDATE books SET title=?,author=?,isbn=?,category=?,rack_location=?,total_copies=?,available_copies=? WHERE id=?`,
		b.Title, b.Author, b.ISBN, b.Category, b.RackLocation, b.TotalCopies, b.AvailableCopies, b.ID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("%w: %s", ErrBookNotFound, b.ID))
}

func (t *sqliteTx) UpdateMember(m *Member) error {
	res, err := t.tx.Exec(
		`UPDATE members SET name=?,email=?,phone=?,membership_id=?,borrowed_books=?,password_hash=? WHERE id=?`,
		m.Name, m.Email, m.Phone, m.MembershipID, m.BorrowedBooks, m.PasswordHash, m.ID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("%w: %s", ErrMemberNotFound, m.ID))
}

func (t *sqliteTx) UpdateLoan(l *Loan) error {
	var returned sql.NullTime
	if l.ReturnedAt != nil {
		returned = sql.NullTime{Time: *l.ReturnedAt, Valid: true}
	}
	res, err := t.tx.Exec(
		`UPDATE loans SET returned_at=?,fine=?,fine_paid=? WHERE id=?`,
		returned, l.Fine, l.FinePaid, l.ID)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Errorf("%w: %s", ErrLoanNotFound, l.ID))
}

func (t *sqliteTx) InsertLoan(l *Loan) error {
	var returned sql.NullTime
	if l.ReturnedAt != nil {
		returned = sql.NullTime{Time: *l.ReturnedAt, Valid: true}
	}
	_, err := t.tx.Exec(
		`INSERT INTO loans(`+loanCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.MemberID, l.MemberName, l.MembershipID, l.BookID, l.BookTitle,
		l.BookAuthor, l.IssuedAt, l.DueDate, returned, l.Fine, l.FinePaid)
	return err
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
