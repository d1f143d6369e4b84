package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditClean(t *testing.T) {
	e, store := newTestEngine(t, time.Now())
	ctx := context.Background()

	book := seedBook(t, store, 2)
	member := seedMember(t, store, "Alice")
	_, err := e.IssueBook(ctx, member.ID, book.ID)
	require.NoError(t, err)

	drifts, err := NewAuditor(store, nil).Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts, "engine-maintained counters never drift")
}

func TestAuditDetectsAndRepairsDrift(t *testing.T) {
	e, store := newTestEngine(t, time.Now())
	ctx := context.Background()

	book := seedBook(t, store, 3)
	member := seedMember(t, store, "Alice")
	_, err := e.IssueBook(ctx, member.ID, book.ID)
	require.NoError(t, err)

	// Corrupt both counters behind the engine's back.
	err = store.Update(ctx, func(tx Tx) error {
		b, err := tx.GetBook(book.ID)
		if err != nil {
			return err
		}
		b.AvailableCopies = 3
		if err := tx.UpdateBook(b); err != nil {
			return err
		}
		m, err := tx.GetMember(member.ID)
		if err != nil {
			return err
		}
		m.BorrowedBooks = 5
		return tx.UpdateMember(m)
	})
	require.NoError(t, err)

	auditor := NewAuditor(store, nil)
	drifts, err := auditor.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 2)

	kinds := map[string]Drift{}
	for _, d := range drifts {
		kinds[d.Kind] = d
	}
	assert.Equal(t, 0, kinds["book"].Stored)
	assert.Equal(t, 1, kinds["book"].Actual)
	assert.Equal(t, 5, kinds["member"].Stored)
	assert.Equal(t, 1, kinds["member"].Actual)

	require.NoError(t, auditor.Repair(ctx, drifts))

	b, _ := store.GetBook(ctx, book.ID)
	m, _ := store.GetMember(ctx, member.ID)
	assert.Equal(t, 2, b.AvailableCopies)
	assert.Equal(t, 1, m.BorrowedBooks)

	drifts, err = auditor.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}
