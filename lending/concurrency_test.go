package lending_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"lendshelf/lending"
	"lendshelf/models"
)

func TestConcurrentRequestsForOneItem(t *testing.T) {
	f := newFixture(t)
	const borrowers = 24
	for i := 0; i < borrowers; i++ {
		f.dir.Put(models.User{ID: fmt.Sprintf("member-%02d", i), Username: fmt.Sprintf("m%02d", i)})
	}

	var won, lost atomic.Int32
	var g errgroup.Group
	for i := 0; i < borrowers; i++ {
		borrower := fmt.Sprintf("member-%02d", i)
		g.Go(func() error {
			_, err := f.svc.RequestBorrow(context.Background(), lending.RequestInput{
				ItemID:     itemID,
				OwnerID:    ownerID,
				BorrowerID: borrower,
			})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, lending.ErrAlreadyActive):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, won.Load())
	assert.EqualValues(t, borrowers-1, lost.Load())

	active, err := f.store.List(context.Background(), lending.RecordFilter{ItemID: itemID, Statuses: models.ActiveStatuses})
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Len(t, f.notes.Events(), 1)
}

func TestConcurrentApproveAndDecline(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		id := f.request(t, itemID, borrowerID)

		results := make([]error, 2)
		var g errgroup.Group
		g.Go(func() error {
			_, results[0] = f.svc.Approve(context.Background(), id, ownerID)
			return nil
		})
		g.Go(func() error {
			_, results[1] = f.svc.Decline(context.Background(), id, ownerID)
			return nil
		})
		require.NoError(t, g.Wait())

		var ok int
		for _, err := range results {
			if err == nil {
				ok++
				continue
			}
			// The loser either read before the winner committed (stale write)
			// or after it (illegal transition).
			assert.True(t, errors.Is(err, lending.ErrStaleState) || errors.Is(err, lending.ErrInvalidTransition), "round %d: %v", round, err)
		}
		assert.Equal(t, 1, ok, "round %d", round)

		final := f.record(t, id).Status
		assert.Contains(t, []models.Status{models.StatusApproved, models.StatusDeclined}, final)
		assert.Len(t, f.notes.Events(), 2, "request plus exactly one decision")
	}
}
