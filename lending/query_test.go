package lending_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendshelf/lending"
	"lendshelf/models"
)

func ids(recs []lending.EnrichedRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestDashboardLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.catalog.Put(models.Item{ID: "item-saw", OwnerID: ownerID, Name: "Saw"})
	f.catalog.Put(models.Item{ID: "item-tent", OwnerID: ownerID, Name: "Tent"})

	pending := f.request(t, itemID, borrowerID)

	lent := f.approved(t, item2ID)
	_, err := f.svc.MarkBorrowed(ctx, lent, ownerID)
	require.NoError(t, err)

	declined := f.request(t, "item-saw", borrowerID)
	_, err = f.svc.Decline(ctx, declined, ownerID)
	require.NoError(t, err)

	done := f.approved(t, "item-tent")
	_, err = f.svc.MarkReturned(ctx, done, borrowerID)
	require.NoError(t, err)

	incoming, err := f.queries.ListIncoming(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, []string{pending}, ids(incoming))

	sent, err := f.queries.ListSent(ctx, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, []string{declined, pending}, ids(sent), "newest first")

	borrowing, err := f.queries.ListActiveBorrows(ctx, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, []string{lent}, ids(borrowing))

	loans, err := f.queries.ListActiveLoans(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, []string{lent}, ids(loans))

	for _, caller := range []string{ownerID, borrowerID} {
		history, err := f.queries.ListHistory(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, []string{done}, ids(history))
	}

	// Roles do not leak across lists.
	incoming, err = f.queries.ListIncoming(ctx, borrowerID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
	history, err := f.queries.ListHistory(ctx, otherID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestListsAreEnriched(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, itemID, borrowerID)

	recs, err := f.queries.ListIncoming(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, id, r.ID)
	assert.Equal(t, "Cordless drill", r.Item.Name)
	assert.Equal(t, "Olive", r.Owner.DisplayName)
	assert.Equal(t, "Bruno", r.Borrower.DisplayName)
	assert.False(t, r.Item.Missing)
}

func TestListsUsePlaceholdersForMissingData(t *testing.T) {
	f := newFixture(t)
	f.request(t, itemID, borrowerID)
	f.catalog.Remove(itemID)
	f.dir.Remove(borrowerID)

	recs, err := f.queries.ListIncoming(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.True(t, r.Item.Missing)
	assert.Equal(t, lending.PlaceholderItemName, r.Item.Name)
	assert.Equal(t, itemID, r.Item.ID)
	assert.True(t, r.Borrower.Missing)
	assert.Equal(t, lending.PlaceholderMemberName, r.Borrower.DisplayName)
	assert.False(t, r.Owner.Missing)
}

type brokenCatalog struct{ lending.ItemCatalog }

func (brokenCatalog) LookupItems(context.Context, []string) (map[string]lending.ItemSnapshot, error) {
	return nil, errors.New("catalog offline")
}

func TestListsDegradeWhenLookupFails(t *testing.T) {
	f := newFixture(t)
	f.request(t, itemID, borrowerID)

	q := lending.NewQueryService(f.store, brokenCatalog{f.catalog}, f.dir, nil)
	recs, err := q.ListIncoming(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, lending.PlaceholderItemName, recs[0].Item.Name)
	assert.Equal(t, "Bruno", recs[0].Borrower.DisplayName)
}

func TestListsRequireIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.queries.ListSent(context.Background(), "")
	assert.ErrorIs(t, err, lending.ErrNotAuthenticated)
	_, err = f.queries.ListSent(context.Background(), "member-ghost")
	assert.ErrorIs(t, err, lending.ErrNotAuthenticated)
}

func TestItemAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	av, err := f.queries.ItemAvailability(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, av.Available)

	id := f.approved(t, itemID)
	av, err = f.queries.ItemAvailability(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, av.Available)
	assert.Equal(t, id, av.ActiveRecordID)
	assert.Equal(t, models.StatusApproved, av.ActiveStatus)

	_, err = f.svc.MarkReturned(ctx, id, ownerID)
	require.NoError(t, err)
	av, err = f.queries.ItemAvailability(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, av.Available)
}
