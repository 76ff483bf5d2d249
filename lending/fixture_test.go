package lending_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendshelf/lending"
	"lendshelf/memstore"
	"lendshelf/models"
)

const (
	ownerID    = "member-owner"
	borrowerID = "member-borrower"
	otherID    = "member-other"
	itemID     = "item-drill"
	item2ID    = "item-ladder"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []lending.Event
}

func (n *recordingNotifier) Emit(ev lending.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *recordingNotifier) Events() []lending.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]lending.Event(nil), n.events...)
}

func (n *recordingNotifier) Last(t *testing.T) lending.Event {
	t.Helper()
	evs := n.Events()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

type fixture struct {
	store   *memstore.Store
	catalog *memstore.Catalog
	dir     *memstore.Directory
	notes   *recordingNotifier
	svc     *lending.Service
	queries *lending.QueryService

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		catalog: memstore.NewCatalog(),
		dir:     memstore.NewDirectory(),
		notes:   &recordingNotifier{},
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	for _, u := range []models.User{
		{ID: ownerID, Username: "olive", DisplayName: "Olive"},
		{ID: borrowerID, Username: "bruno", DisplayName: "Bruno"},
		{ID: otherID, Username: "oscar", DisplayName: "Oscar"},
	} {
		f.dir.Put(u)
	}
	f.catalog.Put(models.Item{ID: itemID, OwnerID: ownerID, Name: "Cordless drill"})
	f.catalog.Put(models.Item{ID: item2ID, OwnerID: ownerID, Name: "Ladder"})

	f.svc = lending.NewService(f.store, f.catalog, f.dir, f.notes, nil).WithClock(f.tick)
	f.queries = lending.NewQueryService(f.store, f.catalog, f.dir, nil)
	return f
}

// tick advances the clock by a second per reading so updated_at orders records.
func (f *fixture) tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fixture) request(t *testing.T, item, borrower string) string {
	t.Helper()
	id, err := f.svc.RequestBorrow(context.Background(), lending.RequestInput{
		ItemID:     item,
		OwnerID:    ownerID,
		BorrowerID: borrower,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) record(t *testing.T, id string) *models.BorrowRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

// approved returns a record that has been requested and approved.
func (f *fixture) approved(t *testing.T, item string) string {
	t.Helper()
	id := f.request(t, item, borrowerID)
	_, err := f.svc.Approve(context.Background(), id, ownerID)
	require.NoError(t, err)
	return id
}
