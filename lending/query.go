package lending

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"lendshelf/models"
)

const (
	PlaceholderItemName   = "Unavailable item"
	PlaceholderMemberName = "Unknown member"
)

// EnrichedRecord is a borrow record joined with catalog and profile
// snapshots for dashboards.
type EnrichedRecord struct {
	models.BorrowRecord
	Item     ItemSnapshot    `json:"item"`
	Owner    ProfileSnapshot `json:"owner"`
	Borrower ProfileSnapshot `json:"borrower"`
}

type Availability struct {
	ItemID         string        `json:"itemId"`
	Available      bool          `json:"available"`
	ActiveRecordID string        `json:"activeRecordId,omitempty"`
	ActiveStatus   models.Status `json:"activeStatus,omitempty"`
}

// QueryService builds read-only dashboard projections. It never writes.
type QueryService struct {
	store    Store
	catalog  ItemCatalog
	profiles ProfileDirectory
	guard    *Guard
	log      *slog.Logger
}

func NewQueryService(store Store, catalog ItemCatalog, profiles ProfileDirectory, log *slog.Logger) *QueryService {
	if log == nil {
		log = slog.Default()
	}
	return &QueryService{store: store, catalog: catalog, profiles: profiles, guard: NewGuard(profiles), log: log}
}

// ListIncoming returns requests waiting for the caller's decision as owner.
func (q *QueryService) ListIncoming(ctx context.Context, callerID string) ([]EnrichedRecord, error) {
	return q.list(ctx, callerID, func(actor string) RecordFilter {
		return RecordFilter{OwnerID: actor, Statuses: []models.Status{models.StatusRequested}}
	})
}

func (q *QueryService) ListSent(ctx context.Context, callerID string) ([]EnrichedRecord, error) {
	return q.list(ctx, callerID, func(actor string) RecordFilter {
		return RecordFilter{BorrowerID: actor, Statuses: []models.Status{models.StatusRequested, models.StatusApproved, models.StatusDeclined}}
	})
}

func (q *QueryService) ListActiveBorrows(ctx context.Context, callerID string) ([]EnrichedRecord, error) {
	return q.list(ctx, callerID, func(actor string) RecordFilter {
		return RecordFilter{BorrowerID: actor, Statuses: []models.Status{models.StatusApproved, models.StatusBorrowed}}
	})
}

func (q *QueryService) ListActiveLoans(ctx context.Context, callerID string) ([]EnrichedRecord, error) {
	return q.list(ctx, callerID, func(actor string) RecordFilter {
		return RecordFilter{OwnerID: actor, Statuses: []models.Status{models.StatusApproved, models.StatusBorrowed}}
	})
}

func (q *QueryService) ListHistory(ctx context.Context, callerID string) ([]EnrichedRecord, error) {
	return q.list(ctx, callerID, func(actor string) RecordFilter {
		return RecordFilter{ParticipantID: actor, Statuses: []models.Status{models.StatusReturned}}
	})
}

// ItemAvailability reports whether an item can take a new request.
func (q *QueryService) ItemAvailability(ctx context.Context, itemID string) (*Availability, error) {
	rec, err := q.store.ActiveForItem(ctx, itemID)
	if errors.Is(err, ErrNotFound) {
		return &Availability{ItemID: itemID, Available: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Availability{ItemID: itemID, ActiveRecordID: rec.ID, ActiveStatus: rec.Status}, nil
}

func (q *QueryService) list(ctx context.Context, callerID string, filter func(actor string) RecordFilter) ([]EnrichedRecord, error) {
	actor, err := q.guard.Authenticate(ctx, callerID)
	if err != nil {
		return nil, err
	}
	recs, err := q.store.List(ctx, filter(actor))
	if err != nil {
		return nil, err
	}
	return q.enrich(ctx, recs), nil
}

// enrich joins records with items and profiles. Lookup failures degrade to
// placeholders instead of failing the query.
func (q *QueryService) enrich(ctx context.Context, recs []models.BorrowRecord) []EnrichedRecord {
	out := make([]EnrichedRecord, 0, len(recs))
	if len(recs) == 0 {
		return out
	}

	itemIDs := make([]string, 0, len(recs))
	actorIDs := make([]string, 0, len(recs)*2)
	seen := map[string]bool{}
	for _, r := range recs {
		if !seen["i:"+r.ItemID] {
			seen["i:"+r.ItemID] = true
			itemIDs = append(itemIDs, r.ItemID)
		}
		for _, id := range []string{r.OwnerID, r.BorrowerID} {
			if !seen["p:"+id] {
				seen["p:"+id] = true
				actorIDs = append(actorIDs, id)
			}
		}
	}

	var (
		items    map[string]ItemSnapshot
		profiles map[string]ProfileSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := q.catalog.LookupItems(gctx, itemIDs)
		if err != nil {
			q.log.Warn("item lookup failed, using placeholders", "err", err)
			return nil
		}
		items = m
		return nil
	})
	g.Go(func() error {
		m, err := q.profiles.LookupProfiles(gctx, actorIDs)
		if err != nil {
			q.log.Warn("profile lookup failed, using placeholders", "err", err)
			return nil
		}
		profiles = m
		return nil
	})
	_ = g.Wait()

	for _, r := range recs {
		out = append(out, EnrichedRecord{
			BorrowRecord: r,
			Item:         itemOrPlaceholder(items, r.ItemID),
			Owner:        profileOrPlaceholder(profiles, r.OwnerID),
			Borrower:     profileOrPlaceholder(profiles, r.BorrowerID),
		})
	}
	return out
}

func itemOrPlaceholder(m map[string]ItemSnapshot, id string) ItemSnapshot {
	if it, ok := m[id]; ok {
		return it
	}
	return ItemSnapshot{ID: id, Name: PlaceholderItemName, Missing: true}
}

func profileOrPlaceholder(m map[string]ProfileSnapshot, id string) ProfileSnapshot {
	if p, ok := m[id]; ok {
		return p
	}
	return ProfileSnapshot{ID: id, DisplayName: PlaceholderMemberName, Missing: true}
}
