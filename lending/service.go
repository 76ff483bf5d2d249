package lending

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendshelf/models"
)

const (
	MaxNotesLength      = 500
	MaxRequestKeyLength = 128
)

type RequestInput struct {
	ItemID             string
	OwnerID            string
	BorrowerID         string
	Notes              string
	ExpectedReturnDate *time.Time
	// RequestKey lets a borrower retry an ambiguous request without creating
	// a second record.
	RequestKey string
}

// Service runs the borrow lifecycle: guard, engine, conditional write, then a
// best-effort notification.
type Service struct {
	store    Store
	catalog  ItemCatalog
	profiles ProfileDirectory
	guard    *Guard
	notifier Notifier
	log      *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(store Store, catalog ItemCatalog, profiles ProfileDirectory, notifier Notifier, log *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		catalog:  catalog,
		profiles: profiles,
		guard:    NewGuard(profiles),
		notifier: notifier,
		log:      log,
		tracer:   otel.Tracer("lendshelf/lending"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "lending."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		kind := KindOf(err)
		outcome = kind.String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if kind == KindInternal || kind == KindUnavailable {
			s.log.Warn("lending operation failed", "op", op, "kind", outcome, "err", err)
		}
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
	span.End()
}

func (s *Service) RequestBorrow(ctx context.Context, in RequestInput) (id string, err error) {
	const op = "request_borrow"
	ctx, span := s.start(ctx, op, attribute.String("item.id", in.ItemID))
	defer func() { s.finish(span, op, err) }()

	borrowerID, err := s.guard.Authenticate(ctx, in.BorrowerID)
	if err != nil {
		return "", err
	}
	in.BorrowerID = borrowerID
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.RequestKey = strings.TrimSpace(in.RequestKey)
	if err := s.validateRequest(in); err != nil {
		return "", err
	}
	if in.OwnerID == in.BorrowerID {
		return "", E(KindSelfLoan, op, "owner and borrower are the same member", nil)
	}

	item, err := s.catalog.GetItem(ctx, in.ItemID)
	if err != nil {
		return "", err
	}
	if item.Status != "" && item.Status != models.ItemStatusActive {
		return "", E(KindNotFound, op, "item is not available for lending", nil)
	}
	if item.OwnerID != in.OwnerID {
		return "", E(KindItemOwnershipMismatch, op, "owner does not hold this item", nil)
	}
	ok, err := s.profiles.ProfileExists(ctx, in.OwnerID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", E(KindNotFound, op, "owner not found", nil)
	}

	if in.RequestKey != "" {
		if prev, found, err := s.findByKey(ctx, in); err != nil || found {
			return prev, err
		}
	}

	now := s.now()
	rec := &models.BorrowRecord{
		ID:                 uuid.NewString(),
		ItemID:             in.ItemID,
		OwnerID:            in.OwnerID,
		BorrowerID:         in.BorrowerID,
		Status:             models.StatusRequested,
		Notes:              strings.TrimSpace(in.Notes),
		ExpectedReturnDate: in.ExpectedReturnDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.RequestKey != "" {
		key := in.RequestKey
		rec.RequestKey = &key
	}
	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			// A concurrent retry with the same key won the insert.
			prev, found, ferr := s.findByKey(ctx, in)
			if ferr != nil {
				return "", ferr
			}
			if found {
				return prev, nil
			}
		}
		if errors.Is(err, ErrAlreadyActive) && in.RequestKey == "" {
			// A keyless retry after an ambiguous failure gets its own record back.
			if prev, ok := s.ownPendingRequest(ctx, in); ok {
				return prev, nil
			}
		}
		return "", err
	}

	s.emit(ActionRequest, rec, in.BorrowerID)
	return rec.ID, nil
}

func (s *Service) validateRequest(in RequestInput) error {
	const op = "lending.RequestBorrow"
	switch {
	case in.ItemID == "":
		return E(KindInvalidArgument, op, "item id is required", nil)
	case in.OwnerID == "":
		return E(KindInvalidArgument, op, "owner id is required", nil)
	case utf8.RuneCountInString(in.Notes) > MaxNotesLength:
		return E(KindInvalidArgument, op, "notes are too long", nil)
	case len(in.RequestKey) > MaxRequestKeyLength:
		return E(KindInvalidArgument, op, "request key is too long", nil)
	case in.ExpectedReturnDate != nil && in.ExpectedReturnDate.Before(s.now()):
		return E(KindInvalidArgument, op, "expected return date is in the past", nil)
	}
	return nil
}

// ownPendingRequest returns the item's active record when it is still the
// same borrower's untouched request to the same owner.
func (s *Service) ownPendingRequest(ctx context.Context, in RequestInput) (string, bool) {
	rec, err := s.store.ActiveForItem(ctx, in.ItemID)
	if err != nil {
		return "", false
	}
	if rec.BorrowerID != in.BorrowerID || rec.OwnerID != in.OwnerID || rec.Status != models.StatusRequested {
		return "", false
	}
	return rec.ID, true
}

func (s *Service) findByKey(ctx context.Context, in RequestInput) (string, bool, error) {
	prev, err := s.store.FindByRequestKey(ctx, in.BorrowerID, in.RequestKey)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if prev.ItemID != in.ItemID {
		return "", false, E(KindInvalidArgument, "lending.RequestBorrow", "request key already used for another item", nil)
	}
	return prev.ID, true, nil
}

func (s *Service) Approve(ctx context.Context, recordID, callerID string) (*models.BorrowRecord, error) {
	return s.transition(ctx, ActionApprove, recordID, callerID)
}

func (s *Service) Decline(ctx context.Context, recordID, callerID string) (*models.BorrowRecord, error) {
	return s.transition(ctx, ActionDecline, recordID, callerID)
}

func (s *Service) MarkBorrowed(ctx context.Context, recordID, callerID string) (*models.BorrowRecord, error) {
	return s.transition(ctx, ActionMarkBorrowed, recordID, callerID)
}

func (s *Service) MarkReturned(ctx context.Context, recordID, callerID string) (*models.BorrowRecord, error) {
	return s.transition(ctx, ActionMarkReturned, recordID, callerID)
}

// Cancel withdraws a request that the owner has not acted on yet. The record
// is deleted rather than kept as history.
func (s *Service) Cancel(ctx context.Context, recordID, callerID string) (err error) {
	op := string(ActionCancel)
	ctx, span := s.start(ctx, op, attribute.String("borrow.id", recordID))
	defer func() { s.finish(span, op, err) }()

	actor, rec, err := s.load(ctx, ActionCancel, recordID, callerID)
	if err != nil {
		return err
	}
	if _, err := Decide(rec.Status, ActionCancel); err != nil {
		return err
	}
	if err := s.store.DeleteRequested(ctx, rec.ID, actor); err != nil {
		return err
	}
	s.emit(ActionCancel, rec, actor)
	return nil
}

// Get returns a record visible to the caller.
func (s *Service) Get(ctx context.Context, recordID, callerID string) (*models.BorrowRecord, error) {
	actor, err := s.guard.Authenticate(ctx, callerID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if RoleOf(actor, rec) == 0 {
		return nil, E(KindNotFound, "lending.Get", "borrow record not found", nil)
	}
	return rec, nil
}

func (s *Service) load(ctx context.Context, action Action, recordID, callerID string) (string, *models.BorrowRecord, error) {
	actor, err := s.guard.Authenticate(ctx, callerID)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(recordID) == "" {
		return "", nil, E(KindNotFound, "lending.load", "borrow record not found", nil)
	}
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return "", nil, err
	}
	if err := s.guard.Authorize(actor, rec, action); err != nil {
		return "", nil, err
	}
	return actor, rec, nil
}

func (s *Service) transition(ctx context.Context, action Action, recordID, callerID string) (out *models.BorrowRecord, err error) {
	op := string(action)
	ctx, span := s.start(ctx, op, attribute.String("borrow.id", recordID))
	defer func() { s.finish(span, op, err) }()

	actor, rec, err := s.load(ctx, action, recordID, callerID)
	if err != nil {
		return nil, err
	}
	outcome, err := Decide(rec.Status, action)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.ConditionalUpdate(ctx, rec.ID, rec.Status, Apply(rec, outcome, s.now()))
	if err != nil {
		return nil, err
	}
	s.emit(action, updated, actor)
	return updated, nil
}

var eventTypes = map[Action]string{
	ActionRequest:      EventBorrowRequested,
	ActionApprove:      EventBorrowApproved,
	ActionDecline:      EventBorrowDeclined,
	ActionCancel:       EventBorrowCancelled,
	ActionMarkBorrowed: EventBorrowPickedUp,
	ActionMarkReturned: EventBorrowReturned,
}

func (s *Service) emit(action Action, rec *models.BorrowRecord, actor string) {
	status := string(rec.Status)
	if action == ActionCancel {
		status = "cancelled"
	}
	s.notifier.Emit(Event{
		Type:           eventTypes[action],
		RecipientID:    rec.Counterparty(actor),
		ActorID:        actor,
		TargetRecordID: rec.ID,
		Metadata:       map[string]string{"item_id": rec.ItemID, "status": status},
		OccurredAt:     s.now(),
	})
}
