package lending

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendshelf/models"
)

var allStatuses = []models.Status{
	models.StatusRequested,
	models.StatusApproved,
	models.StatusDeclined,
	models.StatusBorrowed,
	models.StatusReturned,
}

func TestDecideCoversEveryPair(t *testing.T) {
	legal := map[models.Status]map[Action]Outcome{
		models.StatusRequested: {
			ActionApprove: {To: models.StatusApproved},
			ActionDecline: {To: models.StatusDeclined},
			ActionCancel:  {Delete: true},
		},
		models.StatusApproved: {
			ActionMarkBorrowed: {To: models.StatusBorrowed, StampBorrowed: true},
			ActionMarkReturned: {To: models.StatusReturned, StampReturned: true},
		},
		models.StatusBorrowed: {
			ActionMarkReturned: {To: models.StatusReturned, StampReturned: true},
		},
	}

	for _, from := range allStatuses {
		for _, action := range Actions {
			got, err := Decide(from, action)
			want, ok := legal[from][action]
			if ok {
				require.NoError(t, err, "%s --%s-->", from, action)
				assert.Equal(t, want, got, "%s --%s-->", from, action)
				continue
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition), "%s --%s--> should be invalid, got %v", from, action, err)
			assert.Equal(t, Outcome{}, got)
		}
	}
}

func TestDecideRejectsUnknownInput(t *testing.T) {
	_, err := Decide(models.StatusRequested, Action("steal"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Decide(models.Status("lost"), ActionApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalStatusesAcceptNothing(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, action := range Actions {
			_, err := Decide(from, action)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s --%s-->", from, action)
		}
	}
}

func TestRequiredRole(t *testing.T) {
	assert.Equal(t, RoleBorrower, RequiredRole(ActionRequest))
	assert.Equal(t, RoleOwner, RequiredRole(ActionApprove))
	assert.Equal(t, RoleOwner, RequiredRole(ActionDecline))
	assert.Equal(t, RoleBorrower, RequiredRole(ActionCancel))
	assert.Equal(t, RoleEither, RequiredRole(ActionMarkBorrowed))
	assert.Equal(t, RoleEither, RequiredRole(ActionMarkReturned))
	assert.Equal(t, "owner or borrower", RoleEither.String())
}

func TestApplyStampsTimestampsOnce(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := &models.BorrowRecord{Status: models.StatusApproved}

	ch := Apply(rec, Outcome{To: models.StatusBorrowed, StampBorrowed: true}, now)
	assert.Equal(t, models.StatusBorrowed, ch.To)
	assert.Equal(t, now, ch.UpdatedAt)
	require.NotNil(t, ch.BorrowedAt)
	assert.Equal(t, now, *ch.BorrowedAt)
	assert.Nil(t, ch.ReturnedAt)

	earlier := now.Add(-time.Hour)
	rec.BorrowedAt = &earlier
	ch = Apply(rec, Outcome{To: models.StatusBorrowed, StampBorrowed: true}, now)
	assert.Nil(t, ch.BorrowedAt, "an existing borrowed_at is kept")
}

func TestErrorKinds(t *testing.T) {
	err := E(KindStaleState, "op", "changed", nil)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindStaleState, KindOf(err))

	wrapped := errors.Join(errors.New("context"), E(KindUnavailable, "op", "", errors.New("conn reset")))
	assert.True(t, Retryable(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "item_ownership_mismatch", KindItemOwnershipMismatch.String())
}
