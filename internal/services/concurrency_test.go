package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBuyerConfirmDebitsOnce(t *testing.T) {
	f := newFixture(t)
	m := f.offerAccepted()

	const n = 8
	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ConfirmBuyerReady(f.ctx, m.ID, f.buyer); err != nil {
				errs <- err
				return
			}
			success.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), success.Load())
	for err := range errs {
		requireKind(t, err, KindInvalid)
	}
	assertDec(t, "58.80", f.user(f.buyer).Balance)
}

func TestConcurrentSelectionOfSameMediator(t *testing.T) {
	f := newFixture(t)
	a := f.create(true, "40")
	b := f.create(true, "20")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, results[i] = f.svc.SelectMediator(f.ctx, id, f.seller, f.mediator.UserID)
		}(i, id)
	}
	wg.Wait()

	var won int
	for _, err := range results {
		if err == nil {
			won++
			continue
		}
		requireKind(t, err, KindInvalid)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, models.MediatorBusy, f.user(f.mediator).MediatorStatus)
}

func TestConcurrentAdminJoinsAddEachOnce(t *testing.T) {
	f := newFixture(t)
	m := f.disputed()
	admins := []models.Actor{f.admin, f.addUser(models.RoleAdmin, false, "0"), f.addUser(models.RoleAdmin, false, "0")}

	var wg sync.WaitGroup
	for _, a := range admins {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(a models.Actor) {
				defer wg.Done()
				_, err := f.svc.JoinDispute(f.ctx, m.ID, a)
				assert.NoError(t, err)
			}(a)
		}
	}
	wg.Wait()

	after := f.record(m.ID)
	ids := make([]uuid.UUID, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.UserID)
	}
	assert.ElementsMatch(t, ids, after.DisputeOverseers)
}

// conflictingStore fails the first fails transactions as if another writer held the row.
type conflictingStore struct {
	repositories.Store
	fails int32
	calls atomic.Int32
}

func (s *conflictingStore) WithTx(ctx context.Context, fn func(tx repositories.Tx) error) error {
	if s.calls.Add(1) <= s.fails {
		return fmt.Errorf("lock row: %w", repositories.ErrConflict)
	}
	return s.Store.WithTx(ctx, fn)
}

func TestOpenDisputeRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	m := f.inProgress()
	cs := &conflictingStore{Store: f.store, fails: 2}
	f.svc.store = cs

	m, err := f.svc.OpenDispute(f.ctx, m.ID, f.seller, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, m.Status)
	assert.Equal(t, int32(3), cs.calls.Load())
}

func TestOpenDisputeSurfacesConflictAfterRetries(t *testing.T) {
	f := newFixture(t)
	m := f.inProgress()
	f.svc.store = &conflictingStore{Store: f.store, fails: 100}

	_, err := f.svc.OpenDispute(f.ctx, m.ID, f.seller, nil)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, f.cfg.ConflictMaxRetries+1, ce.Attempts)
	assert.Equal(t, models.StatusInProgress, f.record(m.ID).Status)
}

func TestOtherOperationsDoNotRetry(t *testing.T) {
	f := newFixture(t)
	m := f.inProgress()
	cs := &conflictingStore{Store: f.store, fails: 1}
	f.svc.store = cs

	_, err := f.svc.ConfirmReceipt(f.ctx, m.ID, f.buyer)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Attempts)
	assert.Equal(t, int32(1), cs.calls.Load())
}

func TestExpireAssignment(t *testing.T) {
	f := newFixture(t)
	m := f.assigned()

	_, err := f.svc.ExpireAssignment(f.ctx, m.ID, f.seller)
	requireKind(t, err, KindForbidden)
	_, err = f.svc.ExpireAssignment(f.ctx, m.ID, models.SystemActor())
	requireKind(t, err, KindInvalid)

	f.now = f.now.Add(25 * time.Hour)
	m, err = f.svc.ExpireAssignment(f.ctx, m.ID, models.SystemActor())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingMediatorSelection, m.Status)
	assert.Nil(t, m.MediatorID)

	last := m.History[len(m.History)-1]
	assert.Nil(t, last.ActorID)
	d, ok := last.Details.(models.AssignmentRejectedDetails)
	require.True(t, ok)
	assert.True(t, d.TimedOut)
	assert.Equal(t, "assignment timed out", d.Reason)
	assert.Equal(t, models.MediatorAvailable, f.user(f.mediator).MediatorStatus)
}

func TestSweepsUseTheSameTransitions(t *testing.T) {
	f := newFixture(t)
	stuckAssignment := f.assigned()
	stuckSelection := f.create(true, "40")
	fresh := f.create(true, "40")

	f.now = f.now.Add(80 * time.Hour)
	_, err := f.svc.SuggestMediators(f.ctx, fresh.ID, f.seller, 1)
	require.NoError(t, err)

	res, err := f.svc.SweepStale(f.ctx, "assignment", models.StatusMediatorAssigned, f.cfg.AssignmentTimeout, f.svc.ExpireAssignment)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1}, res)
	assert.Equal(t, models.StatusPendingMediatorSelection, f.record(stuckAssignment.ID).Status)

	res, err = f.svc.SweepStale(f.ctx, "selection", models.StatusPendingMediatorSelection, f.cfg.SelectionTimeout, f.svc.ExpireSelection)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1}, res)
	assert.Equal(t, models.StatusCancelledTimeout, f.record(stuckSelection.ID).Status)
	assert.Equal(t, models.StatusPendingMediatorSelection, f.record(fresh.ID).Status)
	assert.Equal(t, models.StatusPendingMediatorSelection, f.record(stuckAssignment.ID).Status)
}

// flakyStore lets the first ok transactions through and fails every later one.
type flakyStore struct {
	repositories.Store
	ok    int32
	calls atomic.Int32
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(tx repositories.Tx) error) error {
	if s.calls.Add(1) > s.ok {
		return errors.New("connection reset")
	}
	return s.Store.WithTx(ctx, fn)
}

func TestStartChatSweepRecoversFailedAutoStart(t *testing.T) {
	f := newFixture(t)
	m := f.escrowFunded()
	f.svc.store = &flakyStore{Store: f.store, ok: 1}

	m, err := f.svc.ConfirmSellerReady(f.ctx, m.ID, f.seller)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartiesConfirmed, m.Status)

	f.svc.store = f.store
	_, err = f.svc.ConfirmReceipt(f.ctx, m.ID, f.buyer)
	requireKind(t, err, KindInvalid)

	res, err := f.svc.SweepStale(f.ctx, "start_chat", models.StatusPartiesConfirmed, f.cfg.ChatStartGrace, f.svc.StartChat)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "inside the grace period the record is left alone")

	f.now = f.now.Add(2 * f.cfg.ChatStartGrace)
	res, err = f.svc.SweepStale(f.ctx, "start_chat", models.StatusPartiesConfirmed, f.cfg.ChatStartGrace, f.svc.StartChat)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1}, res)
	assert.Equal(t, models.StatusInProgress, f.record(m.ID).Status)

	m, err = f.svc.ConfirmReceipt(f.ctx, m.ID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, m.Status)
}

func TestSweepAvailabilityFreesIdleMediators(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.WithTx(f.ctx, func(tx repositories.Tx) error {
		return tx.SetMediatorStatus(f.ctx, f.other.UserID, models.MediatorBusy)
	}))

	res, err := f.svc.SweepAvailability(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, models.MediatorAvailable, f.user(f.other).MediatorStatus)
}

func TestSuggestionRefreshLimit(t *testing.T) {
	f := newFixture(t)
	f.addUser(models.RoleMediator, true, "0")
	f.addUser(models.RoleMediator, true, "0")
	m := f.create(true, "40")

	seen := map[uuid.UUID]bool{}
	for i := 0; i < f.cfg.MaxSuggestionRefreshes; i++ {
		batch, err := f.svc.SuggestMediators(f.ctx, m.ID, f.seller, 1)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		assert.False(t, seen[batch[0].ID], "mediator suggested twice")
		seen[batch[0].ID] = true
	}
	_, err := f.svc.SuggestMediators(f.ctx, m.ID, f.seller, 1)
	requireKind(t, err, KindInvalid)

	after := f.record(m.ID)
	assert.Equal(t, f.cfg.MaxSuggestionRefreshes, after.SuggestionRefreshCount)
	assert.Len(t, after.PreviouslySuggestedMediators, f.cfg.MaxSuggestionRefreshes)
}
