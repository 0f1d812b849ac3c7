package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolutionParams(sellerPercent *string) ledger.ResolutionParams {
	var p ledger.ResolutionParams
	if sellerPercent != nil {
		pct := decimal.RequireFromString(*sellerPercent)
		p.SellerPercent = &pct
	}
	return p
}

func TestResolveDisputeOutcomes(t *testing.T) {
	seventy := "70"
	tests := []struct {
		name           string
		outcome        string
		percent        *string
		wantStatus     models.MediationStatus
		wantSeller     string
		wantBuyer      string
		wantMediator   string
		wantReputation int
	}{
		{"settle", ledger.OutcomeSettle, nil, models.StatusCompleted, "38.80", "58.80", "2.40", 10},
		{"refund", ledger.OutcomeRefund, nil, models.StatusRefundedToBuyer, "0", "100", "0", 0},
		{"even split", ledger.OutcomeSplit, nil, models.StatusResolvedSplit, "19.40", "78.20", "2.40", 0},
		{"seventy percent to seller", ledger.OutcomeSplit, &seventy, models.StatusResolvedSplit, "27.16", "70.44", "2.40", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			m := f.disputed()

			m, err := f.svc.ResolveDispute(f.ctx, m.ID, f.admin, tt.outcome, resolutionParams(tt.percent))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, m.Status)
			assert.True(t, m.IsOverseer(f.admin.UserID))

			assertDec(t, tt.wantSeller, f.user(f.seller).SellerPendingBalance, "seller")
			assertDec(t, tt.wantBuyer, f.user(f.buyer).Balance, "buyer")
			assertDec(t, tt.wantMediator, f.user(f.mediator).Balance, "mediator")
			assert.Equal(t, tt.wantReputation, f.user(f.seller).ReputationPoints)
			assert.Equal(t, models.MediatorAvailable, f.user(f.mediator).MediatorStatus)

			var resolved *models.DisputeResolvedDetails
			for _, h := range m.History {
				if d, ok := h.Details.(models.DisputeResolvedDetails); ok {
					resolved = &d
				}
			}
			require.NotNil(t, resolved)
			assert.Equal(t, tt.outcome, resolved.Outcome)
			total := resolved.SellerAmount.Add(resolved.BuyerRefund).Add(resolved.MediatorFee)
			assertDec(t, "41.20", total)
		})
	}
}

type unbalancedStrategy struct{}

func (unbalancedStrategy) Outcome() string                      { return ledger.OutcomeSplit }
func (unbalancedStrategy) TargetStatus() models.MediationStatus { return models.StatusResolvedSplit }
func (unbalancedStrategy) Allocate(e models.EscrowTerms, _ ledger.ResolutionParams) (ledger.Allocation, error) {
	return ledger.Allocation{SellerAmount: e.Amount, MediatorFee: e.MediatorFee}, nil
}

func TestResolveDisputeUnbalancedStrategyAborts(t *testing.T) {
	f := newFixture(t, WithResolutionStrategy(unbalancedStrategy{}))
	m := f.disputed()

	_, err := f.svc.ResolveDispute(f.ctx, m.ID, f.admin, ledger.OutcomeSplit, resolutionParams(nil))
	var ce *ConsistencyError
	require.ErrorAs(t, err, &ce)

	after := f.record(m.ID)
	assert.Equal(t, models.StatusDisputed, after.Status)
	assertDec(t, "0", f.user(f.seller).SellerPendingBalance)
	assertDec(t, "0", f.user(f.mediator).Balance)
	assertDec(t, "58.80", f.user(f.buyer).Balance)
}

func TestAdminReadWhileDisputedJoinsOnce(t *testing.T) {
	f := newFixture(t)
	m := f.disputed()
	before := len(m.History)

	m, err := f.svc.GetRequest(f.ctx, m.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.admin.UserID}, m.DisputeOverseers)
	assert.Len(t, m.History, before+1)

	m, err = f.svc.GetRequest(f.ctx, m.ID, f.admin)
	require.NoError(t, err)
	assert.Len(t, m.DisputeOverseers, 1)

	m, err = f.svc.JoinDispute(f.ctx, m.ID, f.admin)
	require.NoError(t, err)
	assert.Len(t, m.DisputeOverseers, 1)
	assert.Len(t, f.record(m.ID).History, before+1)

	joined := f.bus.OfType(events.EventDisputeOverseerJoined)
	require.Len(t, joined, 1)
	assert.ElementsMatch(t, []uuid.UUID{f.seller.UserID, f.buyer.UserID, f.mediator.UserID}, joined[0].RecipientUserIDs)
}

func TestDisputeReadAccess(t *testing.T) {
	f := newFixture(t)
	m := f.disputed()

	for _, a := range []models.Actor{f.seller, f.buyer, f.mediator} {
		_, err := f.svc.GetRequest(f.ctx, m.ID, a)
		assert.NoError(t, err)
	}
	_, err := f.svc.GetRequest(f.ctx, m.ID, f.other)
	requireKind(t, err, KindForbidden)

	_, err = f.svc.JoinDispute(f.ctx, m.ID, f.seller)
	requireKind(t, err, KindForbidden)
}

func TestDisputeOpenedNotifiesCounterpartyAndAdmins(t *testing.T) {
	f := newFixture(t)
	f.disputed()

	opened := f.bus.OfType(events.EventDisputeOpened)
	require.Len(t, opened, 1)
	assert.ElementsMatch(t,
		[]uuid.UUID{f.seller.UserID, f.mediator.UserID, f.admin.UserID},
		opened[0].RecipientUserIDs)
	assert.Equal(t, string(models.PartyBuyer), opened[0].Params["opened_by"])
}
