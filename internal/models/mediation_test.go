package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     MediationStatus
		to       MediationStatus
		expected bool
	}{
		// Happy path
		{StatusPendingAssignment, StatusMediatorAssigned, true},
		{StatusMediatorAssigned, StatusMediationOfferAccepted, true},
		{StatusMediationOfferAccepted, StatusEscrowFunded, true},
		{StatusMediationOfferAccepted, StatusPartiesConfirmed, true},
		{StatusEscrowFunded, StatusPartiesConfirmed, true},
		{StatusPartiesConfirmed, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},

		// Self-selection and rejection fallback
		{StatusPendingAssignment, StatusPendingMediatorSelection, true},
		{StatusPendingMediatorSelection, StatusMediatorAssigned, true},
		{StatusMediatorAssigned, StatusPendingMediatorSelection, true},

		// Dispute
		{StatusInProgress, StatusDisputed, true},
		{StatusDisputed, StatusCompleted, true},
		{StatusDisputed, StatusRefundedToBuyer, true},
		{StatusDisputed, StatusResolvedSplit, true},

		// Cancellation paths
		{StatusPendingAssignment, StatusCancelledByAdmin, true},
		{StatusPendingMediatorSelection, StatusCancelledTimeout, true},
		{StatusMediatorAssigned, StatusCancelledByBuyer, true},
		{StatusMediationOfferAccepted, StatusCancelledBySeller, true},

		// Invalid transitions
		{StatusEscrowFunded, StatusCancelledByBuyer, false},
		{StatusInProgress, StatusCancelledByAdmin, false},
		{StatusDisputed, StatusInProgress, false},
		{StatusDisputed, StatusCancelledByAdmin, false},
		{StatusPartiesConfirmed, StatusDisputed, false},
		{StatusPendingAssignment, StatusInProgress, false},
		{StatusCompleted, StatusDisputed, false},
		{StatusRefundedToBuyer, StatusCompleted, false},
		{StatusCancelledByBuyer, StatusPendingAssignment, false},
		{"nonexistent", StatusMediatorAssigned, false},
		{StatusPendingAssignment, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []MediationStatus{
		StatusCompleted, StatusRefundedToBuyer, StatusResolvedSplit,
		StatusCancelledByBuyer, StatusCancelledBySeller, StatusCancelledByAdmin, StatusCancelledTimeout,
	}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("status %q should be terminal, got %v", status, ValidMediationTransitions[status])
		}
	}
	if StatusDisputed.IsTerminal() {
		t.Error("disputed must not be terminal")
	}
}

func TestDisputedReachableOnlyFromInProgress(t *testing.T) {
	for from, targets := range ValidMediationTransitions {
		for _, to := range targets {
			if to == StatusDisputed && from != StatusInProgress {
				t.Errorf("disputed reachable from %q", from)
			}
		}
	}
}

func TestCancellationOnlyBeforeEscrow(t *testing.T) {
	for from, targets := range ValidMediationTransitions {
		for _, to := range targets {
			if to.IsCancelled() && from.IsFunded() {
				t.Errorf("funded status %q can reach cancellation %q", from, to)
			}
		}
	}
}

func fundedRequest() *MediationRequest {
	mediator := uuid.New()
	return &MediationRequest{
		ID:                   uuid.New(),
		SellerID:             uuid.New(),
		BuyerID:              uuid.New(),
		MediatorID:           &mediator,
		BidAmount:            decimal.NewFromInt(40),
		BidCurrency:          CurrencyTND,
		Status:               StatusEscrowFunded,
		BuyerConfirmedStart:  true,
		SellerConfirmedStart: false,
		Escrow: &EscrowTerms{
			Amount:      decimal.RequireFromString("41.20"),
			Currency:    CurrencyTND,
			MediatorFee: decimal.RequireFromString("2.40"),
			FeeCurrency: CurrencyTND,
			FundedAt:    time.Now(),
		},
	}
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *MediationRequest)
		wantErr bool
	}{
		{"valid funded", func(m *MediationRequest) {}, false},
		{"mediator is seller", func(m *MediationRequest) { m.MediatorID = &m.SellerID }, true},
		{"seller is buyer", func(m *MediationRequest) { m.BuyerID = m.SellerID }, true},
		{"funded without escrow", func(m *MediationRequest) { m.Escrow = nil }, true},
		{"buyer confirmed without escrow", func(m *MediationRequest) {
			m.Status = StatusMediationOfferAccepted
			m.Escrow = nil
		}, true},
		{"escrow_funded with seller confirmed", func(m *MediationRequest) { m.SellerConfirmedStart = true }, true},
		{"parties_confirmed both flags", func(m *MediationRequest) {
			m.Status = StatusPartiesConfirmed
			m.SellerConfirmedStart = true
		}, false},
		{"in_progress missing seller flag", func(m *MediationRequest) { m.Status = StatusInProgress }, true},
		{"pending with mediator", func(m *MediationRequest) {
			m.Status = StatusPendingAssignment
			m.Escrow = nil
			m.BuyerConfirmedStart = false
		}, true},
		{"fee above amount", func(m *MediationRequest) { m.Escrow.MediatorFee = decimal.NewFromInt(100) }, true},
		{"unknown status", func(m *MediationRequest) { m.Status = "bogus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fundedRequest()
			tt.mutate(m)
			err := m.CheckInvariants()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckInvariants() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadinessPhase(t *testing.T) {
	m := fundedRequest()
	m.Status = StatusMediationOfferAccepted
	m.BuyerConfirmedStart = false
	if got := m.ReadinessPhase(); got != ReadinessAwaitingBoth {
		t.Errorf("got %s, want %s", got, ReadinessAwaitingBoth)
	}
	m.SellerConfirmedStart = true
	if got := m.ReadinessPhase(); got != ReadinessAwaitingBuyer {
		t.Errorf("got %s, want %s", got, ReadinessAwaitingBuyer)
	}
	m.SellerConfirmedStart = false
	m.BuyerConfirmedStart = true
	m.Status = StatusEscrowFunded
	if got := m.ReadinessPhase(); got != ReadinessAwaitingSeller {
		t.Errorf("got %s, want %s", got, ReadinessAwaitingSeller)
	}
	m.Status = StatusInProgress
	if got := m.ReadinessPhase(); got != ReadinessNotApplicable {
		t.Errorf("got %s, want %s", got, ReadinessNotApplicable)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := fundedRequest()
	m.DisputeOverseers = []uuid.UUID{uuid.New()}
	cp := m.Clone()
	cp.Escrow.MediatorFee = decimal.Zero
	cp.AddOverseer(uuid.New())
	*cp.MediatorID = uuid.New()

	if m.Escrow.MediatorFee.IsZero() {
		t.Error("clone shares escrow terms")
	}
	if len(m.DisputeOverseers) != 1 {
		t.Error("clone shares overseer slice")
	}
	if *m.MediatorID == *cp.MediatorID {
		t.Error("clone shares mediator id")
	}
}

func TestAddOverseerIdempotent(t *testing.T) {
	m := fundedRequest()
	admin := uuid.New()
	if !m.AddOverseer(admin) {
		t.Fatal("first join should add")
	}
	if m.AddOverseer(admin) {
		t.Fatal("second join should be a no-op")
	}
	if len(m.DisputeOverseers) != 1 {
		t.Errorf("overseers = %v", m.DisputeOverseers)
	}
}
