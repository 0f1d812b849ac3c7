package ledger

import (
	"fmt"
	"sort"

	"github.com/mediation-escrow/backend/internal/fees"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	OutcomeSettle = "settle"
	OutcomeRefund = "refund"
	OutcomeSplit  = "split"
)

// ResolutionParams carries the admin's judgment into a strategy.
type ResolutionParams struct {
	// SellerPercent of the escrow net of the mediator fee, 0..100. Used by split.
	SellerPercent *decimal.Decimal `json:"seller_percent,omitempty"`
	Note          *string          `json:"note,omitempty"`
}

// ResolutionStrategy decides how a disputed escrow is released.
type ResolutionStrategy interface {
	Outcome() string
	TargetStatus() models.MediationStatus
	Allocate(escrow models.EscrowTerms, params ResolutionParams) (Allocation, error)
}

type settleStrategy struct{}

func (settleStrategy) Outcome() string                      { return OutcomeSettle }
func (settleStrategy) TargetStatus() models.MediationStatus { return models.StatusCompleted }
func (settleStrategy) Allocate(escrow models.EscrowTerms, _ ResolutionParams) (Allocation, error) {
	return ComputeSettlement(escrow)
}

// refundStrategy returns the whole escrow, fee share included, to the buyer.
type refundStrategy struct{}

func (refundStrategy) Outcome() string                      { return OutcomeRefund }
func (refundStrategy) TargetStatus() models.MediationStatus { return models.StatusRefundedToBuyer }
func (refundStrategy) Allocate(escrow models.EscrowTerms, _ ResolutionParams) (Allocation, error) {
	return Allocation{BuyerRefund: escrow.Amount}, nil
}

type splitStrategy struct{}

var (
	fifty   = decimal.NewFromInt(50)
	hundred = decimal.NewFromInt(100)
)

func (splitStrategy) Outcome() string                      { return OutcomeSplit }
func (splitStrategy) TargetStatus() models.MediationStatus { return models.StatusResolvedSplit }
func (splitStrategy) Allocate(escrow models.EscrowTerms, p ResolutionParams) (Allocation, error) {
	pct := fifty
	if p.SellerPercent != nil {
		pct = *p.SellerPercent
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return Allocation{}, fmt.Errorf("seller_percent must be between 0 and 100, got %s", pct)
	}
	net := escrow.Amount.Sub(escrow.MediatorFee)
	if net.IsNegative() {
		return Allocation{}, fmt.Errorf("%w: escrow %s below fee %s", ErrInconsistent, escrow.Amount, escrow.MediatorFee)
	}
	seller := net.Mul(pct).Div(hundred).Round(fees.MoneyPlaces)
	return Allocation{
		SellerAmount: seller,
		BuyerRefund:  net.Sub(seller),
		MediatorFee:  escrow.MediatorFee,
	}, nil
}

// Resolutions maps an outcome name to its strategy.
type Resolutions map[string]ResolutionStrategy

func DefaultResolutions() Resolutions {
	r := Resolutions{}
	for _, s := range []ResolutionStrategy{settleStrategy{}, refundStrategy{}, splitStrategy{}} {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the strategy for s.Outcome().
func (r Resolutions) Register(s ResolutionStrategy) {
	r[s.Outcome()] = s
}

func (r Resolutions) Get(outcome string) (ResolutionStrategy, error) {
	s, ok := r[outcome]
	if !ok {
		return nil, fmt.Errorf("unknown resolution outcome %q, must be one of: %v", outcome, r.Outcomes())
	}
	return s, nil
}

func (r Resolutions) Outcomes() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
