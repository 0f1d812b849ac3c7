package dto

// Mediations

type CreateMediationRequest struct {
	ProductID   string `json:"product_id" validate:"required,uuid"`
	BuyerID     string `json:"buyer_id" validate:"required,uuid"`
	SellerID    string `json:"seller_id,omitempty" validate:"omitempty,uuid"` // admins may create on a seller's behalf
	BidAmount   string `json:"bid_amount" validate:"required,numeric"`
	BidCurrency string `json:"bid_currency" validate:"required,oneof=TND USD"`
	SelfSelect  bool   `json:"self_select"`
}

type SelectMediatorRequest struct {
	MediatorID string `json:"mediator_id" validate:"required,uuid"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type OpenDisputeRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

type ResolveDisputeRequest struct {
	Outcome       string  `json:"outcome" validate:"required"`
	SellerPercent *string `json:"seller_percent,omitempty" validate:"omitempty,numeric"`
	Note          *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type FeeQuoteRequest struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency" validate:"required"`
}

// Development only

type DevTokenRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role,omitempty" validate:"omitempty,oneof=user mediator admin"`
}

type DevUserRequest struct {
	Username            *string `json:"username,omitempty"`
	Role                string  `json:"role,omitempty" validate:"omitempty,oneof=user mediator admin"`
	IsMediatorQualified bool    `json:"is_mediator_qualified"`
	Balance             string  `json:"balance,omitempty" validate:"omitempty,numeric"`
}
