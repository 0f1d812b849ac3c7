package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleMediator Role = "mediator"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

type MediatorStatus string

const (
	MediatorAvailable MediatorStatus = "Available"
	MediatorBusy      MediatorStatus = "Busy"
)

// User holds the identity and balance fields the mediation core reads and mutates.
// Balances are kept in BaseCurrency.
type User struct {
	ID                     uuid.UUID       `json:"id"`
	Username               *string         `json:"username,omitempty"`
	Role                   Role            `json:"role"`
	IsMediatorQualified    bool            `json:"is_mediator_qualified"`
	Blocked                bool            `json:"blocked"`
	Balance                decimal.Decimal `json:"balance"`
	SellerPendingBalance   decimal.Decimal `json:"seller_pending_balance"`
	SellerAvailableBalance decimal.Decimal `json:"seller_available_balance"`
	MediatorStatus         MediatorStatus  `json:"mediator_status"`
	ReputationPoints       int             `json:"reputation_points"`
	Level                  int             `json:"level"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// CanMediate reports whether the user may be placed on a mediation at all.
func (u *User) CanMediate() bool {
	return u.IsMediatorQualified && !u.Blocked
}

// ActiveAssignment is one mediation currently occupying a mediator.
type ActiveAssignment struct {
	MediationID uuid.UUID       `json:"mediation_id"`
	Status      MediationStatus `json:"status"`
}

// Actor is whoever invokes a mediation operation. System actors have a nil UserID.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsSystem() bool { return a.Role == RoleSystem }

// ID returns nil for system actors so history entries carry no actor.
func (a Actor) ID() *uuid.UUID {
	if a.IsSystem() || a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
