package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/ledger"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminHandler serves the routes behind AdminMiddleware.
type AdminHandler struct {
	*MediationHandler
}

func NewAdminHandler(svc *services.MediationService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{MediationHandler: NewMediationHandler(svc, log)}
}

func (h *AdminHandler) AssignMediator(c *fiber.Ctx) error {
	var req dto.SelectMediatorRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.AssignMediator(c.Context(), id, a, uuid.MustParse(req.MediatorID))
	})(c)
}

func (h *AdminHandler) JoinDispute(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.JoinDispute(c.Context(), id, a)
	})(c)
}

func (h *AdminHandler) ResolveDispute(c *fiber.Ctx) error {
	var req dto.ResolveDisputeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	params := ledger.ResolutionParams{Note: req.Note}
	if req.SellerPercent != nil {
		pct, err := decimal.NewFromString(*req.SellerPercent)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid seller_percent")
		}
		params.SellerPercent = &pct
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.ResolveDispute(c.Context(), id, a, req.Outcome, params)
	})(c)
}

func (h *AdminHandler) Cancel(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.CancelByAdmin(c.Context(), id, a, req.Reason)
	})(c)
}

func (h *AdminHandler) ExpireAssignment(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.ExpireAssignment(c.Context(), id, a)
	})(c)
}

func (h *AdminHandler) ExpireSelection(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.ExpireSelection(c.Context(), id, a)
	})(c)
}

func (h *AdminHandler) StartChat(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.StartChat(c.Context(), id, a)
	})(c)
}

