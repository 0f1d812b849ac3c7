package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/middleware"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/mediation-escrow/backend/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MediationHandler struct {
	svc *services.MediationService
	log *zap.Logger
}

func NewMediationHandler(svc *services.MediationService, log *zap.Logger) *MediationHandler {
	return &MediationHandler{svc: svc, log: log}
}

// transition is the shape shared by every body-less guarded operation.
type transition func(c *fiber.Ctx, id uuid.UUID, actor models.Actor) (*models.MediationRequest, error)

func (h *MediationHandler) run(op transition) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		m, err := op(c, id, middleware.GetActor(c))
		if err != nil {
			return writeError(c, h.log, err)
		}
		return c.JSON(dto.SuccessResponse{OK: true, Data: m})
	}
}

func (h *MediationHandler) CreateMediation(c *fiber.Ctx) error {
	var req dto.CreateMediationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	actor := middleware.GetActor(c)
	sellerID := actor.UserID
	if req.SellerID != "" {
		sellerID = uuid.MustParse(req.SellerID)
	}
	amount, err := decimal.NewFromString(req.BidAmount)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid bid_amount")
	}

	m, err := h.svc.CreateRequest(c.Context(), actor, services.CreateRequestInput{
		ProductID:   uuid.MustParse(req.ProductID),
		SellerID:    sellerID,
		BuyerID:     uuid.MustParse(req.BuyerID),
		BidAmount:   amount,
		BidCurrency: models.Currency(req.BidCurrency),
		SelfSelect:  req.SelfSelect,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: m})
}

func (h *MediationHandler) GetMediation(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.GetRequest(c.Context(), id, a)
	})(c)
}

func (h *MediationHandler) GetHistory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.svc.History(c.Context(), id, middleware.GetActor(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func (h *MediationHandler) ListMediations(c *fiber.Ctx) error {
	f := listFilter(c)
	items, err := h.svc.ListRequests(c.Context(), middleware.GetActor(c), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{Items: items, Limit: f.Limit, Offset: f.Offset}})
}

func listFilter(c *fiber.Ctx) repositories.MediationFilter {
	f := repositories.MediationFilter{Limit: 20}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		st := models.MediationStatus(v)
		f.Status = &st
	}
	if v := c.Query("mediator_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.MediatorID = &id
		}
	}
	return f
}

func (h *MediationHandler) Suggestions(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.svc.SuggestMediators(c.Context(), id, middleware.GetActor(c), limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: users})
}

func (h *MediationHandler) SelectMediator(c *fiber.Ctx) error {
	var req dto.SelectMediatorRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.SelectMediator(c.Context(), id, a, uuid.MustParse(req.MediatorID))
	})(c)
}

func (h *MediationHandler) AcceptAssignment(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.AcceptAssignment(c.Context(), id, a)
	})(c)
}

func (h *MediationHandler) RejectAssignment(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.RejectAssignment(c.Context(), id, a, req.Reason)
	})(c)
}

func (h *MediationHandler) SellerReady(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.ConfirmSellerReady(c.Context(), id, a)
	})(c)
}

func (h *MediationHandler) BuyerReady(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.ConfirmBuyerReady(c.Context(), id, a)
	})(c)
}

func (h *MediationHandler) OpenDispute(c *fiber.Ctx) error {
	var req dto.OpenDisputeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.OpenDispute(c.Context(), id, a, req.Reason)
	})(c)
}

func (h *MediationHandler) ConfirmReceipt(c *fiber.Ctx) error {
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.ConfirmReceipt(c.Context(), id, a)
	})(c)
}

func (h *MediationHandler) BuyerCancel(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.CancelByBuyer(c.Context(), id, a, req.Reason)
	})(c)
}

func (h *MediationHandler) SellerCancel(c *fiber.Ctx) error {
	var req dto.ReasonRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.run(func(c *fiber.Ctx, id uuid.UUID, a models.Actor) (*models.MediationRequest, error) {
		return h.svc.CancelBySeller(c.Context(), id, a, req.Reason)
	})(c)
}
