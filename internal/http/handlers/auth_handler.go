package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/auth"
	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AuthHandler issues tokens in development. Production tokens come from the
// identity service and share JWT_SECRET.
type AuthHandler struct {
	users *services.UserService
	cfg   *config.Config
	log   *zap.Logger
}

func NewAuthHandler(users *services.UserService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, cfg: cfg, log: log}
}

func (h *AuthHandler) DevToken(c *fiber.Ctx) error {
	var req dto.DevTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	id := uuid.MustParse(req.UserID)
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, id, models.Role(req.Role), h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.AuthResponse{Token: token})
}

func (h *AuthHandler) DevCreateUser(c *fiber.Ctx) error {
	var req dto.DevUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	balance := decimal.Zero
	if req.Balance != "" {
		balance = decimal.RequireFromString(req.Balance)
	}
	u, err := h.users.Register(c.Context(), services.NewUserInput{
		Username:            req.Username,
		Role:                models.Role(req.Role),
		IsMediatorQualified: req.IsMediatorQualified,
		Balance:             balance,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, u.ID, u.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{Token: token, User: u})
}
