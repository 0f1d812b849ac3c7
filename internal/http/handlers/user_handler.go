package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/middleware"
	"github.com/mediation-escrow/backend/internal/services"
	"go.uber.org/zap"
)

type UserHandler struct {
	users *services.UserService
	log   *zap.Logger
}

func NewUserHandler(users *services.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// GetMe returns balances and the latest ledger entries of the caller.
func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("entries", "20"))
	acc, err := h.users.Account(c.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: acc})
}
