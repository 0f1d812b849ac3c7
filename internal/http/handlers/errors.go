package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/middleware"
	"github.com/mediation-escrow/backend/internal/services"
	"go.uber.org/zap"
)

// writeError maps the service error taxonomy onto HTTP. Consistency details stay in
// the log; the caller only learns the request could not complete.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	var (
		ve *services.ValidationError
		fe *services.InsufficientFundsError
		ce *services.ConsistencyError
		xe *services.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		status := fiber.StatusBadRequest
		switch ve.Kind {
		case services.KindForbidden:
			status = fiber.StatusForbidden
		case services.KindNotFound:
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(dto.ErrorResponse{Error: ve.Reason, RequestID: reqID})
	case errors.As(err, &fe):
		return c.Status(fiber.StatusPaymentRequired).JSON(dto.ErrorResponse{Error: "insufficient balance for escrow", RequestID: reqID})
	case errors.As(err, &xe):
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "temporarily unavailable, please retry", RequestID: reqID})
	case errors.As(err, &ce):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "could not complete the request", RequestID: reqID})
	}
	log.Error("unhandled error", zap.String("request_id", reqID), zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error", RequestID: reqID})
}

// ErrorHandler renders errors returned from handlers, including *fiber.Error from
// bind and paramID, in the API's error envelope.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			reqID, _ := c.Locals(middleware.CtxRequestID).(string)
			return c.Status(fe.Code).JSON(dto.ErrorResponse{Error: fe.Message, RequestID: reqID})
		}
		return writeError(c, log, err)
	}
}

// bind parses the JSON body into req and runs its validate tags.
func bind(c *fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := dto.Validate(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, strings.Join(dto.ValidationMessages(err), "; "))
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
