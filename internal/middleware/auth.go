package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediation-escrow/backend/internal/auth"
	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/http/dto"
	"github.com/mediation-escrow/backend/internal/models"
	"github.com/mediation-escrow/backend/internal/rbac"
	"go.uber.org/zap"
)

const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "missing or malformed bearer token"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid or expired token"})
		}

		role := claims.Role
		if cfg.IsAdmin(claims.UserID) {
			role = models.RoleAdmin
		}
		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxRole, role)

		return c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to ?token= for
// websocket upgrades where browsers cannot set headers.
func bearerToken(c *fiber.Ctx) string {
	if h := c.Get("Authorization"); h != "" {
		tok := strings.TrimPrefix(h, "Bearer ")
		if tok == h {
			return ""
		}
		return tok
	}
	return c.Query("token")
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetActor(c *fiber.Ctx) models.Actor {
	role, _ := c.Locals(CtxRole).(models.Role)
	return models.Actor{UserID: GetUserID(c), Role: role}
}

// AdminMiddleware requires the admin role, from the token or ADMIN_USER_IDS.
func AdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !GetActor(c).IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
		}
		return c.Next()
	}
}

// RequirePermission rejects actors whose role lacks perm.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetActor(c).Role, perm) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "permission denied: " + perm})
		}
		return c.Next()
	}
}
