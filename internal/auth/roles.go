package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/domain"
	apperrors "github.com/spec-kit/locate-service/pkg/util/errorutil"
)

// RequireRole ensures the principal has one of the allowed roles. ADMIN is
// always allowed.
func RequireRole(allowed ...domain.UserRole) fiber.Handler {
	allowedSet := make(map[domain.UserRole]struct{}, len(allowed)+1)
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}
	allowedSet[domain.RoleAdmin] = struct{}{}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
