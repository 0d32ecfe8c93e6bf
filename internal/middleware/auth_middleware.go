package middleware

import (
	"strings"

	"storefront-engine/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Locals keys set by RequireAuth.
const (
	LocalUserID         = "user_id"
	LocalUserEmail      = "user_email"
	LocalUserName       = "user_name"
	LocalUserRole       = "user_role"
	LocalUserPrivileges = "user_privileges"
)

// RequireAuth validates the bearer token minted by the auth service and sets user info in context.
// The websocket upgrade cannot send headers from a browser, so a token query parameter is accepted too.
func RequireAuth(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")
		if authHeader := c.Get("Authorization"); authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil || claims.UserID == uuid.Nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals(LocalUserID, claims.UserID.String())
		c.Locals(LocalUserEmail, claims.Email)
		c.Locals(LocalUserName, claims.Name)
		c.Locals(LocalUserRole, claims.RoleCode)
		c.Locals(LocalUserPrivileges, claims.Privileges)

		return c.Next()
	}
}

// UserID returns the authenticated user, or uuid.Nil outside RequireAuth.
func UserID(c *fiber.Ctx) uuid.UUID {
	s, _ := c.Locals(LocalUserID).(string)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Actor is the audit label written to performed_by / updated_by columns.
func Actor(c *fiber.Ctx) string {
	if email, _ := c.Locals(LocalUserEmail).(string); email != "" {
		return email
	}
	s, _ := c.Locals(LocalUserID).(string)
	return s
}

// HasPrivilege reports whether the authenticated user holds code.
func HasPrivilege(c *fiber.Ctx, code string) bool {
	privileges, _ := c.Locals(LocalUserPrivileges).([]string)
	for _, p := range privileges {
		if p == code {
			return true
		}
	}
	return false
}

// RequirePrivilege checks if the authenticated user has the required privilege
func RequirePrivilege(requiredPrivilege string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals(LocalUserPrivileges).([]string); !ok {
			return c.Status(403).JSON(fiber.Map{"error": "No privileges found"})
		}
		if HasPrivilege(c, requiredPrivilege) {
			return c.Next()
		}
		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires '" + requiredPrivilege + "' privilege",
		})
	}
}

// RequireAnyPrivilege checks if the user has at least one of the specified privileges
func RequireAnyPrivilege(requiredPrivileges ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals(LocalUserPrivileges).([]string); !ok {
			return c.Status(403).JSON(fiber.Map{"error": "No privileges found"})
		}
		for _, p := range requiredPrivileges {
			if HasPrivilege(c, p) {
				return c.Next()
			}
		}
		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires one of " + strings.Join(requiredPrivileges, ", ") + " privileges",
		})
	}
}
