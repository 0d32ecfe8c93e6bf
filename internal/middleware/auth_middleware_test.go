package middleware_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"storefront-engine/internal/middleware"
	"storefront-engine/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(tokens *jwt.Manager) *fiber.App {
	app := fiber.New()
	app.Use(middleware.RequireAuth(tokens))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": middleware.UserID(c).String(), "actor": middleware.Actor(c)})
	})
	app.Get("/orders", middleware.RequirePrivilege("order:view"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/either", middleware.RequireAnyPrivilege("coupon:manage", "order:view"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func call(t *testing.T, app *fiber.App, path, auth string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRequireAuth(t *testing.T) {
	tokens := jwt.NewManager("secret", "storefront-auth", time.Hour)
	app := newApp(tokens)

	tok, err := tokens.GenerateToken(uuid.New(), "staff@test", "Staff", "STAFF", []string{"order:view"})
	require.NoError(t, err)

	other := jwt.NewManager("another-secret", "storefront-auth", time.Hour)
	forged, err := other.GenerateToken(uuid.New(), "x@test", "X", "ADMIN", []string{"order:view"})
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		auth string
		want int
	}{
		{"missing token", "/me", "", fiber.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + tok, fiber.StatusUnauthorized},
		{"malformed header", "/me", "Bearer", fiber.StatusUnauthorized},
		{"foreign signature", "/me", "Bearer " + forged, fiber.StatusUnauthorized},
		{"valid header", "/me", "Bearer " + tok, fiber.StatusOK},
		{"query token", "/me?token=" + tok, "", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, app, tt.path, tt.auth))
		})
	}
}

func TestRequirePrivilege(t *testing.T) {
	tokens := jwt.NewManager("secret", "storefront-auth", time.Hour)
	app := newApp(tokens)

	viewer, err := tokens.GenerateToken(uuid.New(), "staff@test", "Staff", "STAFF", []string{"order:view"})
	require.NoError(t, err)
	customer, err := tokens.GenerateToken(uuid.New(), "c@test", "C", "CUSTOMER", nil)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, call(t, app, "/orders", "Bearer "+viewer))
	assert.Equal(t, fiber.StatusOK, call(t, app, "/either", "Bearer "+viewer))
	assert.Equal(t, fiber.StatusForbidden, call(t, app, "/orders", "Bearer "+customer))
	assert.Equal(t, fiber.StatusForbidden, call(t, app, "/either", "Bearer "+customer))
}
