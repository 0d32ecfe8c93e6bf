package handler

import (
	"storefront-engine/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func paramID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

func queryID(c *fiber.Ctx, name string) *uuid.UUID {
	id, err := uuid.Parse(c.Query(name))
	if err != nil {
		return nil
	}
	return &id
}

// page reads limit/offset with limit clamped to 1..100.
func page(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func userID(c *fiber.Ctx) uuid.UUID {
	return middleware.UserID(c)
}

func actor(c *fiber.Ctx) string {
	return middleware.Actor(c)
}
