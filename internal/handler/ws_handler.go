package handler

import (
	"storefront-engine/internal/middleware"
	"storefront-engine/internal/model"
	"storefront-engine/internal/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Upgrade rejects plain HTTP on the websocket route and carries identity into the connection.
func Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.SendStatus(fiber.StatusUpgradeRequired)
	}
	c.Locals("ws_staff", middleware.HasPrivilege(c, model.PrivOrderView))
	return c.Next()
}

// Stream registers the connection with the hub until the client goes away.
func Stream(hub *ws.Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		uid, _ := c.Locals(middleware.LocalUserID).(string)
		staff, _ := c.Locals("ws_staff").(bool)
		if !hub.Join(&ws.Client{Conn: c, UserID: uid, Staff: staff}) {
			return
		}
		defer hub.Leave(c)

		for {
			// Keep alive loop
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	})
}
