package handlers

import (
	"context"
	"strings"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	chatws "github.com/subleasehub/sublease-backend/internal/websocket"
	"github.com/subleasehub/sublease-backend/pkg/utils"
)

const wsTokenKey = "ws_token"

type GatewayHandler struct {
	engine      *chatws.Engine
	authTimeout time.Duration
}

func NewGatewayHandler(engine *chatws.Engine, authTimeout time.Duration) *GatewayHandler {
	return &GatewayHandler{
		engine:      engine,
		authTimeout: authTimeout,
	}
}

// WebSocketAuth only captures the handshake token. Verification happens in
// the engine so a bad token closes the socket rather than failing the upgrade.
func (h *GatewayHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	c.Locals(wsTokenKey, handshakeToken(c))
	return c.Next()
}

func (h *GatewayHandler) HandleWebSocket(conn *websocket.Conn) {
	client := h.engine.NewClient(conn)
	go client.WritePump()

	// The connection is released when this handler returns, so the writer
	// must be finished first.
	defer client.Wait()
	defer h.engine.Disconnect(client)

	token, _ := conn.Locals(wsTokenKey).(string)
	if token == "" {
		received, err := client.AwaitAuthToken(h.authTimeout)
		if err != nil {
			h.engine.Reject(client, "authentication required")
			return
		}
		token = received
	}

	ctx := context.Background()
	if err := h.engine.Connect(ctx, client, token); err != nil {
		h.engine.Reject(client, "invalid or expired token")
		return
	}

	client.ReadPump(ctx, h.engine)
}

func handshakeToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	if token, ok := utils.BearerToken(c.Get("Authorization")); ok {
		return token
	}
	return ""
}
