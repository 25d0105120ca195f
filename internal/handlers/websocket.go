package handlers

import (
  "context"
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "github.com/gorilla/websocket"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/requestdata"
  "github.com/smartchat-org/smartchat-backend/internal/services"
  "github.com/smartchat-org/smartchat-backend/internal/socket"
)

var upgrader = websocket.Upgrader{
  CheckOrigin: func(r *http.Request) bool {
    return true
  },
}

// AgentWsHandler connects an authenticated agent to the dashboard feed. Every
// agent gets the agents channel; chat channels are picked up over the socket
// with subscribe messages as threads are opened.
func AgentWsHandler(hub *socket.Hub, log *logger.Logger) gin.HandlerFunc {
  return func(c *gin.Context) {
    rd := requestdata.GetRequestData(c.Request.Context())
    if rd == nil || rd.UserID == uuid.Nil {
      c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
      return
    }
    conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
      log.Warn("Failed to upgrade to websocket", "error", err)
      return
    }
    ctx, cancel := context.WithCancel(context.Background())
    client := socket.NewClient(conn, hub, cancel, log)
    hub.Subscribe(client, []string{socket.AgentsChannel, "user:" + rd.UserID.String()})

    go client.WriteLoop(ctx)
    go client.ReadLoop(ctx)
  }
}

// GuestWsHandler connects an anonymous guest to their own chat channel only.
// The guest proves nothing beyond knowing their identifier, which is the same
// trust model as the REST surface.
func GuestWsHandler(hub *socket.Hub, chatService services.ChatService, log *logger.Logger) gin.HandlerFunc {
  return func(c *gin.Context) {
    guestIdentifier := c.Query("guest_identifier")
    if guestIdentifier == "" {
      c.JSON(http.StatusBadRequest, gin.H{"error": "guest_identifier is required"})
      return
    }
    chat, err := chatService.GetOrCreateChat(c.Request.Context(), guestIdentifier)
    if err != nil {
      c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open chat"})
      return
    }
    conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
      log.Warn("Failed to upgrade to websocket", "error", err)
      return
    }
    ctx, cancel := context.WithCancel(context.Background())
    client := socket.NewClient(conn, hub, cancel, log)
    hub.Subscribe(client, []string{socket.ChatChannel(chat.ID)})

    go client.WriteLoop(ctx)
    go client.ReadLoop(ctx)
  }
}
