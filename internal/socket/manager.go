package socket

import (
  "context"
  "sync"

  "github.com/google/uuid"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
)

// Message is the wire unit delivered to subscribers. Event names what
// happened ("message_sent", "agent_assigned", ...), Payload carries the
// entity. Clients suppress duplicates by message id, so at-least-once
// delivery is fine here.
type Message struct {
  Channel string      `json:"channel"`
  Event   string      `json:"event"`
  Payload interface{} `json:"payload"`
}

// ChatChannel is the per-thread channel guests and the owning agent join.
func ChatChannel(chatID uuid.UUID) string {
  return "chat:" + chatID.String()
}

// AgentsChannel carries dashboard-wide events to every connected agent.
const AgentsChannel = "agents"

type Hub struct {
  log      *logger.Logger
  mu       sync.RWMutex
  channels map[string]map[uuid.UUID]*Client

  redisPubSub *RedisPubSub
}

func NewHub(logger *logger.Logger) *Hub {
  return &Hub{
    log:      logger,
    channels: make(map[string]map[uuid.UUID]*Client),
  }
}

func (h *Hub) SetRedisPubSub(rp *RedisPubSub) {
  h.redisPubSub = rp
}

func (h *Hub) Subscribe(client *Client, channels []string) {
  h.mu.Lock()
  defer h.mu.Unlock()

  for _, ch := range channels {
    if h.channels[ch] == nil {
      h.channels[ch] = make(map[uuid.UUID]*Client)
    }
    h.channels[ch][client.ID] = client
  }
  h.log.Debug("Client subscribed", "client", client.ID, "channels", channels)
}

func (h *Hub) Unsubscribe(client *Client) {
  h.mu.Lock()
  defer h.mu.Unlock()

  for ch, clientsMap := range h.channels {
    if _, ok := clientsMap[client.ID]; ok {
      delete(clientsMap, client.ID)
      if len(clientsMap) == 0 {
        delete(h.channels, ch)
      }
    }
  }
  h.log.Debug("Client unsubscribed from all channels", "client", client.ID)
}

func (h *Hub) UnsubscribeFromChannel(client *Client, channel string) {
  h.mu.Lock()
  defer h.mu.Unlock()
  if clientsMap, ok := h.channels[channel]; ok {
    delete(clientsMap, client.ID)
    if len(clientsMap) == 0 {
      delete(h.channels, channel)
    }
  }
}

func (h *Hub) localBroadcast(msg Message) {
  h.mu.RLock()
  defer h.mu.RUnlock()

  clientsMap, ok := h.channels[msg.Channel]
  if !ok {
    return
  }
  for _, client := range clientsMap {
    select {
    case client.Outbound <- msg:
    default:
      h.log.Warn("Dropping message to client; outbound buffer full", "client", client.ID, "channel", msg.Channel)
    }
  }
}

// BroadcastGlobal fans a message out to local subscribers and, when redis
// pubsub is wired, to every other node.
func (h *Hub) BroadcastGlobal(ctx context.Context, msg Message) {
  h.localBroadcast(msg)

  if h.redisPubSub != nil {
    if err := h.redisPubSub.Publish(msg); err != nil {
      h.log.Warn("Failed to publish to Redis", "error", err)
    }
  }
}
