package handlers

import (
  "context"
  "errors"
  "net/http"
  "strconv"
  "strings"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/services"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

const autoReplyDispatchTimeout = 90 * time.Second

// GuestHandler is the unauthenticated widget surface: guests open a thread by
// identifier, post messages with optional attachments and page the history.
type GuestHandler struct {
  log              *logger.Logger
  chatService      services.ChatService
  autoReplyService services.AutoReplyService
  uploadService    services.UploadService
}

func NewGuestHandler(
  log *logger.Logger,
  chatService services.ChatService,
  autoReplyService services.AutoReplyService,
  uploadService services.UploadService,
) *GuestHandler {
  return &GuestHandler{
    log:              log.With("handler", "GuestHandler"),
    chatService:      chatService,
    autoReplyService: autoReplyService,
    uploadService:    uploadService,
  }
}

func (gh *GuestHandler) StartChat(c *gin.Context) {
  var req struct {
    GuestIdentifier string `json:"guest_identifier"`
    GuestName       string `json:"guest_name,omitempty"`
    GuestEmail      string `json:"guest_email,omitempty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  if strings.TrimSpace(req.GuestIdentifier) == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "guest_identifier is required"})
    return
  }
  chat, err := gh.chatService.GetOrCreateChat(c.Request.Context(), req.GuestIdentifier)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start chat"})
    return
  }
  if req.GuestName != "" || req.GuestEmail != "" {
    chat, err = gh.chatService.UpdateGuestProfile(c.Request.Context(), chat.ID, req.GuestName, req.GuestEmail)
    if err != nil {
      c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update guest profile"})
      return
    }
  }
  c.JSON(http.StatusOK, chat)
}

// PostMessage accepts multipart form data so an attachment can ride along with
// the text. The auto-reply decision runs asynchronously after the message is
// persisted; the guest gets their own message back immediately.
func (gh *GuestHandler) PostMessage(c *gin.Context) {
  guestIdentifier := strings.TrimSpace(c.PostForm("guest_identifier"))
  content := strings.TrimSpace(c.PostForm("content"))
  if guestIdentifier == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "guest_identifier is required"})
    return
  }

  var attachment *types.Attachment
  fileHeader, fErr := c.FormFile("attachment")
  if fErr == nil && fileHeader != nil {
    chat, err := gh.chatService.GetOrCreateChat(c.Request.Context(), guestIdentifier)
    if err != nil {
      c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open chat"})
      return
    }
    attachment, err = gh.uploadService.StoreAttachment(c.Request.Context(), chat.ID, fileHeader)
    if err != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
      return
    }
  }
  if content == "" && attachment == nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "message must have content or an attachment"})
    return
  }

  chat, msg, err := gh.chatService.AddGuestMessage(c.Request.Context(), guestIdentifier, content, attachment)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
    return
  }

  go gh.dispatchAutoReply(msg)

  c.JSON(http.StatusOK, gin.H{"chat": chat, "message": msg})
}

func (gh *GuestHandler) dispatchAutoReply(msg *types.Message) {
  ctx, cancel := context.WithTimeout(context.Background(), autoReplyDispatchTimeout)
  defer cancel()
  if _, err := gh.autoReplyService.HandleGuestMessage(ctx, msg); err != nil {
    gh.log.Warn("auto-reply dispatch failed", "messageID", msg.ID, "error", err)
  }
}

func (gh *GuestHandler) GetThread(c *gin.Context) {
  guestIdentifier := strings.TrimSpace(c.Query("guest_identifier"))
  if guestIdentifier == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "guest_identifier is required"})
    return
  }
  chat, err := gh.chatService.GetChatByGuestIdentifier(c.Request.Context(), guestIdentifier)
  if err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
      return
    }
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
    return
  }
  messages, err := gh.listMessages(c, chat.ID)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

func (gh *GuestHandler) listMessages(c *gin.Context, chatID uuid.UUID) ([]*types.Message, error) {
  limit := 50
  if raw := c.Query("limit"); raw != "" {
    if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
      limit = parsed
    }
  }
  var beforeID *uuid.UUID
  if raw := c.Query("before_id"); raw != "" {
    parsed, err := uuid.Parse(raw)
    if err != nil {
      return nil, err
    }
    beforeID = &parsed
  }
  return gh.chatService.ListMessages(c.Request.Context(), chatID, beforeID, limit)
}
