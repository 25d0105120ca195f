package handlers

import (
  "errors"
  "net/http"
  "strconv"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/requestdata"
  "github.com/smartchat-org/smartchat-backend/internal/services"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

// AgentHandler is the authenticated dashboard surface: listing chats, reading
// threads, posting replies and taking or releasing ownership.
type AgentHandler struct {
  log           *logger.Logger
  chatService   services.ChatService
  uploadService services.UploadService
}

func NewAgentHandler(log *logger.Logger, chatService services.ChatService, uploadService services.UploadService) *AgentHandler {
  return &AgentHandler{
    log:           log.With("handler", "AgentHandler"),
    chatService:   chatService,
    uploadService: uploadService,
  }
}

func (ah *AgentHandler) ListChats(c *gin.Context) {
  filters := repos.ChatListFilters{
    Search:    strings.TrimSpace(c.Query("search")),
    SortBy:    c.Query("sort_by"),
    SortOrder: c.Query("sort_order"),
    Limit:     parseIntQuery(c, "limit", 50, 200),
    Offset:    parseIntQuery(c, "offset", 0, 1<<30),
  }
  switch c.Query("assigned") {
  case "me":
    rd := requestdata.GetRequestData(c.Request.Context())
    if rd != nil {
      filters.AgentID = &rd.UserID
    }
  case "none":
    filters.Unassigned = true
  }
  if raw := c.Query("auto_reply_enabled"); raw != "" {
    enabled := raw == "true"
    filters.AutoReplyEnabled = &enabled
  }
  chats, err := ah.chatService.ListChats(c.Request.Context(), filters)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (ah *AgentHandler) GetChat(c *gin.Context) {
  chatID, ok := parseChatID(c)
  if !ok {
    return
  }
  chat, err := ah.chatService.GetChatByID(c.Request.Context(), chatID)
  if err != nil {
    respondChatError(c, err)
    return
  }
  limit := parseIntQuery(c, "limit", 50, 200)
  var beforeID *uuid.UUID
  if raw := c.Query("before_id"); raw != "" {
    parsed, pErr := uuid.Parse(raw)
    if pErr != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
      return
    }
    beforeID = &parsed
  }
  messages, err := ah.chatService.ListMessages(c.Request.Context(), chatID, beforeID, limit)
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

func (ah *AgentHandler) PostMessage(c *gin.Context) {
  chatID, ok := parseChatID(c)
  if !ok {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
    return
  }
  content := strings.TrimSpace(c.PostForm("content"))

  var attachment *types.Attachment
  fileHeader, fErr := c.FormFile("attachment")
  if fErr == nil && fileHeader != nil {
    stored, err := ah.uploadService.StoreAttachment(c.Request.Context(), chatID, fileHeader)
    if err != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
      return
    }
    attachment = stored
  }
  if content == "" && attachment == nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "message must have content or an attachment"})
    return
  }

  msg, err := ah.chatService.AddAgentMessage(c.Request.Context(), chatID, rd.UserID, content, attachment)
  if err != nil {
    respondChatError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Assign puts the calling agent (or an admin-chosen one) in charge of the
// chat and silences the bot.
func (ah *AgentHandler) Assign(c *gin.Context) {
  chatID, ok := parseChatID(c)
  if !ok {
    return
  }
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
    return
  }
  agentID := rd.UserID
  var req struct {
    AgentID string `json:"agent_id,omitempty"`
  }
  if err := c.ShouldBindJSON(&req); err == nil && req.AgentID != "" {
    if rd.UserType != types.UserTypeAdmin {
      c.JSON(http.StatusForbidden, gin.H{"error": "only admins can assign other agents"})
      return
    }
    parsed, pErr := uuid.Parse(req.AgentID)
    if pErr != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agent_id"})
      return
    }
    agentID = parsed
  }
  chat, err := ah.chatService.AssignAgent(c.Request.Context(), chatID, agentID)
  if err != nil {
    respondChatError(c, err)
    return
  }
  c.JSON(http.StatusOK, chat)
}

func (ah *AgentHandler) Release(c *gin.Context) {
  chatID, ok := parseChatID(c)
  if !ok {
    return
  }
  chat, err := ah.chatService.ReleaseAgent(c.Request.Context(), chatID)
  if err != nil {
    respondChatError(c, err)
    return
  }
  c.JSON(http.StatusOK, chat)
}

func parseChatID(c *gin.Context) (uuid.UUID, bool) {
  chatID, err := uuid.Parse(c.Param("chatID"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
    return uuid.Nil, false
  }
  return chatID, true
}

func parseIntQuery(c *gin.Context, name string, fallback, max int) int {
  raw := c.Query(name)
  if raw == "" {
    return fallback
  }
  parsed, err := strconv.Atoi(raw)
  if err != nil || parsed < 0 || parsed > max {
    return fallback
  }
  return parsed
}

func respondChatError(c *gin.Context, err error) {
  if errors.Is(err, gorm.ErrRecordNotFound) {
    c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
    return
  }
  c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
