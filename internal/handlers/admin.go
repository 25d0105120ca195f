package handlers

import (
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/services"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

// AdminHandler owns the admin-only controls: the per-chat auto-reply flag and
// the canned-response rule set.
type AdminHandler struct {
  log         *logger.Logger
  chatService services.ChatService
  ruleService services.RuleService
  authService services.AuthService
}

func NewAdminHandler(
  log *logger.Logger,
  chatService services.ChatService,
  ruleService services.RuleService,
  authService services.AuthService,
) *AdminHandler {
  return &AdminHandler{
    log:         log.With("handler", "AdminHandler"),
    chatService: chatService,
    ruleService: ruleService,
    authService: authService,
  }
}

func (ah *AdminHandler) SetAutoReply(c *gin.Context) {
  chatID, ok := parseChatID(c)
  if !ok {
    return
  }
  var req struct {
    Enabled *bool `json:"enabled"`
  }
  if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
    return
  }
  chat, err := ah.chatService.SetAutoReplyEnabled(c.Request.Context(), chatID, *req.Enabled)
  if err != nil {
    respondChatError(c, err)
    return
  }
  c.JSON(http.StatusOK, chat)
}

func (ah *AdminHandler) CreateRule(c *gin.Context) {
  rule, ok := bindRule(c)
  if !ok {
    return
  }
  created, err := ah.ruleService.CreateRule(c.Request.Context(), rule)
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  c.JSON(http.StatusOK, created)
}

func (ah *AdminHandler) ListRules(c *gin.Context) {
  rules, err := ah.ruleService.ListRules(c.Request.Context())
  if err != nil {
    c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rules"})
    return
  }
  c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (ah *AdminHandler) UpdateRule(c *gin.Context) {
  ruleID, err := uuid.Parse(c.Param("ruleID"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
    return
  }
  rule, ok := bindRule(c)
  if !ok {
    return
  }
  rule.ID = ruleID
  updated, err := ah.ruleService.UpdateRule(c.Request.Context(), rule)
  if err != nil {
    respondChatError(c, err)
    return
  }
  c.JSON(http.StatusOK, updated)
}

func (ah *AdminHandler) DeleteRule(c *gin.Context) {
  ruleID, err := uuid.Parse(c.Param("ruleID"))
  if err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
    return
  }
  if err := ah.ruleService.DeleteRule(c.Request.Context(), ruleID); err != nil {
    respondChatError(c, err)
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true})
}

// RegisterAgent lets an admin create agent and admin accounts; there is no
// open signup.
func (ah *AdminHandler) RegisterAgent(c *gin.Context) {
  var req struct {
    Email       string `json:"email"`
    PhoneNumber string `json:"phone_number,omitempty"`
    FirstName   string `json:"first_name"`
    LastName    string `json:"last_name"`
    Password    string `json:"password"`
    UserType    string `json:"user_type,omitempty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  user := types.User{
    Email:     req.Email,
    FirstName: req.FirstName,
    LastName:  req.LastName,
    UserType:  req.UserType,
  }
  if req.PhoneNumber != "" {
    user.PhoneNumber = &req.PhoneNumber
  }
  if err := ah.authService.RegisterUser(c.Request.Context(), &user, req.Password); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    return
  }
  c.JSON(http.StatusOK, gin.H{"success": true, "user_id": user.ID})
}

func bindRule(c *gin.Context) (*types.AutoReplyRule, bool) {
  var req struct {
    ChatID       string `json:"chat_id,omitempty"`
    Keyword      string `json:"keyword"`
    ReplyMessage string `json:"reply_message"`
    IsActive     *bool  `json:"is_active,omitempty"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return nil, false
  }
  if strings.TrimSpace(req.Keyword) == "" || strings.TrimSpace(req.ReplyMessage) == "" {
    c.JSON(http.StatusBadRequest, gin.H{"error": "keyword and reply_message are required"})
    return nil, false
  }
  rule := &types.AutoReplyRule{
    Keyword:      strings.TrimSpace(req.Keyword),
    ReplyMessage: req.ReplyMessage,
    IsActive:     true,
  }
  if req.IsActive != nil {
    rule.IsActive = *req.IsActive
  }
  if req.ChatID != "" {
    chatID, err := uuid.Parse(req.ChatID)
    if err != nil {
      c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat_id"})
      return nil, false
    }
    rule.ChatID = &chatID
  }
  return rule, true
}
