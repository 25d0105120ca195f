package repos

import (
  "context"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

// ChatListFilters narrows and orders the agent-dashboard chat listing.
type ChatListFilters struct {
  AgentID          *uuid.UUID
  Unassigned       bool
  AutoReplyEnabled *bool
  Search           string
  SortBy           string
  SortOrder        string
  Limit            int
  Offset           int
}

type ChatRepo interface {
  Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error)
  GetByID(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.Chat, error)
  GetByIDForUpdate(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.Chat, error)
  GetByGuestIdentifier(ctx context.Context, tx *gorm.DB, guestIdentifier string) (*types.Chat, error)
  GetOrCreateByGuestIdentifier(ctx context.Context, tx *gorm.DB, guestIdentifier string) (*types.Chat, error)
  UpdateOwnership(ctx context.Context, tx *gorm.DB, chat *types.Chat) error
  UpdateAutoReplyEnabled(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, enabled bool) error
  TouchActivity(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, at time.Time) error
  UpdateAvatar(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, bucketKey, url string) error
  UpdateGuestProfile(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, guestName, guestEmail string) error
  FindIdleAssigned(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Chat, error)
  List(ctx context.Context, tx *gorm.DB, filters ChatListFilters) ([]*types.Chat, error)
}

type chatRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
  return &chatRepo{
    db:  db,
    log: baseLog.With("repo", "ChatRepo"),
  }
}

func (cr *chatRepo) Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  if err := tx.WithContext(ctx).Create(chat).Error; err != nil {
    cr.log.Error("failed to create chat", "error", err)
    return nil, err
  }
  return chat, nil
}

func (cr *chatRepo) GetByID(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  var chat types.Chat
  if err := tx.WithContext(ctx).
    Preload("Agent").
    Where("id = ?", chatID).
    First(&chat).Error; err != nil {
    return nil, err
  }
  return &chat, nil
}

// GetByIDForUpdate locks the chat row for the duration of the surrounding
// transaction. Ownership mutations and the bot-reply commit step all go
// through this lock so they are mutually exclusive per chat. Sqlite has a
// single writer and rejects FOR UPDATE, so the clause is postgres-only.
func (cr *chatRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  q := tx.WithContext(ctx)
  if tx.Dialector.Name() == "postgres" {
    q = q.Clauses(clause.Locking{Strength: "UPDATE"})
  }
  var chat types.Chat
  if err := q.Where("id = ?", chatID).First(&chat).Error; err != nil {
    return nil, err
  }
  return &chat, nil
}

func (cr *chatRepo) GetByGuestIdentifier(ctx context.Context, tx *gorm.DB, guestIdentifier string) (*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  var chat types.Chat
  if err := tx.WithContext(ctx).
    Preload("Agent").
    Where("guest_identifier = ?", guestIdentifier).
    First(&chat).Error; err != nil {
    return nil, err
  }
  return &chat, nil
}

// GetOrCreateByGuestIdentifier is the insert-or-fetch for first-message races:
// the insert defers to the unique constraint on guest_identifier and the
// follow-up read returns whichever row won.
func (cr *chatRepo) GetOrCreateByGuestIdentifier(ctx context.Context, tx *gorm.DB, guestIdentifier string) (*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  chat := &types.Chat{
    GuestIdentifier:  guestIdentifier,
    AutoReplyEnabled: true,
  }
  if err := tx.WithContext(ctx).
    Clauses(clause.OnConflict{
      Columns:   []clause.Column{{Name: "guest_identifier"}},
      DoNothing: true,
    }).
    Create(chat).Error; err != nil {
    cr.log.Error("failed to insert-or-fetch chat", "guestIdentifier", guestIdentifier, "error", err)
    return nil, err
  }
  return cr.GetByGuestIdentifier(ctx, tx, guestIdentifier)
}

// UpdateOwnership persists agent_id and auto_reply_enabled together. Select is
// explicit so a nil agent_id is written instead of being skipped as a zero
// value.
func (cr *chatRepo) UpdateOwnership(ctx context.Context, tx *gorm.DB, chat *types.Chat) error {
  if tx == nil {
    tx = cr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.Chat{}).
    Where("id = ?", chat.ID).
    Select("agent_id", "auto_reply_enabled").
    Updates(map[string]interface{}{
      "agent_id":           chat.AgentID,
      "auto_reply_enabled": chat.AutoReplyEnabled,
    }).Error; err != nil {
    cr.log.Error("failed to update chat ownership", "chatID", chat.ID, "error", err)
    return err
  }
  return nil
}

func (cr *chatRepo) UpdateAutoReplyEnabled(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, enabled bool) error {
  if tx == nil {
    tx = cr.db
  }
  res := tx.WithContext(ctx).
    Model(&types.Chat{}).
    Where("id = ?", chatID).
    Update("auto_reply_enabled", enabled)
  if res.Error != nil {
    cr.log.Error("failed to update auto_reply_enabled", "chatID", chatID, "error", res.Error)
    return res.Error
  }
  if res.RowsAffected == 0 {
    return gorm.ErrRecordNotFound
  }
  return nil
}

func (cr *chatRepo) TouchActivity(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, at time.Time) error {
  if tx == nil {
    tx = cr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.Chat{}).
    Where("id = ?", chatID).
    Update("last_activity_at", at).Error; err != nil {
    cr.log.Error("failed to touch chat activity", "chatID", chatID, "error", err)
    return err
  }
  return nil
}

func (cr *chatRepo) UpdateAvatar(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, bucketKey, url string) error {
  if tx == nil {
    tx = cr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.Chat{}).
    Where("id = ?", chatID).
    Updates(map[string]interface{}{
      "avatar_bucket_key": bucketKey,
      "avatar_url":        url,
    }).Error; err != nil {
    cr.log.Error("failed to update chat avatar", "chatID", chatID, "error", err)
    return err
  }
  return nil
}

func (cr *chatRepo) UpdateGuestProfile(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, guestName, guestEmail string) error {
  if tx == nil {
    tx = cr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.Chat{}).
    Where("id = ?", chatID).
    Updates(map[string]interface{}{
      "guest_name":  guestName,
      "guest_email": guestEmail,
    }).Error; err != nil {
    cr.log.Error("failed to update guest profile", "chatID", chatID, "error", err)
    return err
  }
  return nil
}

// FindIdleAssigned returns human-owned chats whose last activity predates the
// cutoff. Each chat appears once, so a sweep pass cannot act twice on it.
func (cr *chatRepo) FindIdleAssigned(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  var chats []*types.Chat
  if err := tx.WithContext(ctx).
    Where("agent_id IS NOT NULL").
    Where("last_activity_at < ?", cutoff).
    Find(&chats).Error; err != nil {
    cr.log.Error("failed to find idle assigned chats", "cutoff", cutoff, "error", err)
    return nil, err
  }
  return chats, nil
}

func (cr *chatRepo) List(ctx context.Context, tx *gorm.DB, filters ChatListFilters) ([]*types.Chat, error) {
  if tx == nil {
    tx = cr.db
  }
  q := tx.WithContext(ctx).Model(&types.Chat{}).Preload("Agent")
  if filters.Unassigned {
    q = q.Where("agent_id IS NULL")
  } else if filters.AgentID != nil {
    q = q.Where("agent_id = ?", *filters.AgentID)
  }
  if filters.AutoReplyEnabled != nil {
    q = q.Where("auto_reply_enabled = ?", *filters.AutoReplyEnabled)
  }
  if filters.Search != "" {
    q = q.Where("guest_identifier LIKE ?", "%"+filters.Search+"%")
  }
  sortBy := filters.SortBy
  switch sortBy {
  case "created_at", "last_activity_at":
  default:
    sortBy = "last_activity_at"
  }
  sortOrder := filters.SortOrder
  if sortOrder != "asc" {
    sortOrder = "desc"
  }
  q = q.Order(sortBy + " " + sortOrder)
  if filters.Limit > 0 {
    q = q.Limit(filters.Limit)
  }
  if filters.Offset > 0 {
    q = q.Offset(filters.Offset)
  }
  var chats []*types.Chat
  if err := q.Find(&chats).Error; err != nil {
    cr.log.Error("failed to list chats", "error", err)
    return nil, err
  }
  return chats, nil
}
