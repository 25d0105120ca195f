package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

type MessageRepo interface {
  Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error)
  GetByID(ctx context.Context, tx *gorm.DB, messageID uuid.UUID) (*types.Message, error)
  // GetRecentByChatID returns up to limit messages newest-first.
  GetRecentByChatID(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, limit int) ([]*types.Message, error)
  // ListByChatIDBefore pages the thread backwards; a nil beforeID starts at
  // the newest message. Returned newest-first.
  ListByChatIDBefore(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, beforeID *uuid.UUID, limit int) ([]*types.Message, error)
  CountByChatID(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (int64, error)
}

type messageRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
  return &messageRepo{
    db:  db,
    log: baseLog.With("repo", "MessageRepo"),
  }
}

func (mr *messageRepo) Create(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
  if tx == nil {
    tx = mr.db
  }
  if err := msg.Validate(); err != nil {
    mr.log.Error("refusing to create invalid message", "chatID", msg.ChatID, "error", err)
    return nil, err
  }
  if err := tx.WithContext(ctx).Create(msg).Error; err != nil {
    mr.log.Error("failed to create message", "chatID", msg.ChatID, "error", err)
    return nil, err
  }
  return msg, nil
}

func (mr *messageRepo) GetByID(ctx context.Context, tx *gorm.DB, messageID uuid.UUID) (*types.Message, error) {
  if tx == nil {
    tx = mr.db
  }
  var msg types.Message
  if err := tx.WithContext(ctx).
    Preload("User").
    Where("id = ?", messageID).
    First(&msg).Error; err != nil {
    return nil, err
  }
  return &msg, nil
}

func (mr *messageRepo) GetRecentByChatID(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, limit int) ([]*types.Message, error) {
  if tx == nil {
    tx = mr.db
  }
  var msgs []*types.Message
  if err := tx.WithContext(ctx).
    Preload("User").
    Where("chat_id = ?", chatID).
    Order("created_at DESC, seq DESC").
    Limit(limit).
    Find(&msgs).Error; err != nil {
    mr.log.Error("failed to get recent messages by chatID", "chatID", chatID, "error", err)
    return nil, err
  }
  return msgs, nil
}

func (mr *messageRepo) ListByChatIDBefore(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, beforeID *uuid.UUID, limit int) ([]*types.Message, error) {
  if tx == nil {
    tx = mr.db
  }
  q := tx.WithContext(ctx).
    Preload("User").
    Where("chat_id = ?", chatID)
  if beforeID != nil {
    var anchor types.Message
    if err := tx.WithContext(ctx).Where("id = ?", *beforeID).First(&anchor).Error; err != nil {
      return nil, err
    }
    q = q.Where("created_at < ? OR (created_at = ? AND seq < ?)",
      anchor.CreatedAt, anchor.CreatedAt, anchor.Seq)
  }
  var msgs []*types.Message
  if err := q.Order("created_at DESC, seq DESC").Limit(limit).Find(&msgs).Error; err != nil {
    mr.log.Error("failed to page messages by chatID", "chatID", chatID, "error", err)
    return nil, err
  }
  return msgs, nil
}

func (mr *messageRepo) CountByChatID(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (int64, error) {
  if tx == nil {
    tx = mr.db
  }
  var count int64
  if err := tx.WithContext(ctx).
    Model(&types.Message{}).
    Where("chat_id = ?", chatID).
    Count(&count).Error; err != nil {
    mr.log.Error("failed to count messages by chatID", "chatID", chatID, "error", err)
    return 0, err
  }
  return count, nil
}
