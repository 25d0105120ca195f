package repos

import (
  "context"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

type AutoReplyRuleRepo interface {
  Create(ctx context.Context, tx *gorm.DB, rule *types.AutoReplyRule) (*types.AutoReplyRule, error)
  GetByID(ctx context.Context, tx *gorm.DB, ruleID uuid.UUID) (*types.AutoReplyRule, error)
  // GetActive returns active rules visible to a chat: chat-scoped rules for
  // chatID plus global rules. A nil chatID returns global rules only.
  GetActive(ctx context.Context, tx *gorm.DB, chatID *uuid.UUID) ([]*types.AutoReplyRule, error)
  List(ctx context.Context, tx *gorm.DB) ([]*types.AutoReplyRule, error)
  Update(ctx context.Context, tx *gorm.DB, rule *types.AutoReplyRule) (*types.AutoReplyRule, error)
  Delete(ctx context.Context, tx *gorm.DB, ruleID uuid.UUID) error
}

type autoReplyRuleRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAutoReplyRuleRepo(db *gorm.DB, baseLog *logger.Logger) AutoReplyRuleRepo {
  return &autoReplyRuleRepo{
    db:  db,
    log: baseLog.With("repo", "AutoReplyRuleRepo"),
  }
}

func (rr *autoReplyRuleRepo) Create(ctx context.Context, tx *gorm.DB, rule *types.AutoReplyRule) (*types.AutoReplyRule, error) {
  if tx == nil {
    tx = rr.db
  }
  if err := tx.WithContext(ctx).Create(rule).Error; err != nil {
    rr.log.Error("failed to create auto-reply rule", "keyword", rule.Keyword, "error", err)
    return nil, err
  }
  return rule, nil
}

func (rr *autoReplyRuleRepo) GetByID(ctx context.Context, tx *gorm.DB, ruleID uuid.UUID) (*types.AutoReplyRule, error) {
  if tx == nil {
    tx = rr.db
  }
  var rule types.AutoReplyRule
  if err := tx.WithContext(ctx).
    Where("id = ?", ruleID).
    First(&rule).Error; err != nil {
    return nil, err
  }
  return &rule, nil
}

func (rr *autoReplyRuleRepo) GetActive(ctx context.Context, tx *gorm.DB, chatID *uuid.UUID) ([]*types.AutoReplyRule, error) {
  if tx == nil {
    tx = rr.db
  }
  q := tx.WithContext(ctx).Where("is_active = ?", true)
  if chatID != nil {
    q = q.Where("chat_id = ? OR chat_id IS NULL", *chatID)
  } else {
    q = q.Where("chat_id IS NULL")
  }
  var rules []*types.AutoReplyRule
  if err := q.Order("created_at ASC").Find(&rules).Error; err != nil {
    rr.log.Error("failed to get active auto-reply rules", "error", err)
    return nil, err
  }
  return rules, nil
}

func (rr *autoReplyRuleRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.AutoReplyRule, error) {
  if tx == nil {
    tx = rr.db
  }
  var rules []*types.AutoReplyRule
  if err := tx.WithContext(ctx).
    Order("created_at ASC").
    Find(&rules).Error; err != nil {
    rr.log.Error("failed to list auto-reply rules", "error", err)
    return nil, err
  }
  return rules, nil
}

func (rr *autoReplyRuleRepo) Update(ctx context.Context, tx *gorm.DB, rule *types.AutoReplyRule) (*types.AutoReplyRule, error) {
  if tx == nil {
    tx = rr.db
  }
  if err := tx.WithContext(ctx).
    Model(&types.AutoReplyRule{}).
    Where("id = ?", rule.ID).
    Updates(map[string]interface{}{
      "keyword":       rule.Keyword,
      "reply_message": rule.ReplyMessage,
      "is_active":     rule.IsActive,
      "chat_id":       rule.ChatID,
    }).Error; err != nil {
    rr.log.Error("failed to update auto-reply rule", "ruleID", rule.ID, "error", err)
    return nil, err
  }
  return rr.GetByID(ctx, tx, rule.ID)
}

func (rr *autoReplyRuleRepo) Delete(ctx context.Context, tx *gorm.DB, ruleID uuid.UUID) error {
  if tx == nil {
    tx = rr.db
  }
  res := tx.WithContext(ctx).Delete(&types.AutoReplyRule{}, "id = ?", ruleID)
  if res.Error != nil {
    rr.log.Error("failed to delete auto-reply rule", "ruleID", ruleID, "error", res.Error)
    return res.Error
  }
  if res.RowsAffected == 0 {
    return gorm.ErrRecordNotFound
  }
  return nil
}
