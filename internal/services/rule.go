package services

import (
  "context"
  "strings"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

// RuleService manages keyword-triggered canned responses. Rules are consulted
// before the generative fallback; a hit short-circuits the completion call.
type RuleService interface {
  // MatchReply returns the canned reply for the first active rule whose
  // keyword occurs in content, or "" when nothing matches. Chat-scoped rules
  // win over global ones.
  MatchReply(ctx context.Context, chatID uuid.UUID, content string) (string, error)
  CreateRule(ctx context.Context, rule *types.AutoReplyRule) (*types.AutoReplyRule, error)
  GetRule(ctx context.Context, ruleID uuid.UUID) (*types.AutoReplyRule, error)
  ListRules(ctx context.Context) ([]*types.AutoReplyRule, error)
  UpdateRule(ctx context.Context, rule *types.AutoReplyRule) (*types.AutoReplyRule, error)
  DeleteRule(ctx context.Context, ruleID uuid.UUID) error
}

type ruleService struct {
  db       *gorm.DB
  log      *logger.Logger
  ruleRepo repos.AutoReplyRuleRepo
}

func NewRuleService(db *gorm.DB, log *logger.Logger, ruleRepo repos.AutoReplyRuleRepo) RuleService {
  return &ruleService{
    db:       db,
    log:      log.With("service", "RuleService"),
    ruleRepo: ruleRepo,
  }
}

func (rs *ruleService) MatchReply(ctx context.Context, chatID uuid.UUID, content string) (string, error) {
  rules, err := rs.ruleRepo.GetActive(ctx, nil, &chatID)
  if err != nil {
    return "", err
  }
  if len(rules) == 0 {
    return "", nil
  }
  haystack := strings.ToLower(content)

  var globalHit *types.AutoReplyRule
  for _, rule := range rules {
    keyword := strings.ToLower(strings.TrimSpace(rule.Keyword))
    if keyword == "" || !strings.Contains(haystack, keyword) {
      continue
    }
    if rule.ChatID != nil {
      rs.log.Debug("chat-scoped auto-reply rule matched", "chatID", chatID, "keyword", rule.Keyword)
      return rule.ReplyMessage, nil
    }
    if globalHit == nil {
      globalHit = rule
    }
  }
  if globalHit != nil {
    rs.log.Debug("global auto-reply rule matched", "chatID", chatID, "keyword", globalHit.Keyword)
    return globalHit.ReplyMessage, nil
  }
  return "", nil
}

func (rs *ruleService) CreateRule(ctx context.Context, rule *types.AutoReplyRule) (*types.AutoReplyRule, error) {
  return rs.ruleRepo.Create(ctx, nil, rule)
}

func (rs *ruleService) GetRule(ctx context.Context, ruleID uuid.UUID) (*types.AutoReplyRule, error) {
  return rs.ruleRepo.GetByID(ctx, nil, ruleID)
}

func (rs *ruleService) ListRules(ctx context.Context) ([]*types.AutoReplyRule, error) {
  return rs.ruleRepo.List(ctx, nil)
}

func (rs *ruleService) UpdateRule(ctx context.Context, rule *types.AutoReplyRule) (*types.AutoReplyRule, error) {
  return rs.ruleRepo.Update(ctx, nil, rule)
}

func (rs *ruleService) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
  return rs.ruleRepo.Delete(ctx, nil, ruleID)
}
