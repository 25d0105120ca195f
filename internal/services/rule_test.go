package services

import (
  "context"
  "testing"

  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/testutil"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

func newRuleFixture(t *testing.T) (RuleService, repos.AutoReplyRuleRepo, repos.ChatRepo) {
  t.Helper()
  db := testutil.OpenTestDB(t)
  log := testutil.NewTestLogger(t)
  ruleRepo := repos.NewAutoReplyRuleRepo(db, log)
  chatRepo := repos.NewChatRepo(db, log)
  return NewRuleService(db, log, ruleRepo), ruleRepo, chatRepo
}

func TestMatchReplyCaseInsensitive(t *testing.T) {
  svc, ruleRepo, chatRepo := newRuleFixture(t)
  ctx := context.Background()

  chat, err := chatRepo.GetOrCreateByGuestIdentifier(ctx, nil, "guest-match")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  if _, err := ruleRepo.Create(ctx, nil, &types.AutoReplyRule{Keyword: "Refund", ReplyMessage: "Billing will follow up.", IsActive: true}); err != nil {
    t.Fatalf("failed to create rule: %v", err)
  }

  reply, err := svc.MatchReply(ctx, chat.ID, "I want a REFUND now")
  if err != nil {
    t.Fatalf("MatchReply failed: %v", err)
  }
  if reply != "Billing will follow up." {
    t.Fatalf("wrong reply: %q", reply)
  }

  reply, err = svc.MatchReply(ctx, chat.ID, "unrelated question")
  if err != nil {
    t.Fatalf("MatchReply failed: %v", err)
  }
  if reply != "" {
    t.Fatalf("expected no match, got %q", reply)
  }
}

func TestMatchReplyChatScopedWinsOverGlobal(t *testing.T) {
  svc, ruleRepo, chatRepo := newRuleFixture(t)
  ctx := context.Background()

  chat, err := chatRepo.GetOrCreateByGuestIdentifier(ctx, nil, "guest-scoped")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  other, err := chatRepo.GetOrCreateByGuestIdentifier(ctx, nil, "guest-other")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }

  if _, err := ruleRepo.Create(ctx, nil, &types.AutoReplyRule{Keyword: "hours", ReplyMessage: "global hours", IsActive: true}); err != nil {
    t.Fatalf("failed to create global rule: %v", err)
  }
  if _, err := ruleRepo.Create(ctx, nil, &types.AutoReplyRule{ChatID: &chat.ID, Keyword: "hours special", ReplyMessage: "scoped hours", IsActive: true}); err != nil {
    t.Fatalf("failed to create scoped rule: %v", err)
  }

  reply, err := svc.MatchReply(ctx, chat.ID, "what are your hours special today")
  if err != nil {
    t.Fatalf("MatchReply failed: %v", err)
  }
  if reply != "scoped hours" {
    t.Fatalf("chat-scoped rule should win, got %q", reply)
  }

  // The other chat only sees the global rule.
  reply, err = svc.MatchReply(ctx, other.ID, "what are your hours special today")
  if err != nil {
    t.Fatalf("MatchReply failed: %v", err)
  }
  if reply != "global hours" {
    t.Fatalf("other chat should fall back to the global rule, got %q", reply)
  }
}

func TestMatchReplySkipsInactiveRules(t *testing.T) {
  svc, ruleRepo, chatRepo := newRuleFixture(t)
  ctx := context.Background()

  chat, err := chatRepo.GetOrCreateByGuestIdentifier(ctx, nil, "guest-inactive")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  rule, err := ruleRepo.Create(ctx, nil, &types.AutoReplyRule{Keyword: "discount", ReplyMessage: "old promo", IsActive: true})
  if err != nil {
    t.Fatalf("failed to create rule: %v", err)
  }
  rule.IsActive = false
  if _, err := ruleRepo.Update(ctx, nil, rule); err != nil {
    t.Fatalf("failed to deactivate rule: %v", err)
  }

  reply, err := svc.MatchReply(ctx, chat.ID, "any discount available?")
  if err != nil {
    t.Fatalf("MatchReply failed: %v", err)
  }
  if reply != "" {
    t.Fatalf("inactive rule must not match, got %q", reply)
  }
}
