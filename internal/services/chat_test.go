package services

import (
  "context"
  "sync"
  "testing"
  "time"

  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/socket"
  "github.com/smartchat-org/smartchat-backend/internal/testutil"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

type fakeHub struct {
  mu     sync.Mutex
  events []socket.Message
}

func (f *fakeHub) BroadcastGlobal(ctx context.Context, msg socket.Message) {
  f.mu.Lock()
  defer f.mu.Unlock()
  f.events = append(f.events, msg)
}

func (f *fakeHub) count(event string) int {
  f.mu.Lock()
  defer f.mu.Unlock()
  n := 0
  for _, e := range f.events {
    if e.Event == event {
      n++
    }
  }
  return n
}

func (f *fakeHub) countOn(channel, event string) int {
  f.mu.Lock()
  defer f.mu.Unlock()
  n := 0
  for _, e := range f.events {
    if e.Channel == channel && e.Event == event {
      n++
    }
  }
  return n
}

type chatFixture struct {
  db          *gorm.DB
  chatRepo    repos.ChatRepo
  messageRepo repos.MessageRepo
  userRepo    repos.UserRepo
  chatService ChatService
  hub         *fakeHub
  agent       *types.User
}

func newChatFixture(t *testing.T) *chatFixture {
  t.Helper()
  db := testutil.OpenTestDB(t)
  log := testutil.NewTestLogger(t)
  chatRepo := repos.NewChatRepo(db, log)
  messageRepo := repos.NewMessageRepo(db, log)
  userRepo := repos.NewUserRepo(db, log)
  hub := &fakeHub{}
  chatService := NewChatService(db, log, chatRepo, messageRepo, userRepo, nil, nil, nil, hub)

  agent := &types.User{Email: "agent@example.com", FirstName: "Ana", LastName: "Moreno"}
  if _, err := userRepo.Create(context.Background(), nil, agent); err != nil {
    t.Fatalf("failed to create agent: %v", err)
  }
  return &chatFixture{
    db:          db,
    chatRepo:    chatRepo,
    messageRepo: messageRepo,
    userRepo:    userRepo,
    chatService: chatService,
    hub:         hub,
    agent:       agent,
  }
}

func TestAssignAgentSilencesBot(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  chat, err := fx.chatService.GetOrCreateChat(ctx, "guest-assign")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  if chat.State() != types.ChatStateBotOwned {
    t.Fatalf("fresh chat should be bot owned, got %s", chat.State())
  }

  updated, err := fx.chatService.AssignAgent(ctx, chat.ID, fx.agent.ID)
  if err != nil {
    t.Fatalf("AssignAgent failed: %v", err)
  }
  if updated.State() != types.ChatStateHumanOwned {
    t.Fatalf("assigned chat should be human owned, got %s", updated.State())
  }
  if updated.AutoReplyEnabled {
    t.Fatalf("assignment must disable auto-reply")
  }
  if fx.hub.count("agent_assigned") == 0 {
    t.Fatalf("assignment should broadcast agent_assigned")
  }
}

func TestAssignAgentUnknownAgent(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  chat, err := fx.chatService.GetOrCreateChat(ctx, "guest-unknown-agent")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  ghost := types.User{}
  ghost.ID = chat.ID // valid uuid, not a user
  if _, err := fx.chatService.AssignAgent(ctx, chat.ID, ghost.ID); err == nil {
    t.Fatalf("expected error assigning unknown agent")
  }
}

func TestReleaseAgentReenablesBot(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  chat, err := fx.chatService.GetOrCreateChat(ctx, "guest-release")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  if _, err := fx.chatService.AssignAgent(ctx, chat.ID, fx.agent.ID); err != nil {
    t.Fatalf("AssignAgent failed: %v", err)
  }
  // Suppose the flag was forced off before the agent took over; release must
  // still force it back on.
  released, err := fx.chatService.ReleaseAgent(ctx, chat.ID)
  if err != nil {
    t.Fatalf("ReleaseAgent failed: %v", err)
  }
  if released.State() != types.ChatStateBotOwned || !released.AutoReplyEnabled {
    t.Fatalf("released chat should be bot owned with auto-reply on: %+v", released)
  }
  // Ownership changes go to the thread and to the dashboard, once each.
  if got := fx.hub.countOn(socket.ChatChannel(chat.ID), "agent_unassigned"); got != 1 {
    t.Fatalf("release should broadcast agent_unassigned once on the chat channel, got %d", got)
  }
  if got := fx.hub.countOn(socket.AgentsChannel, "agent_unassigned"); got != 1 {
    t.Fatalf("release should broadcast agent_unassigned once on the agents channel, got %d", got)
  }

  // Releasing again is a no-op and does not broadcast.
  again, err := fx.chatService.ReleaseAgent(ctx, chat.ID)
  if err != nil {
    t.Fatalf("second release failed: %v", err)
  }
  if again.AgentID != nil {
    t.Fatalf("chat should remain unassigned")
  }
  if fx.hub.count("agent_unassigned") != 2 {
    t.Fatalf("idempotent release must not broadcast again")
  }
}

func TestSetAutoReplyEnabledLeavesAssignmentAlone(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  chat, err := fx.chatService.GetOrCreateChat(ctx, "guest-toggle")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  if _, err := fx.chatService.AssignAgent(ctx, chat.ID, fx.agent.ID); err != nil {
    t.Fatalf("AssignAgent failed: %v", err)
  }

  updated, err := fx.chatService.SetAutoReplyEnabled(ctx, chat.ID, true)
  if err != nil {
    t.Fatalf("SetAutoReplyEnabled failed: %v", err)
  }
  if updated.AgentID == nil {
    t.Fatalf("toggling the flag must not touch the assignment")
  }
  // Flag is persisted verbatim, but the chat stays human owned and therefore
  // ineligible for auto-replies.
  if !updated.AutoReplyEnabled || updated.EligibleForAutoReply() {
    t.Fatalf("assigned chat must stay ineligible: %+v", updated)
  }
}

func TestAddGuestMessageBumpsActivity(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  before := time.Now().Add(-time.Second)
  chat, msg, err := fx.chatService.AddGuestMessage(ctx, "guest-activity", "hello there", nil)
  if err != nil {
    t.Fatalf("AddGuestMessage failed: %v", err)
  }
  reloaded, err := fx.chatRepo.GetByID(ctx, nil, chat.ID)
  if err != nil {
    t.Fatalf("failed to reload chat: %v", err)
  }
  if reloaded.LastActivityAt.Before(before) {
    t.Fatalf("last_activity_at not bumped: %v", reloaded.LastActivityAt)
  }
  if msg.Sender != types.SenderGuest {
    t.Fatalf("wrong sender: %s", msg.Sender)
  }
  if fx.hub.count("message_sent") == 0 {
    t.Fatalf("guest message should broadcast message_sent")
  }
}

func TestAddAgentMessageRequiresChatAndAgent(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  chat, err := fx.chatService.GetOrCreateChat(ctx, "guest-agent-msg")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  msg, err := fx.chatService.AddAgentMessage(ctx, chat.ID, fx.agent.ID, "let me help", nil)
  if err != nil {
    t.Fatalf("AddAgentMessage failed: %v", err)
  }
  if msg.Sender != types.SenderAgent || msg.UserID == nil || *msg.UserID != fx.agent.ID {
    t.Fatalf("agent message malformed: %+v", msg)
  }

  if _, err := fx.chatService.AddAgentMessage(ctx, chat.ID, chat.ID, "ghost", nil); err == nil {
    t.Fatalf("expected error for unknown agent")
  }
}

func TestReactivateIdleChats(t *testing.T) {
  fx := newChatFixture(t)
  ctx := context.Background()

  stale, err := fx.chatService.GetOrCreateChat(ctx, "guest-idle-stale")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  if _, err := fx.chatService.AssignAgent(ctx, stale.ID, fx.agent.ID); err != nil {
    t.Fatalf("AssignAgent failed: %v", err)
  }
  if err := fx.chatRepo.TouchActivity(ctx, nil, stale.ID, time.Now().Add(-time.Hour)); err != nil {
    t.Fatalf("failed to age chat: %v", err)
  }

  fresh, err := fx.chatService.GetOrCreateChat(ctx, "guest-idle-fresh")
  if err != nil {
    t.Fatalf("failed to create chat: %v", err)
  }
  if _, err := fx.chatService.AssignAgent(ctx, fresh.ID, fx.agent.ID); err != nil {
    t.Fatalf("AssignAgent failed: %v", err)
  }

  released, err := fx.chatService.ReactivateIdleChats(ctx, 15*time.Minute)
  if err != nil {
    t.Fatalf("ReactivateIdleChats failed: %v", err)
  }
  if released != 1 {
    t.Fatalf("expected 1 released chat, got %d", released)
  }
  gotStale, err := fx.chatRepo.GetByID(ctx, nil, stale.ID)
  if err != nil {
    t.Fatalf("failed to reload stale chat: %v", err)
  }
  if gotStale.AgentID != nil || !gotStale.AutoReplyEnabled {
    t.Fatalf("stale chat should be back with the bot: %+v", gotStale)
  }
  gotFresh, err := fx.chatRepo.GetByID(ctx, nil, fresh.ID)
  if err != nil {
    t.Fatalf("failed to reload fresh chat: %v", err)
  }
  if gotFresh.AgentID == nil {
    t.Fatalf("fresh chat must keep its agent")
  }
}
