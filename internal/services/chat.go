package services

import (
  "context"
  "fmt"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/socket"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

// Broadcaster is the delivery collaborator; *socket.Hub satisfies it.
type Broadcaster interface {
  BroadcastGlobal(ctx context.Context, msg socket.Message)
}

// ChatService owns chat and message persistence plus the bot/human handoff
// state machine. Every ownership mutation runs inside a transaction that
// locks the chat row, so assignment, release, admin toggles, the idle sweep
// and the bot-reply commit are mutually exclusive per chat.
type ChatService interface {
  GetOrCreateChat(ctx context.Context, guestIdentifier string) (*types.Chat, error)
  UpdateGuestProfile(ctx context.Context, chatID uuid.UUID, guestName, guestEmail string) (*types.Chat, error)
  GetChatByID(ctx context.Context, chatID uuid.UUID) (*types.Chat, error)
  GetChatByGuestIdentifier(ctx context.Context, guestIdentifier string) (*types.Chat, error)
  ListChats(ctx context.Context, filters repos.ChatListFilters) ([]*types.Chat, error)
  ListMessages(ctx context.Context, chatID uuid.UUID, beforeID *uuid.UUID, limit int) ([]*types.Message, error)

  AddGuestMessage(ctx context.Context, guestIdentifier string, content string, attachment *types.Attachment) (*types.Chat, *types.Message, error)
  AddAgentMessage(ctx context.Context, chatID uuid.UUID, agentID uuid.UUID, content string, attachment *types.Attachment) (*types.Message, error)

  AssignAgent(ctx context.Context, chatID uuid.UUID, agentID uuid.UUID) (*types.Chat, error)
  ReleaseAgent(ctx context.Context, chatID uuid.UUID) (*types.Chat, error)
  SetAutoReplyEnabled(ctx context.Context, chatID uuid.UUID, enabled bool) (*types.Chat, error)
  ReactivateIdleChats(ctx context.Context, threshold time.Duration) (int, error)
}

type chatService struct {
  db            *gorm.DB
  log           *logger.Logger
  chatRepo      repos.ChatRepo
  messageRepo   repos.MessageRepo
  userRepo      repos.UserRepo
  avatarService AvatarService
  emailService  EmailService
  textService   TextService
  hub           Broadcaster
}

func NewChatService(
  db *gorm.DB,
  log *logger.Logger,
  chatRepo repos.ChatRepo,
  messageRepo repos.MessageRepo,
  userRepo repos.UserRepo,
  avatarService AvatarService,
  emailService EmailService,
  textService TextService,
  hub Broadcaster,
) ChatService {
  serviceLog := log.With("service", "ChatService")
  return &chatService{
    db:            db,
    log:           serviceLog,
    chatRepo:      chatRepo,
    messageRepo:   messageRepo,
    userRepo:      userRepo,
    avatarService: avatarService,
    emailService:  emailService,
    textService:   textService,
    hub:           hub,
  }
}

func (cs *chatService) GetOrCreateChat(ctx context.Context, guestIdentifier string) (*types.Chat, error) {
  if guestIdentifier == "" {
    return nil, fmt.Errorf("guest identifier cannot be empty")
  }
  existing, err := cs.chatRepo.GetByGuestIdentifier(ctx, nil, guestIdentifier)
  if err == nil {
    return existing, nil
  }
  chat, err := cs.chatRepo.GetOrCreateByGuestIdentifier(ctx, nil, guestIdentifier)
  if err != nil {
    return nil, err
  }
  if cs.avatarService != nil && chat.AvatarBucketKey == "" {
    bucketKey := fmt.Sprintf("chat_avatars/%s.png", chat.ID.String())
    url, avErr := cs.avatarService.CreateAndUploadAvatar(ctx, bucketKey, guestIdentifier)
    if avErr != nil {
      cs.log.Warn("failed to generate chat avatar", "chatID", chat.ID, "error", avErr)
    } else if upErr := cs.chatRepo.UpdateAvatar(ctx, nil, chat.ID, bucketKey, url); upErr == nil {
      chat.AvatarBucketKey = bucketKey
      chat.AvatarURL = url
    }
  }
  cs.log.Info("chat created for guest", "chatID", chat.ID, "guestIdentifier", guestIdentifier)
  return chat, nil
}

func (cs *chatService) UpdateGuestProfile(ctx context.Context, chatID uuid.UUID, guestName, guestEmail string) (*types.Chat, error) {
  chat, err := cs.chatRepo.GetByID(ctx, nil, chatID)
  if err != nil {
    return nil, err
  }
  if guestName == "" && guestEmail == "" {
    return chat, nil
  }
  if guestName != "" {
    chat.GuestName = guestName
  }
  if guestEmail != "" {
    chat.GuestEmail = guestEmail
  }
  if err := cs.chatRepo.UpdateGuestProfile(ctx, nil, chat.ID, chat.GuestName, chat.GuestEmail); err != nil {
    return nil, err
  }
  return chat, nil
}

func (cs *chatService) GetChatByID(ctx context.Context, chatID uuid.UUID) (*types.Chat, error) {
  return cs.chatRepo.GetByID(ctx, nil, chatID)
}

func (cs *chatService) GetChatByGuestIdentifier(ctx context.Context, guestIdentifier string) (*types.Chat, error) {
  return cs.chatRepo.GetByGuestIdentifier(ctx, nil, guestIdentifier)
}

func (cs *chatService) ListChats(ctx context.Context, filters repos.ChatListFilters) ([]*types.Chat, error) {
  return cs.chatRepo.List(ctx, nil, filters)
}

func (cs *chatService) ListMessages(ctx context.Context, chatID uuid.UUID, beforeID *uuid.UUID, limit int) ([]*types.Message, error) {
  if _, err := cs.chatRepo.GetByID(ctx, nil, chatID); err != nil {
    return nil, err
  }
  return cs.messageRepo.ListByChatIDBefore(ctx, nil, chatID, beforeID, limit)
}

// AddGuestMessage appends a guest message and bumps last_activity_at in one
// transaction. The auto-reply decision happens later in the dispatcher; the
// append itself never takes the ownership lock.
func (cs *chatService) AddGuestMessage(ctx context.Context, guestIdentifier string, content string, attachment *types.Attachment) (*types.Chat, *types.Message, error) {
  chat, err := cs.GetOrCreateChat(ctx, guestIdentifier)
  if err != nil {
    return nil, nil, err
  }
  msg := types.NewGuestMessage(chat.ID, content, attachment)
  if err := cs.appendMessage(ctx, msg); err != nil {
    return nil, nil, err
  }
  cs.broadcastMessage(ctx, msg)
  return chat, msg, nil
}

func (cs *chatService) AddAgentMessage(ctx context.Context, chatID uuid.UUID, agentID uuid.UUID, content string, attachment *types.Attachment) (*types.Message, error) {
  if _, err := cs.chatRepo.GetByID(ctx, nil, chatID); err != nil {
    return nil, err
  }
  agents, err := cs.userRepo.GetByIDs(ctx, nil, []uuid.UUID{agentID})
  if err != nil {
    return nil, err
  }
  if len(agents) == 0 {
    return nil, gorm.ErrRecordNotFound
  }
  msg := types.NewAgentMessage(chatID, agentID, content, attachment)
  if err := cs.appendMessage(ctx, msg); err != nil {
    return nil, err
  }
  msg.User = agents[0]
  cs.broadcastMessage(ctx, msg)
  return msg, nil
}

func (cs *chatService) appendMessage(ctx context.Context, msg *types.Message) error {
  return cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, err := cs.messageRepo.Create(ctx, tx, msg); err != nil {
      return err
    }
    return cs.chatRepo.TouchActivity(ctx, tx, msg.ChatID, time.Now())
  })
}

// AssignAgent flips the chat to human ownership. Taking over always silences
// the bot, whatever the flag was before.
func (cs *chatService) AssignAgent(ctx context.Context, chatID uuid.UUID, agentID uuid.UUID) (*types.Chat, error) {
  agents, err := cs.userRepo.GetByIDs(ctx, nil, []uuid.UUID{agentID})
  if err != nil {
    return nil, err
  }
  if len(agents) == 0 {
    return nil, gorm.ErrRecordNotFound
  }
  agent := agents[0]

  var updated *types.Chat
  err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    chat, lockErr := cs.chatRepo.GetByIDForUpdate(ctx, tx, chatID)
    if lockErr != nil {
      return lockErr
    }
    chat.AgentID = &agentID
    chat.AutoReplyEnabled = false
    if upErr := cs.chatRepo.UpdateOwnership(ctx, tx, chat); upErr != nil {
      return upErr
    }
    if touchErr := cs.chatRepo.TouchActivity(ctx, tx, chat.ID, time.Now()); touchErr != nil {
      return touchErr
    }
    updated = chat
    return nil
  })
  if err != nil {
    return nil, err
  }
  cs.log.Info("agent assigned to chat, auto-reply disabled", "chatID", chatID, "agentID", agentID)

  cs.broadcastOwnership(ctx, updated, "agent_assigned")
  cs.notifyAgentAssigned(ctx, agent, updated)
  return updated, nil
}

// ReleaseAgent flips the chat back to bot ownership. Releasing always
// re-arms the bot; it does not restore a prior suspended flag. Releasing an
// already-unassigned chat is a no-op.
func (cs *chatService) ReleaseAgent(ctx context.Context, chatID uuid.UUID) (*types.Chat, error) {
  var updated *types.Chat
  var changed bool
  err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    chat, lockErr := cs.chatRepo.GetByIDForUpdate(ctx, tx, chatID)
    if lockErr != nil {
      return lockErr
    }
    if chat.AgentID == nil {
      updated = chat
      return nil
    }
    chat.AgentID = nil
    chat.AutoReplyEnabled = true
    if upErr := cs.chatRepo.UpdateOwnership(ctx, tx, chat); upErr != nil {
      return upErr
    }
    updated = chat
    changed = true
    return nil
  })
  if err != nil {
    return nil, err
  }
  if !changed {
    cs.log.Debug("release requested for already-unassigned chat", "chatID", chatID)
    return updated, nil
  }
  cs.log.Info("agent released from chat, auto-reply re-enabled", "chatID", chatID)

  cs.broadcastOwnership(ctx, updated, "agent_unassigned")
  return updated, nil
}

// SetAutoReplyEnabled is the admin override on the flag alone; the agent
// assignment is untouched. The flag is persisted verbatim even while the
// chat is human-owned.
func (cs *chatService) SetAutoReplyEnabled(ctx context.Context, chatID uuid.UUID, enabled bool) (*types.Chat, error) {
  var updated *types.Chat
  err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    chat, lockErr := cs.chatRepo.GetByIDForUpdate(ctx, tx, chatID)
    if lockErr != nil {
      return lockErr
    }
    chat.AutoReplyEnabled = enabled
    if upErr := cs.chatRepo.UpdateAutoReplyEnabled(ctx, tx, chatID, enabled); upErr != nil {
      return upErr
    }
    updated = chat
    return nil
  })
  if err != nil {
    return nil, err
  }
  cs.log.Info("auto-reply flag set by admin", "chatID", chatID, "enabled", enabled)

  cs.broadcastOwnership(ctx, updated, "auto_reply_toggled")
  return updated, nil
}

// ReactivateIdleChats is the idle sweep: every human-owned chat whose last
// activity predates the threshold is released. Each release takes the same
// per-chat lock as a manual release, so racing the two is safe, and a chat
// that got fresh activity between the scan and the lock is left alone.
func (cs *chatService) ReactivateIdleChats(ctx context.Context, threshold time.Duration) (int, error) {
  cutoff := time.Now().Add(-threshold)
  idleChats, err := cs.chatRepo.FindIdleAssigned(ctx, nil, cutoff)
  if err != nil {
    return 0, err
  }
  if len(idleChats) == 0 {
    return 0, nil
  }
  cs.log.Info("idle sweep found candidate chats", "count", len(idleChats), "cutoff", cutoff)

  released := 0
  for _, candidate := range idleChats {
    err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
      chat, lockErr := cs.chatRepo.GetByIDForUpdate(ctx, tx, candidate.ID)
      if lockErr != nil {
        return lockErr
      }
      if chat.AgentID == nil || !chat.LastActivityAt.Before(cutoff) {
        return nil
      }
      chat.AgentID = nil
      chat.AutoReplyEnabled = true
      if upErr := cs.chatRepo.UpdateOwnership(ctx, tx, chat); upErr != nil {
        return upErr
      }
      released++
      cs.broadcastOwnership(ctx, chat, "agent_unassigned")
      return nil
    })
    if err != nil {
      cs.log.Warn("idle sweep failed to release chat", "chatID", candidate.ID, "error", err)
    }
  }
  if released > 0 {
    cs.log.Info("idle sweep released chats", "released", released)
  }
  return released, nil
}

func (cs *chatService) broadcastMessage(ctx context.Context, msg *types.Message) {
  if cs.hub == nil {
    return
  }
  event := socket.Message{
    Channel: socket.ChatChannel(msg.ChatID),
    Event:   "message_sent",
    Payload: msg,
  }
  cs.hub.BroadcastGlobal(ctx, event)
  cs.hub.BroadcastGlobal(ctx, socket.Message{
    Channel: socket.AgentsChannel,
    Event:   "message_sent",
    Payload: msg,
  })
}

func (cs *chatService) broadcastOwnership(ctx context.Context, chat *types.Chat, event string) {
  if cs.hub == nil {
    return
  }
  cs.hub.BroadcastGlobal(ctx, socket.Message{
    Channel: socket.ChatChannel(chat.ID),
    Event:   event,
    Payload: chat,
  })
  cs.hub.BroadcastGlobal(ctx, socket.Message{
    Channel: socket.AgentsChannel,
    Event:   event,
    Payload: chat,
  })
}

// Notification failures are logged and dropped; assignment already happened.
func (cs *chatService) notifyAgentAssigned(ctx context.Context, agent *types.User, chat *types.Chat) {
  body := fmt.Sprintf("You have been assigned to chat %s (guest %s).", chat.ID, chat.GuestIdentifier)
  if cs.emailService != nil && agent.Email != "" {
    if err := cs.emailService.SendEmail(ctx, agent.Email, "SmartChat: chat assigned to you", body, ""); err != nil {
      cs.log.Warn("failed to email agent about assignment", "agentID", agent.ID, "error", err)
    }
  }
  if cs.textService != nil && agent.PhoneNumber != nil && *agent.PhoneNumber != "" {
    if err := cs.textService.SendText(ctx, *agent.PhoneNumber, body); err != nil {
      cs.log.Warn("failed to text agent about assignment", "agentID", agent.ID, "error", err)
    }
  }
}
