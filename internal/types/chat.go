package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
)

// ChatState is derived from auto_reply_enabled and agent_id, never stored.
type ChatState string

const (
  ChatStateBotOwned   ChatState = "bot_owned"
  ChatStateHumanOwned ChatState = "human_owned"
  ChatStateSuspended  ChatState = "suspended"
)

type Chat struct {
  gorm.Model

  ID               uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  GuestIdentifier  string      `gorm:"uniqueIndex;not null;column:guest_identifier" json:"guestIdentifier"`
  GuestName        string      `gorm:"column:guest_name" json:"guestName"`
  GuestEmail       string      `gorm:"column:guest_email" json:"guestEmail"`
  AgentID          *uuid.UUID  `gorm:"index;null" json:"agentID,omitempty"`
  Agent            *User       `gorm:"constraint:OnDelete:SET NULL;foreignKey:AgentID;references:ID" json:"agent,omitempty"`
  AutoReplyEnabled bool        `gorm:"not null;default:true;column:auto_reply_enabled" json:"autoReplyEnabled"`
  LastActivityAt   time.Time   `gorm:"index;not null;default:now();column:last_activity_at" json:"lastActivityAt"`
  AvatarBucketKey  string      `gorm:"column:avatar_bucket_key" json:"avatarBucketKey"`
  AvatarURL        string      `gorm:"column:avatar_url" json:"avatarURL"`

  CreatedAt        time.Time   `gorm:"not null;default:now()" json:"createdAt"`
  UpdatedAt        time.Time   `gorm:"not null;default:now()" json:"updatedAt"`
}

func (Chat) TableName() string {
  return "chat"
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
  if c.ID == uuid.Nil {
    c.ID = uuid.New()
  }
  if c.LastActivityAt.IsZero() {
    c.LastActivityAt = time.Now()
  }
  return nil
}

// State derives ownership from the two underlying fields. An assigned chat is
// human-owned no matter what the auto-reply flag says.
func (c *Chat) State() ChatState {
  if c.AgentID != nil {
    return ChatStateHumanOwned
  }
  if c.AutoReplyEnabled {
    return ChatStateBotOwned
  }
  return ChatStateSuspended
}

// EligibleForAutoReply reports whether the bot may answer the next guest
// message. Must be evaluated against a fresh read of the chat row.
func (c *Chat) EligibleForAutoReply() bool {
  return c.AutoReplyEnabled && c.AgentID == nil
}
