package types

import (
  "fmt"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
)

type MessageSender string

const (
  SenderGuest MessageSender = "guest"
  SenderAgent MessageSender = "agent"
  SenderBot   MessageSender = "bot"
)

type Message struct {
  gorm.Model

  ID          uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  // Seq is a database-assigned insertion sequence. created_at alone cannot
  // order messages written in the same instant, so every thread read sorts
  // by (created_at, seq).
  Seq         int64         `gorm:"column:seq;autoIncrement;index" json:"-"`
  ChatID      uuid.UUID     `gorm:"index;not null" json:"chatID"`
  Chat        *Chat         `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChatID;references:ID" json:"-"`
  Sender      MessageSender `gorm:"not null;column:sender" json:"sender"`
  UserID      *uuid.UUID    `gorm:"index;null" json:"userID,omitempty"`
  User        *User         `gorm:"constraint:OnDelete:SET NULL;foreignKey:UserID;references:ID" json:"user,omitempty"`
  Content     string        `gorm:"type:text;not null;column:content" json:"content"`
  FilePath    string        `gorm:"column:file_path" json:"filePath,omitempty"`
  FileType    string        `gorm:"column:file_type" json:"fileType,omitempty"`
  FileSize    int64         `gorm:"column:file_size" json:"fileSize,omitempty"`
  IsAutoReply bool          `gorm:"not null;default:false;column:is_auto_reply" json:"isAutoReply"`

  CreatedAt   time.Time     `gorm:"index;not null;default:now()" json:"createdAt"`
  UpdatedAt   time.Time     `gorm:"not null;default:now()" json:"updatedAt"`
}

func (Message) TableName() string {
  return "message"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
  if m.ID == uuid.Nil {
    m.ID = uuid.New()
  }
  return nil
}

// Attachment describes a stored file referenced by a message.
type Attachment struct {
  Path string
  Type string
  Size int64
}

func (m *Message) HasAttachment() bool {
  return m.FilePath != ""
}

func (m *Message) AttachmentIsImage() bool {
  switch m.FileType {
  case "jpg", "jpeg", "png", "gif", "webp":
    return true
  }
  return false
}

func (m *Message) AttachmentIsPdf() bool {
  return m.FileType == "pdf"
}

// The constructors below are the only sanctioned way to build messages. They
// keep sender, user_id and is_auto_reply consistent without runtime checks
// scattered through the services: a guest or bot message never carries a user,
// an agent message always does, and only bot messages are auto-replies.

func NewGuestMessage(chatID uuid.UUID, content string, attachment *Attachment) *Message {
  m := &Message{
    ChatID:  chatID,
    Sender:  SenderGuest,
    Content: content,
  }
  applyAttachment(m, attachment)
  return m
}

func NewAgentMessage(chatID uuid.UUID, agentID uuid.UUID, content string, attachment *Attachment) *Message {
  m := &Message{
    ChatID:  chatID,
    Sender:  SenderAgent,
    UserID:  &agentID,
    Content: content,
  }
  applyAttachment(m, attachment)
  return m
}

func NewBotReply(chatID uuid.UUID, content string) *Message {
  return &Message{
    ChatID:      chatID,
    Sender:      SenderBot,
    Content:     content,
    IsAutoReply: true,
  }
}

func applyAttachment(m *Message, attachment *Attachment) {
  if attachment == nil {
    return
  }
  m.FilePath = attachment.Path
  m.FileType = attachment.Type
  m.FileSize = attachment.Size
}

// Validate enforces the sender invariant on messages that did not come from a
// constructor, e.g. rows decoded from external input.
func (m *Message) Validate() error {
  switch m.Sender {
  case SenderGuest:
    if m.UserID != nil || m.IsAutoReply {
      return fmt.Errorf("guest message cannot carry a user or be an auto-reply")
    }
  case SenderAgent:
    if m.UserID == nil {
      return fmt.Errorf("agent message requires a user")
    }
    if m.IsAutoReply {
      return fmt.Errorf("agent message cannot be an auto-reply")
    }
  case SenderBot:
    if m.UserID != nil {
      return fmt.Errorf("bot message cannot carry a user")
    }
    if !m.IsAutoReply {
      return fmt.Errorf("bot message must be an auto-reply")
    }
  default:
    return fmt.Errorf("unknown message sender: %q", m.Sender)
  }
  return nil
}
