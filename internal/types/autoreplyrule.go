package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
)

// AutoReplyRule is a keyword-triggered canned response, consulted before the
// generative fallback. A nil ChatID means the rule applies to every chat.
type AutoReplyRule struct {
  gorm.Model

  ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  ChatID       *uuid.UUID `gorm:"index;null" json:"chatID,omitempty"`
  Chat         *Chat      `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChatID;references:ID" json:"-"`
  Keyword      string     `gorm:"uniqueIndex;not null;column:keyword" json:"keyword"`
  ReplyMessage string     `gorm:"type:text;not null;column:reply_message" json:"replyMessage"`
  IsActive     bool       `gorm:"not null;default:true;column:is_active" json:"isActive"`
  CreatedBy    *uuid.UUID `gorm:"column:created_by" json:"createdBy,omitempty"`

  CreatedAt    time.Time  `gorm:"not null;default:now()" json:"createdAt"`
  UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updatedAt"`
}

func (AutoReplyRule) TableName() string {
  return "auto_reply_rule"
}

func (r *AutoReplyRule) BeforeCreate(tx *gorm.DB) error {
  if r.ID == uuid.Nil {
    r.ID = uuid.New()
  }
  return nil
}
