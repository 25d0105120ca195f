package types

import (
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"
)

const (
  UserTypeAdmin = "admin"
  UserTypeAgent = "agent"
)

type User struct {
  gorm.Model

  ID              uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserType        string      `gorm:"column:user_type;not null;default:'agent'" json:"userType"`
  Email           string      `gorm:"uniqueIndex;not null;column:email" json:"email"`
  PhoneNumber     *string     `gorm:"column:phone_number" json:"phoneNumber,omitempty"`
  Password        string      `gorm:"not null;column:password" json:"-"`
  FirstName       string      `gorm:"not null;column:first_name" json:"firstName"`
  LastName        string      `gorm:"not null;column:last_name" json:"lastName"`
  AvatarBucketKey string      `gorm:"column:avatar_bucket_key" json:"avatarBucketKey"`
  AvatarURL       string      `gorm:"column:avatar_url" json:"avatarURL"`

  CreatedAt       time.Time   `gorm:"not null;default:now()" json:"createdAt"`
  UpdatedAt       time.Time   `gorm:"not null;default:now()" json:"updatedAt"`
}

func (User) TableName() string {
  return "user"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
  if u.ID == uuid.Nil {
    u.ID = uuid.New()
  }
  return nil
}

func (u *User) DisplayName() string {
  if u.FirstName == "" && u.LastName == "" {
    return "Agent"
  }
  if u.LastName == "" {
    return u.FirstName
  }
  return u.FirstName + " " + u.LastName
}

func (u *User) IsAdmin() bool {
  return u.UserType == UserTypeAdmin
}
