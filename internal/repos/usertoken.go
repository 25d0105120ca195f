package repos

import (
  "context"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

type UserTokenRepo interface {
  Create(ctx context.Context, tx *gorm.DB, token *types.UserToken) (*types.UserToken, error)
  GetByRefreshToken(ctx context.Context, tx *gorm.DB, refreshToken string) (*types.UserToken, error)
  DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
  DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) error
}

type userTokenRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
  return &userTokenRepo{
    db:  db,
    log: baseLog.With("repo", "UserTokenRepo"),
  }
}

func (tr *userTokenRepo) Create(ctx context.Context, tx *gorm.DB, token *types.UserToken) (*types.UserToken, error) {
  if tx == nil {
    tx = tr.db
  }
  if err := tx.WithContext(ctx).Create(token).Error; err != nil {
    tr.log.Error("failed to create user token", "userID", token.UserID, "error", err)
    return nil, err
  }
  return token, nil
}

func (tr *userTokenRepo) GetByRefreshToken(ctx context.Context, tx *gorm.DB, refreshToken string) (*types.UserToken, error) {
  if tx == nil {
    tx = tr.db
  }
  var token types.UserToken
  if err := tx.WithContext(ctx).
    Where("refresh_token = ?", refreshToken).
    First(&token).Error; err != nil {
    return nil, err
  }
  return &token, nil
}

func (tr *userTokenRepo) DeleteByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
  if tx == nil {
    tx = tr.db
  }
  if err := tx.WithContext(ctx).
    Where("user_id = ?", userID).
    Delete(&types.UserToken{}).Error; err != nil {
    tr.log.Error("failed to delete user tokens", "userID", userID, "error", err)
    return err
  }
  return nil
}

func (tr *userTokenRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) error {
  if tx == nil {
    tx = tr.db
  }
  if err := tx.WithContext(ctx).
    Where("expires_at < ?", now).
    Delete(&types.UserToken{}).Error; err != nil {
    tr.log.Error("failed to delete expired user tokens", "error", err)
    return err
  }
  return nil
}
