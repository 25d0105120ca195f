package services

import (
  "context"
  "fmt"
  "strings"
  "time"

  "golang.org/x/crypto/bcrypt"
  "gorm.io/gorm"

  "github.com/golang-jwt/jwt/v5"
  "github.com/google/uuid"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/requestdata"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

type JWTClaims struct {
  jwt.RegisteredClaims
  UserType string `json:"user_type,omitempty"`
}

type AuthService interface {
  RegisterUser(ctx context.Context, user *types.User, password string) error
  Login(ctx context.Context, email, password string) (string, string, error)
  Refresh(ctx context.Context) (string, string, error)
  Logout(ctx context.Context) error

  SetContextFromToken(ctx context.Context, tokenString, refreshToken string) (context.Context, error)

  GetAccessTTL() time.Duration
}

type authService struct {
  db            *gorm.DB
  log           *logger.Logger
  userRepo      repos.UserRepo
  userTokenRepo repos.UserTokenRepo
  avatarService AvatarService
  jwtSecretKey  string
  accessTTL     time.Duration
  refreshTTL    time.Duration
}

func NewAuthService(
  db *gorm.DB,
  log *logger.Logger,
  userRepo repos.UserRepo,
  userTokenRepo repos.UserTokenRepo,
  avatarService AvatarService,
  jwtSecretKey string,
  accessTTL time.Duration,
  refreshTTL time.Duration,
) AuthService {
  serviceLog := log.With("service", "AuthService")
  return &authService{
    db:            db,
    log:           serviceLog,
    userRepo:      userRepo,
    userTokenRepo: userTokenRepo,
    avatarService: avatarService,
    jwtSecretKey:  jwtSecretKey,
    accessTTL:     accessTTL,
    refreshTTL:    refreshTTL,
  }
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User, password string) error {
  user.Email = strings.ToLower(strings.TrimSpace(user.Email))
  if user.Email == "" {
    as.log.Warn("Cannot register user with empty email.")
    return fmt.Errorf("email is required")
  }
  if len(password) < 8 {
    as.log.Warn("Cannot register user with password shorter than 8 characters.", "email", user.Email)
    return fmt.Errorf("password must be at least 8 characters")
  }
  if user.UserType != types.UserTypeAdmin && user.UserType != types.UserTypeAgent {
    user.UserType = types.UserTypeAgent
  }

  exists, eErr := as.userRepo.EmailExists(ctx, nil, user.Email)
  if eErr != nil {
    as.log.Warn("Failed to check whether email already exists, Cannot proceed. Returning error.", "error", eErr)
    return fmt.Errorf("failed to check email: %w", eErr)
  }
  if exists {
    as.log.Warn("Email already registered, Cannot proceed.", "email", user.Email)
    return fmt.Errorf("email already registered")
  }

  hash, hErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
  if hErr != nil {
    as.log.Warn("Failed to hash password, Cannot proceed. Returning error.", "error", hErr)
    return fmt.Errorf("failed to hash password: %w", hErr)
  }
  user.Password = string(hash)
  user.ID = uuid.New()

  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if _, cErr := as.userRepo.Create(ctx, tx, user); cErr != nil {
      as.log.Warn("Failed to create user, Cannot proceed. Returning error.", "error", cErr)
      return fmt.Errorf("failed to create user: %w", cErr)
    }
    if as.avatarService != nil {
      bucketKey := fmt.Sprintf("avatars/users/%s.png", user.ID)
      url, aErr := as.avatarService.CreateAndUploadAvatar(ctx, bucketKey, user.DisplayName())
      if aErr != nil {
        as.log.Warn("Failed to create avatar for new user, continuing without one.", "userID", user.ID, "error", aErr)
        return nil
      }
      if uErr := as.userRepo.UpdateAvatar(ctx, tx, user.ID, bucketKey, url); uErr != nil {
        as.log.Warn("Failed to persist avatar for new user, continuing without one.", "userID", user.ID, "error", uErr)
      }
    }
    return nil
  })
}

func (as *authService) Login(ctx context.Context, userEmail, userPassword string) (string, string, error) {
  email := strings.ToLower(strings.TrimSpace(userEmail))
  if email == "" || userPassword == "" {
    as.log.Warn("Login called with empty email or password, Cannot proceed.")
    return "", "", fmt.Errorf("email and password are required")
  }

  user, uErr := as.userRepo.GetByEmail(ctx, nil, email)
  if uErr != nil {
    as.log.Warn("Failure to retrieve user by email, Cannot proceed. Returning error.", "error", uErr)
    return "", "", fmt.Errorf("invalid credentials")
  }
  if hErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(userPassword)); hErr != nil {
    as.log.Warn("Invalid password, user password and hash dont match, Cannot proceed.", "email", email)
    return "", "", fmt.Errorf("invalid credentials")
  }

  var accessToken string
  var refreshToken string
  if err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if dErr := as.userTokenRepo.DeleteExpired(ctx, tx, time.Now()); dErr != nil {
      as.log.Warn("Failed to delete expired user tokens, Cannot proceed. Returning error.", "error", dErr)
      return fmt.Errorf("failed to delete expired user tokens: %w", dErr)
    }
    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      as.log.Warn("Generate Access Token Error, Cannot proceed. Returning error.", "error", genErr)
      return fmt.Errorf("generate access token error: %w", genErr)
    }
    accessToken = tok
    refreshToken = uuid.New().String()
    userToken := types.UserToken{
      ID:           uuid.New(),
      UserID:       user.ID,
      RefreshToken: refreshToken,
      ExpiresAt:    time.Now().Add(as.refreshTTL),
    }
    if _, cTErr := as.userTokenRepo.Create(ctx, tx, &userToken); cTErr != nil {
      as.log.Warn("Create User Token Error, Cannot proceed. Returning error.", "error", cTErr)
      return fmt.Errorf("create user token error: %w", cTErr)
    }
    return nil
  }); err != nil {
    return "", "", err
  }
  return accessToken, refreshToken, nil
}

func (as *authService) Refresh(ctx context.Context) (string, string, error) {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil {
    as.log.Warn("No Request Data found in context, Cannot proceed.")
    return "", "", fmt.Errorf("no request data found in context")
  }
  if rd.RefreshToken == "" {
    as.log.Warn("RefreshToken in Request Data is an empty string, Cannot proceed.")
    return "", "", fmt.Errorf("refresh token is required")
  }

  var accessToken string
  var newRefreshToken string
  err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    existingToken, fTErr := as.userTokenRepo.GetByRefreshToken(ctx, tx, rd.RefreshToken)
    if fTErr != nil {
      as.log.Warn("Error fetching refresh token, Cannot proceed. Returning error.", "error", fTErr)
      return fmt.Errorf("error fetching refresh token: %w", fTErr)
    }
    if existingToken.ExpiresAt.Before(time.Now()) {
      if dErr := as.userTokenRepo.DeleteByUserID(ctx, tx, existingToken.UserID); dErr != nil {
        as.log.Warn("Refresh token expired, error deleting, Cannot proceed. Returning error.", "error", dErr)
        return fmt.Errorf("refresh token expired, error deleting: %w", dErr)
      }
      as.log.Warn("Refresh Token Expired, Cannot proceed.")
      return fmt.Errorf("refresh token expired")
    }
    users, uErr := as.userRepo.GetByIDs(ctx, tx, []uuid.UUID{existingToken.UserID})
    if uErr != nil {
      as.log.Warn("Failed to load user for refresh, Cannot proceed. Returning error.", "error", uErr)
      return fmt.Errorf("failed to load user for refresh: %w", uErr)
    }
    if len(users) == 0 {
      as.log.Warn("No user found for the given refresh token, Cannot proceed.")
      return fmt.Errorf("no user found for the given refresh token")
    }
    user := users[0]
    tok, genErr := as.generateAccessToken(user)
    if genErr != nil {
      as.log.Warn("Failed to generate new access token, Cannot proceed. Returning error.", "error", genErr)
      return fmt.Errorf("failed to generate new access token: %w", genErr)
    }
    accessToken = tok
    newRefreshToken = uuid.New().String()
    newUserToken := types.UserToken{
      ID:           uuid.New(),
      UserID:       user.ID,
      RefreshToken: newRefreshToken,
      ExpiresAt:    time.Now().Add(as.refreshTTL),
    }
    if dErr := as.userTokenRepo.DeleteByUserID(ctx, tx, user.ID); dErr != nil {
      as.log.Warn("Failed to remove old refresh token, Cannot proceed. Returning error.", "error", dErr)
      return fmt.Errorf("failed to remove old refresh token: %w", dErr)
    }
    if _, cErr := as.userTokenRepo.Create(ctx, tx, &newUserToken); cErr != nil {
      as.log.Warn("Failed to create new user token, Cannot proceed. Returning error.", "error", cErr)
      return fmt.Errorf("failed to create new user token: %w", cErr)
    }
    return nil
  })
  if err != nil {
    return "", "", err
  }
  return accessToken, newRefreshToken, nil
}

func (as *authService) Logout(ctx context.Context) error {
  rd := requestdata.GetRequestData(ctx)
  if rd == nil {
    as.log.Warn("No Request Data found in context, Cannot proceed.")
    return fmt.Errorf("no request data found in context")
  }
  if rd.UserID == uuid.Nil {
    as.log.Warn("UserID in Request Data is empty, Cannot proceed.")
    return fmt.Errorf("user id is required")
  }
  return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if dErr := as.userTokenRepo.DeleteByUserID(ctx, tx, rd.UserID); dErr != nil {
      as.log.Warn("Error deleting user tokens, Cannot proceed. Returning error.", "error", dErr)
      return fmt.Errorf("error deleting user tokens: %w", dErr)
    }
    return nil
  })
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
  claims := JWTClaims{
    RegisteredClaims: jwt.RegisteredClaims{
      Subject:   user.ID.String(),
      ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
      IssuedAt:  jwt.NewNumericDate(time.Now()),
    },
    UserType: user.UserType,
  }
  token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
  return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString, refreshToken string) (context.Context, error) {
  if tokenString == "" {
    return ctx, nil
  }
  parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
    return []byte(as.jwtSecretKey), nil
  })
  if err != nil {
    return ctx, fmt.Errorf("failed to parse token: %w", err)
  }
  claims, ok := parsedToken.Claims.(*JWTClaims)
  if !ok || !parsedToken.Valid {
    return ctx, fmt.Errorf("invalid or expired JWT token")
  }
  userID, err := uuid.Parse(claims.Subject)
  if err != nil {
    return ctx, fmt.Errorf("invalid user ID in token: %w", err)
  }
  rd := &requestdata.RequestData{
    TokenString:  tokenString,
    RefreshToken: refreshToken,
    UserType:     claims.UserType,
    UserID:       userID,
  }
  return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
  return as.accessTTL
}
