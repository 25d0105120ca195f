package middleware

import (
  "net/http"
  "strings"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/requestdata"
  "github.com/smartchat-org/smartchat-backend/internal/services"
)

type AuthMiddleware struct {
  log         *logger.Logger
  authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
  middlewareLogger := log.With("Middleware", "AuthMiddleware")
  return &AuthMiddleware{log: middlewareLogger, authService: authService}
}

// authenticate resolves the request identity and aborts on failure. It never
// advances the handler chain; callers decide when to c.Next().
func (am *AuthMiddleware) authenticate(c *gin.Context) *requestdata.RequestData {
  tokenString := extractTokenFromAll(c)
  if tokenString == "" {
    c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
    return nil
  }
  refreshToken := c.GetHeader("X-Refresh-Token")
  ctx, err := am.authService.SetContextFromToken(c.Request.Context(), tokenString, refreshToken)
  if err != nil {
    c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
    return nil
  }
  c.Request = c.Request.WithContext(ctx)
  rd := requestdata.GetRequestData(ctx)
  if rd == nil || rd.UserID == uuid.Nil {
    c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden - invalid user id"})
    return nil
  }
  return rd
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
  return func(c *gin.Context) {
    if rd := am.authenticate(c); rd == nil {
      return
    }
    c.Next()
  }
}

func (am *AuthMiddleware) RequireUserType(userType string) gin.HandlerFunc {
  return func(c *gin.Context) {
    rd := am.authenticate(c)
    if rd == nil {
      return
    }
    if rd.UserType != userType {
      c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
      return
    }
    c.Next()
  }
}

func extractTokenFromAll(c *gin.Context) string {
  if qToken := c.Query("token"); qToken != "" {
    return qToken
  }
  authHeader := c.GetHeader("Authorization")
  if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
    return authHeader[7:]
  }
  return ""
}
