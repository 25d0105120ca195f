package main

import (
  "fmt"
  "os"
  "time"

  "github.com/smartchat-org/smartchat-backend/internal/db"
  "github.com/smartchat-org/smartchat-backend/internal/handlers"
  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/middleware"
  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/scheduler"
  "github.com/smartchat-org/smartchat-backend/internal/seed"
  "github.com/smartchat-org/smartchat-backend/internal/server"
  "github.com/smartchat-org/smartchat-backend/internal/services"
  "github.com/smartchat-org/smartchat-backend/internal/socket"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

func main() {
  // Logger Setup
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Environment Variables
  log.Info("Attempting to load environment variables for Main now...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  redisAddress := utils.GetEnv("REDIS_ADDRESS", "localhost:6379", log)
  redisPassword := utils.GetEnv("REDIS_PASSWORD", "", log)
  log.Debug("Environment variables loaded for Main :)",
    "accessTokenTTL", accessTokenTTL,
    "refreshTokenTTL", refreshTokenTTL,
    "redisAddress", redisAddress,
  )

  // Postgres Setup
  log.Info("Setting Up Postgres from Main now...")
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("DB init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()
  log.Info("Postgres Setup From Main Successful :)")

  // Repositories Setup
  log.Info("Setting Up Repositories from Main now...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  chatRepo := repos.NewChatRepo(thePG, log)
  messageRepo := repos.NewMessageRepo(thePG, log)
  ruleRepo := repos.NewAutoReplyRuleRepo(thePG, log)
  log.Info("Repositories Set Up From Main Successful :)")

  // Seed Setup
  log.Info("Attempting to Seed The Postgres From Main now...")
  if err := seed.SeedAll(thePG, userRepo, ruleRepo); err != nil {
    log.Warn("Failed to seed data :(", "error", err)
  }
  log.Info("Seeding of Postgres From Main Successful :)")

  // Websocket Setup
  log.Info("Setting Up Websocket Hub From Main Now :)")
  wsHub := socket.NewHub(log)
  log.Info("Websocket Hub Set Up From Main Successful :)")

  // Redis PubSub
  log.Info("Setting Up Redis PubSub From Main Now :)")
  redisChanName := "smartchat_hub_broadcast"
  redisPubSub, err := socket.NewRedisPubSub(log, redisAddress, redisPassword, redisChanName)
  if err != nil {
    log.Warn("Failed to init redis pubsub", "error", err)
  } else {
    if err := redisPubSub.StartSubscriber(wsHub); err != nil {
      log.Warn("Failed to subscribe to Redis pub/sub", "error", err)
    } else {
      wsHub.SetRedisPubSub(redisPubSub)
      log.Info("Redis pubsub is active!")
    }
  }
  log.Info("Successfully Set up Redis Pub Sub From Main :)")

  // Services Setup
  log.Info("Setting up Services from Main now...")
  emailService, err := services.NewEmailService(log)
  if err != nil {
    log.Warn("Could not init EmailService", "error", err)
  }
  textService, err := services.NewTextService(log)
  if err != nil {
    log.Warn("Could not init TextService", "error", err)
  }
  bucketService, err := services.NewBucketService(log)
  if err != nil {
    log.Error("Fatal error: Cannot init BucketService", "error", err)
    os.Exit(1)
  }
  avatarService, err := services.NewAvatarService(log, bucketService)
  if err != nil {
    log.Error("Fatal error: Cannot init AvatarService", "error", err)
    os.Exit(1)
  }
  completionService, err := services.NewOpenAICompletionService(log)
  if err != nil {
    log.Error("Fatal error: Cannot init CompletionService", "error", err)
    os.Exit(1)
  }
  pdfTextService, err := services.NewPdfTextService(log)
  if err != nil {
    log.Warn("Could not init PdfTextService, PDF excerpts disabled", "error", err)
  }
  uploadService := services.NewUploadService(log, bucketService)
  ruleService := services.NewRuleService(thePG, log, ruleRepo)
  chatService := services.NewChatService(thePG, log, chatRepo, messageRepo, userRepo, avatarService, emailService, textService, wsHub)
  autoReplyService := services.NewAutoReplyService(thePG, log, chatRepo, messageRepo, ruleService, completionService, bucketService, pdfTextService, wsHub)
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, avatarService, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  log.Info("Services Set Up From Main Successful :)")

  // Handler Setup
  log.Info("Setting Up Handlers from Main now...")
  authHandler := handlers.NewAuthHandler(authService)
  guestHandler := handlers.NewGuestHandler(log, chatService, autoReplyService, uploadService)
  agentHandler := handlers.NewAgentHandler(log, chatService, uploadService)
  adminHandler := handlers.NewAdminHandler(log, chatService, ruleService, authService)
  agentWsHandler := handlers.AgentWsHandler(wsHub, log)
  guestWsHandler := handlers.GuestWsHandler(wsHub, chatService, log)
  log.Info("Handlers Set Up From Main Successful :)")

  // MiddleWare Setup
  log.Info("Setting Up Middleware from Main now...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)
  log.Info("Middleware Set Up From Main Successful :)")

  // Idle Sweeper Setup
  log.Info("Setting Up Idle Sweeper from Main now...")
  idleSweeper := scheduler.NewIdleSweeper(log, chatService)
  idleSweeper.Start()
  log.Info("Idle Sweeper Set Up From Main Successful :)")

  // Router Setup
  log.Info("Setting Up Router from Main now...")
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:    authHandler,
    AuthMiddleware: authMiddleware,
    GuestHandler:   guestHandler,
    AgentHandler:   agentHandler,
    AdminHandler:   adminHandler,
    AgentWsHandler: agentWsHandler,
    GuestWsHandler: guestWsHandler,
  })
  log.Info("Router Set Up From Main Successful :)")

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }

  // On Shutdown
  idleSweeper.Stop()
  if redisPubSub != nil {
    redisPubSub.Stop()
  }
}
