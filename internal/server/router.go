package server

import (
  "strings"

  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"

  "github.com/smartchat-org/smartchat-backend/internal/handlers"
  "github.com/smartchat-org/smartchat-backend/internal/middleware"
  "github.com/smartchat-org/smartchat-backend/internal/types"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

type RouterConfig struct {
  AuthHandler    *handlers.AuthHandler
  AuthMiddleware *middleware.AuthMiddleware
  GuestHandler   *handlers.GuestHandler
  AgentHandler   *handlers.AgentHandler
  AdminHandler   *handlers.AdminHandler
  AgentWsHandler gin.HandlerFunc
  GuestWsHandler gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  //-----------------------------------------
  // Cors Setup
  //-----------------------------------------
  allowOrigins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", nil), ",")
  router.Use(cors.New(cors.Config{
    AllowOrigins:     allowOrigins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Refresh-Token"},
    AllowCredentials: true,
  }))

  //-----------------------------------------
  // Health Routes
  //-----------------------------------------
  router.GET("/healthz", handlers.Healthz)

  //-----------------------------------------
  // Public Routes (guest widget + login)
  //-----------------------------------------
  api := router.Group("/api")
  {
    api.POST("/login", cfg.AuthHandler.Login)

    guest := api.Group("/guest")
    guest.POST("/chat", cfg.GuestHandler.StartChat)
    guest.POST("/messages", cfg.GuestHandler.PostMessage)
    guest.GET("/thread", cfg.GuestHandler.GetThread)
    guest.GET("/ws", cfg.GuestWsHandler)
  }

  //------------------------------------------
  // Protected Routes (agents + admins)
  //------------------------------------------
  protected := api.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  protected.POST("/refresh", cfg.AuthHandler.Refresh)
  protected.POST("/logout", cfg.AuthHandler.Logout)
  protected.GET("/ws", cfg.AgentWsHandler)

  //Chats
  protected.GET("/chats", cfg.AgentHandler.ListChats)
  protected.GET("/chats/:chatID", cfg.AgentHandler.GetChat)
  protected.POST("/chats/:chatID/messages", cfg.AgentHandler.PostMessage)
  protected.POST("/chats/:chatID/assign", cfg.AgentHandler.Assign)
  protected.POST("/chats/:chatID/release", cfg.AgentHandler.Release)

  //------------------------------------------
  // Admin Routes
  //------------------------------------------
  admin := api.Group("/admin")
  admin.Use(cfg.AuthMiddleware.RequireUserType(types.UserTypeAdmin))
  admin.POST("/chats/:chatID/auto-reply", cfg.AdminHandler.SetAutoReply)
  admin.POST("/rules", cfg.AdminHandler.CreateRule)
  admin.GET("/rules", cfg.AdminHandler.ListRules)
  admin.PUT("/rules/:ruleID", cfg.AdminHandler.UpdateRule)
  admin.DELETE("/rules/:ruleID", cfg.AdminHandler.DeleteRule)
  admin.POST("/users", cfg.AdminHandler.RegisterAgent)

  return router
}
