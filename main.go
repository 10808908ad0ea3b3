package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/identity"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	shutdownTracing, err := observability.InitTracing(context.Background(), "messaging-service", cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "audit.messaging", "messaging-service", cfg.Environment, logger)

	if eventsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err == nil {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	} else {
		logger.Info("ws event publishing disabled", zap.Error(err))
	}

	verifier := identity.NewVerifier(cfg.SessionSecret, cfg.SessionIssuer)

	userRepo := repositories.NewUserRepo(database, logger)
	conversationRepo := repositories.NewConversationRepo(database, logger)
	messageRepo := repositories.NewMessageRepo(database, logger)
	readRepo := repositories.NewReadRepo(database)
	typingRepo := repositories.NewTypingRepo(database)

	hub := ws.NewHub(logger)

	userHandler := handlers.NewUserHandler(userRepo, audit)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, userRepo, audit)
	messageHandler := handlers.NewMessageHandler(messageRepo, conversationRepo, userRepo, hub, audit)
	presenceHandler := handlers.NewPresenceHandler(typingRepo, readRepo, hub)
	conversationWS := ws.NewConversationWebSocketHandler(hub, conversationRepo, userRepo, verifier)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	session := middleware.Session(verifier)
	requireUser := middleware.RequireUser(userRepo)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/users/sync", session, userHandler.SyncUser)
	router.GET("/users/me", session, userHandler.Me)
	router.POST("/users/heartbeat", session, requireUser, userHandler.Heartbeat)
	router.GET("/users", session, requireUser, userHandler.ListUsers)

	router.GET("/conversations", session, requireUser, conversationHandler.ListConversations)
	router.POST("/conversations/direct", session, requireUser, conversationHandler.CreateDirect)
	router.POST("/conversations/group", session, requireUser, conversationHandler.CreateGroup)
	router.GET("/conversations/:conversation_id/name", session, requireUser, conversationHandler.GetDisplayName)

	router.GET("/conversations/:conversation_id/messages", session, requireUser, messageHandler.ListMessages)
	router.POST("/conversations/:conversation_id/messages", session, requireUser, messageHandler.PostMessage)
	router.DELETE("/conversations/:conversation_id/messages/:message_id", session, requireUser, messageHandler.DeleteMessage)
	router.POST("/messages/:message_id/reactions", session, requireUser, messageHandler.ToggleReaction)

	router.PUT("/conversations/:conversation_id/typing", session, requireUser, presenceHandler.SetTyping)
	router.GET("/conversations/:conversation_id/typing", session, requireUser, presenceHandler.GetTypingUsers)
	router.POST("/conversations/:conversation_id/read", session, requireUser, presenceHandler.AdvanceRead)
	router.GET("/unread-counts", session, requireUser, presenceHandler.UnreadCounts)

	router.GET("/ws/conversations/:conversation_id", conversationWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, conversationRepo, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
