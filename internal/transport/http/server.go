package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"medichat/internal/ai"
	appsvc "medichat/internal/app"
	"medichat/internal/bootstrap"
	"medichat/internal/cache"
	"medichat/internal/pkg/sessionlock"
	"medichat/internal/platform/rabbitmq"
	"medichat/internal/repository"
	"medichat/internal/transport/http/handler"
	"medichat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	reportRepo := repository.NewReportRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	eventPublisher := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.SessionEventQueue)
	llmClient := ai.NewOpenAICompatibleClient()

	chatCfg := ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
		Timeout: time.Duration(app.Config.LLM.RequestTimeoutSeconds) * time.Second,
	}
	analysisCfg := ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.AnalysisModel,
		Timeout: time.Duration(app.Config.LLM.AnalysisTimeoutSeconds) * time.Second,
	}

	// Chat and intake share one lock set so all mutations on a session
	// serialize against each other.
	locks := sessionlock.New()

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		sessionRepo,
		historyCache,
		eventPublisher,
		llmClient,
		locks,
		chatCfg,
		app.Config.LLM.MaxContextMessages,
	)
	intakeService := appsvc.NewIntakeService(
		sessionRepo,
		reportRepo,
		historyCache,
		eventPublisher,
		llmClient,
		locks,
		analysisCfg,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatbotHandler := handler.NewChatbotHandler(chatService, intakeService)

	authGroup := router.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatbot := router.Group("/chatbot")
	chatbot.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatbot.POST("/start", chatbotHandler.StartSession)
	chatbot.GET("/sessions", chatbotHandler.ListSessions)
	chatbot.GET("/history/:sessionId", chatbotHandler.GetHistory)
	chatbot.POST("/message", chatbotHandler.SendMessage)
	chatbot.POST("/message/stream", chatbotHandler.StreamMessage)
	chatbot.POST("/upload", chatbotHandler.UploadReport)
	chatbot.PATCH("/end/:sessionId", chatbotHandler.EndSession)
	chatbot.GET("/reports", chatbotHandler.ListReports)

	return router
}
