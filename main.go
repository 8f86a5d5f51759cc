package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"wafferli-chat-service/internal/chat"
	"wafferli-chat-service/internal/config"
	"wafferli-chat-service/internal/db"
	"wafferli-chat-service/internal/handlers"
	"wafferli-chat-service/internal/logging"
	"wafferli-chat-service/internal/media"
	"wafferli-chat-service/internal/middleware"
	"wafferli-chat-service/internal/observability"
	"wafferli-chat-service/internal/presence"
	"wafferli-chat-service/internal/rabbitmq"
	"wafferli-chat-service/internal/repositories"
	"wafferli-chat-service/internal/typing"
	"wafferli-chat-service/internal/ws"
)

const serviceName = "wafferli-chat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty, serviceName)

	ctx := context.Background()

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, serviceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init tracing")
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	var registry presence.Registry
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisRegistry, err := presence.NewRedisRegistry(client, cfg.Redis.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		registry = redisRegistry
		log.Info().Str("address", cfg.Redis.Address).Msg("using redis presence registry")
	} else {
		registry = presence.NewMemoryRegistry()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()

	var uploader media.Uploader
	uploader, err = media.NewS3Uploader(ctx, cfg.Media)
	if err != nil {
		log.Warn().Err(err).Msg("media storage unavailable, attachment sends will fail")
		uploader = media.Unavailable{}
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub()
	tracker := typing.NewTracker()

	service := chat.NewService(conversationRepo, messageRepo, userRepo, uploader, registry, hub, publisher)
	sessions := ws.NewSessionHandler(hub, registry, tracker, service, userRepo, conversationRepo, cfg.WebSocket)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, userRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	identity := middleware.Identity(userRepo)
	router.GET("/conversations", identity, conversationHandler.List)
	router.GET("/conversations/:conversation_id/messages", identity, conversationHandler.Messages)

	router.GET("/ws", sessions.Handle)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("chat service listening")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
