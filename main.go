package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"thread-sync/internal/db"
	"thread-sync/internal/handlers"
	"thread-sync/internal/middleware"
	"thread-sync/internal/observability"
	"thread-sync/internal/push"
	"thread-sync/internal/rabbitmq"
	"thread-sync/internal/repositories"
	"thread-sync/internal/telemetry"
	"thread-sync/internal/thread"
	"thread-sync/internal/ws"
)

func main() {
	ctx := context.Background()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, "thread-sync", getEnv("ENVIRONMENT", "dev"))
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer shutdownTracer(ctx)
	}

	amqpURL := getEnv("AMQP_URL", "")
	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "audit_events"))
	defer auditPublisher.Close()
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit_log.thread_sync", "thread-sync", getEnv("ENVIRONMENT", "dev"))

	if eventsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("EVENTS_EXCHANGE", "sync_events")); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	}

	hub := ws.NewHub()
	msgLog := repositories.NewMessageLogRepo(database)
	store := thread.NewStore(msgLog, hub, pageSize())

	consumer, err := push.NewConsumer(amqpURL, getEnv("PUSH_EXCHANGE", "message_events"), getEnv("PUSH_QUEUE", "thread_sync.messages"), store)
	if err != nil {
		log.Printf("push delivery disabled: %v", err)
	} else {
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Printf("push consumer stopped: %v", err)
			}
		}()
	}

	threadHandler := handlers.NewThreadHandler(store, emitter)
	threadWS := ws.NewThreadWebSocketHandler(hub, store)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("thread-sync"))
	router.Use(observability.HTTPMetricsMiddleware())

	identity := middleware.IdentityMiddleware()

	router.GET("/threads/:thread_id/window", identity, threadHandler.GetWindow)
	router.POST("/threads/:thread_id/fetch", identity, threadHandler.Fetch)
	router.POST("/threads/:thread_id/load-around", identity, threadHandler.LoadAround)
	router.POST("/threads/:thread_id/messages", identity, threadHandler.PostMessage)
	router.POST("/threads/:thread_id/read", identity, threadHandler.MarkAsRead)
	router.DELETE("/threads/:thread_id", identity, threadHandler.EvictThread)

	router.GET("/ws/threads/:thread_id", threadWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func pageSize() int {
	raw := getEnv("SYNC_PAGE_SIZE", "")
	if raw == "" {
		return thread.DefaultPageSize
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		log.Printf("invalid SYNC_PAGE_SIZE %q, using default", raw)
		return thread.DefaultPageSize
	}
	return size
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
