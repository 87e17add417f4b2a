package main

import (
	"context"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"trashdrop/cache"
	"trashdrop/common"
	"trashdrop/config"
	"trashdrop/db"
	"trashdrop/events"
	"trashdrop/kafka"
	"trashdrop/metrics"
	"trashdrop/rabbitmq"
	"trashdrop/request"
	"trashdrop/server"
	"trashdrop/syncer"
	"trashdrop/websocket"
)

func main() {
	cfg := config.Load()
	common.SetupLogging(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("Failed to open local cache %s: %v", cfg.CachePath, err)
	}
	defer local.Close()

	// Without MySQL the cache is the system of record.
	var remote syncer.Remote
	conn, err := common.DBConnect(ctx, common.DBParams{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
	})
	if err != nil {
		log.Warnf("Running local-only, database unavailable: %v", err)
	} else {
		defer conn.Close()
		if err := db.EnsureSchema(ctx, conn); err != nil {
			log.Fatalf("Failed to ensure database schema: %v", err)
		}
		remote = &db.Store{DB: conn}
	}

	store := syncer.New(local, remote)
	engine := request.NewEngine(store)

	if cfg.MockData {
		seedDummyRequests(ctx, store, cfg.MockDataCount)
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)

	publishers := events.Multi{hub}
	opts := []server.Option{server.WithHub(hub)}
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Warnf("Event publishing to RabbitMQ disabled: %v", err)
		} else {
			defer p.Close()
			log.Infof("Publishing events to RabbitMQ exchange %s", p.GetExchange())
			publishers = append(publishers, p.Events())
			opts = append(opts, server.WithHealthCheck("rabbitmq", p.IsConnected))
		}
	}
	if cfg.KafkaBroker != "" {
		p := kafka.NewProducer(cfg.KafkaBroker, cfg.KafkaTopic)
		defer p.Close()
		publishers = append(publishers, p)
	}

	opts = append(opts, server.WithEvents(publishers))
	if cfg.AcceptLimit > 0 {
		opts = append(opts, server.WithLimiter(newLimiter(ctx, cfg)))
	}
	if cfg.JWTSecret == "" && !cfg.MockAuth {
		log.Warn("JWT_SECRET is empty and MOCK_AUTH is off, every API call will be rejected")
	}

	go store.Run(ctx, cfg.SyncInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(cfg, engine, store, opts...).Router(),
	}
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if rep, err := store.Reconcile(shutdownCtx); err != nil {
		log.Warnf("Final reconciliation incomplete, %d requests still pending: %v", rep.Pending, err)
	}
	log.Info("Server exited")
}

// newLimiter prefers Redis so every instance shares the accept budget.
func newLimiter(ctx context.Context, cfg *config.Config) server.Limiter {
	if cfg.RedisAddress == "" {
		return server.NewMemoryLimiter(cfg.AcceptLimit, cfg.AcceptWindow)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis unavailable, limiting accepts per instance: %v", err)
		client.Close()
		return server.NewMemoryLimiter(cfg.AcceptLimit, cfg.AcceptWindow)
	}
	log.Infof("Connected to Redis at %s", cfg.RedisAddress)
	return server.NewRedisLimiter(client, "trashdrop:accept", cfg.AcceptLimit, cfg.AcceptWindow)
}

func seedDummyRequests(ctx context.Context, store *syncer.Store, n int) {
	existing, err := store.List(ctx, db.Filter{Limit: 1})
	if err != nil {
		log.Warnf("Skipping dummy data: %v", err)
		return
	}
	if len(existing) > 0 {
		return
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, r := range request.DummyRequests(n, request.DefaultCenter, rng, time.Now()) {
		if err := store.Save(ctx, r, ""); err != nil {
			log.Warnf("Failed to seed dummy request %s: %v", r.ID, err)
		}
	}
	log.Infof("Seeded %d dummy requests around %.4f,%.4f", n, request.DefaultCenter.Lat, request.DefaultCenter.Lng)
}
