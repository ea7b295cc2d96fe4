package main

import (
	"chatrelaygo/internal/audit"
	"chatrelaygo/internal/config"
	"chatrelaygo/internal/database/db_client"
	"chatrelaygo/internal/http/http_server"
	"chatrelaygo/internal/ratelimit"
	"chatrelaygo/internal/redis/redis_client"
	"chatrelaygo/internal/relay"
	"chatrelaygo/internal/ws"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Optional Redis for join rate limiting
	var limiter *ratelimit.Limiter
	if cfg.RedisHost != "" {
		redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		limiter = ratelimit.NewLimiter(redisClient, cfg.JoinRateLimit,
			time.Duration(cfg.JoinRateWindowSec)*time.Second)
		Log.Debug("Join rate limiting enabled")
	}

	// 4. Optional Postgres for the session audit trail
	var recorder *audit.Recorder
	if cfg.PostgresHost != "" {
		pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort,
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()
		recorder = audit.NewRecorder(pgDb)
		recorder.Run(ctx, time.Duration(cfg.AuditFlushSec)*time.Second)
		Log.Debug("Session audit enabled")
	}

	// 5. Room registry + WS server
	registry := relay.NewRegistry()
	wsSrv := ws.NewWsServer(registry, limiter, recorder, cfg.WsReadLimit)

	// 6. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, registry)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
