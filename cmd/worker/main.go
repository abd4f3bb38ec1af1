package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"gigboard/internal/alerts"
	"gigboard/internal/clock"
	"gigboard/internal/config"
	"gigboard/internal/database"
	"gigboard/internal/metrics"
	"gigboard/internal/notify"
	"gigboard/internal/realtime"
	"gigboard/internal/tasks"
	"gigboard/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if !cfg.Redis.Enabled || cfg.Store.Driver != config.StorePostgres {
		log.Fatal("worker requires REDIS_ENABLED=true and STORE_DRIVER=postgres")
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	st := database.NewStore(db)
	log.Println("database connection ready for worker")

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	// worker 没有 WebSocket 连接，推送只写入 Redis，由 API 进程转发。
	publisher := realtime.NewRedisBroker(redisClient, nil, logger)
	clk := clock.NewMonotonic(clock.Real{})
	notifications := notify.NewService(st.Notifications, publisher, clk, logger)
	notifier := alerts.NewNotifier(st.Users, notifications, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 10,
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeJobAlerts, worker.NewJobAlertsHandler(st.Jobs, notifier, logger))

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
