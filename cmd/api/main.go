package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"gigboard/internal/alerts"
	"gigboard/internal/api"
	"gigboard/internal/application"
	"gigboard/internal/auth"
	"gigboard/internal/chat"
	"gigboard/internal/clock"
	"gigboard/internal/config"
	"gigboard/internal/database"
	"gigboard/internal/engagement"
	"gigboard/internal/lifecycle"
	"gigboard/internal/notify"
	"gigboard/internal/realtime"
	"gigboard/internal/storage"
	"gigboard/internal/store"
	"gigboard/internal/store/memory"
	"gigboard/internal/sweeper"
	"gigboard/internal/tasks"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	clk := clock.NewMonotonic(clock.Real{})
	hub := realtime.NewHub(64, logger)

	var (
		publisher   realtime.Publisher = hub
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("close redis client failed", slog.Any("error", err))
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("ping redis: %v", err)
		}

		broker := realtime.NewRedisBroker(redisClient, hub, logger)
		publisher = broker
		go func() {
			if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime broker stopped", slog.Any("error", err))
			}
		}()
		logger.Info("redis realtime broker ready", slog.String("redis_addr", cfg.Redis.Addr()))
	}

	authService, err := auth.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	notifications := notify.NewService(st.Notifications, publisher, clk, logger)
	chats := chat.NewService(st.Messages, st.Users, publisher, clk, logger)

	var dispatcher lifecycle.AlertDispatcher
	switch cfg.Alerts.Mode {
	case config.AlertsQueue:
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		defer asynqClient.Close()
		dispatcher = tasks.NewQueueDispatcher(asynqClient, logger)
	default:
		dispatcher = alerts.NewNotifier(st.Users, notifications, logger)
	}
	logger.Info("job alerts dispatcher ready", slog.String("mode", cfg.Alerts.Mode))

	jobs := lifecycle.NewManager(st.Jobs, dispatcher, clk, logger)

	attachments, err := openAttachments(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init attachment storage: %v", err)
	}

	sweep := sweeper.New(jobs, clk, cfg.Sweeper.Interval, logger)
	if err := sweep.Start(ctx); err != nil {
		log.Fatalf("start sweeper: %v", err)
	}

	deps := api.Deps{
		Store:         st,
		Auth:          authService,
		Jobs:          jobs,
		Applications:  application.NewService(st, notifications, chats, clk, logger),
		Notifications: notifications,
		Chat:          chats,
		Engagement:    engagement.NewService(st, notifications, clk, logger),
		Hub:           hub,
		Attachments:   attachments,
		Clock:         clk,
		Config:        cfg,
		Logger:        logger,
	}
	if redisClient != nil {
		deps.RateCounter = redisClient
	}

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, deps)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr), slog.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
	select {
	case <-sweep.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("sweeper did not stop before shutdown timeout")
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if cfg.Store.Driver != config.StorePostgres {
		logger.Info("using in-memory store")
		return memory.New(), nil
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database connection ready",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("db", cfg.Database.Name),
	)
	return database.NewStore(db), nil
}

func openAttachments(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Attachments, error) {
	var objects storage.ObjectStore
	switch cfg.Storage.Driver {
	case config.StorageMinIO:
		client, err := storage.NewClient(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		logger.Info("minio storage ready", slog.String("bucket", cfg.MinIO.Bucket))
		objects = client
	case config.StorageS3:
		s3Store, err := storage.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		logger.Info("s3 storage ready", slog.String("bucket", cfg.S3.Bucket), slog.String("region", cfg.S3.Region))
		objects = s3Store
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalDir)
		if err != nil {
			return nil, err
		}
		logger.Info("local storage ready", slog.String("dir", cfg.Storage.LocalDir))
		objects = local
	}

	var scanner storage.Scanner = storage.NopScanner{}
	if cfg.Clamd.Addr != "" {
		scanner = storage.NewClamdScanner(cfg.Clamd.Addr)
		logger.Info("clamd scanning enabled", slog.String("addr", cfg.Clamd.Addr))
	}
	return storage.NewAttachments(objects, scanner, cfg.Upload.MaxBytes, logger), nil
}
