package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"tlu-support/internal/config"
	"tlu-support/internal/handler"
	"tlu-support/internal/realtime"
	"tlu-support/internal/repository"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

// stores groups the repositories behind the configured storage driver.
type stores struct {
	tx            services.Transactor
	users         services.UserRepository
	students      services.StudentRepository
	conversations services.ConversationRepository
	messages      services.MessageRepository
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to set up logger")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, shutdownManager := utils.NewShutdownManager(context.Background(), cfg.Server.ShutdownTimeout, logger)
	shutdownManager.StartListening()

	st, err := openStores(ctx, cfg, shutdownManager, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage).Msg("storage unavailable")
	}

	// Redis: profile cache, token blacklist, support events
	redisClient, err := utils.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Redis connection failed")
	}
	shutdownManager.Register(func(ctx context.Context) error {
		logger.Info().Msg("[SHUTDOWN] Closing Redis connection...")
		return redisClient.Close()
	})

	objectStorage, err := utils.NewMinioStorage(ctx, cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
		cfg.Minio.Bucket, cfg.Minio.PublicURL, cfg.Minio.UseSSL)
	if err != nil {
		logger.Fatal().Err(err).Msg("MinIO init failed")
	}

	mailer := utils.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	jwtUtil := utils.NewJWTUtil(cfg.JWT.Secret, cfg.JWT.TTL)

	hub := realtime.NewHub(logger)
	shutdownManager.Register(func(ctx context.Context) error {
		logger.Info().Msg("[SHUTDOWN] Closing websocket connections...")
		return hub.Shutdown(ctx)
	})

	media := services.NewMediaService(objectStorage, cfg.Chat.MaxUploadBytes, logger)
	notifier := services.NewSupportNotifier(redisClient, cfg.Chat.SupportEventsKey, logger)

	router := handler.SetupRouter(handler.Deps{
		Auth:     services.NewAuthService(st.tx, st.users, st.students, jwtUtil, redisClient, mailer, logger),
		Students: services.NewStudentService(st.users, st.students, media, redisClient, cfg.Chat.ProfileCacheTTL, logger),
		Chat: services.NewChatService(st.tx, st.conversations, st.messages, st.users, hub, notifier, services.ChatServiceOptions{
			WriteTimeout: cfg.Chat.WriteTimeout,
			MaxRetries:   cfg.Chat.ConflictRetries,
		}, logger),
		Lifecycle:      services.NewLifecycleService(st.conversations, st.users, hub, cfg.Chat.ConflictRetries, logger),
		Media:          media,
		Hub:            hub,
		JWT:            jwtUtil,
		Blacklist:      redisClient,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            logger,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("storage", cfg.Storage).Msg("student support service running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// registered last, so it stops before the hub and the stores
	shutdownManager.Register(func(ctx context.Context) error {
		logger.Info().Msg("[SHUTDOWN] Shutting down HTTP server...")
		return server.Shutdown(ctx)
	})

	<-shutdownManager.Done()
}

func openStores(ctx context.Context, cfg *config.Config, sm *utils.ShutdownManager, logger zerolog.Logger) (*stores, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		mem := repository.NewMemoryStore()
		return &stores{tx: mem, users: mem, students: mem, conversations: mem, messages: mem}, nil

	case config.StorageMongo:
		client, err := utils.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		sm.Register(func(ctx context.Context) error {
			logger.Info().Msg("[SHUTDOWN] Closing MongoDB connection...")
			return client.Disconnect(ctx)
		})

		db := client.Database(cfg.Mongo.DBName)
		if err := repository.EnsureIndexes(ctx, db); err != nil {
			return nil, err
		}
		return mongoStores(client, db), nil
	}
	return nil, errors.New("unknown storage driver " + cfg.Storage)
}

func mongoStores(client *mongo.Client, db *mongo.Database) *stores {
	chat := repository.NewChatRepository(db)
	students := repository.NewStudentRepository(db)
	return &stores{
		tx:            repository.NewMongoTransactor(client),
		users:         repository.NewUserRepository(db),
		students:      students,
		conversations: chat,
		messages:      chat,
	}
}
