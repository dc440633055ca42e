package main

import (
	"context"
	"log"
	"time"

	"civichat/config"
	"civichat/internal/auth"
	"civichat/internal/directory"
	"civichat/internal/domain/call"
	"civichat/internal/domain/conversation"
	"civichat/internal/domain/message"
	"civichat/internal/domain/presence"
	"civichat/internal/domain/user"
	"civichat/internal/handler"
	"civichat/internal/media"
	presencetracker "civichat/internal/presence"
	"civichat/internal/push"
	"civichat/internal/realtime"
	"civichat/internal/redis"
	"civichat/internal/repository"
	"civichat/internal/server"
	"civichat/internal/services"
	"civichat/internal/storage"
	"civichat/pkg/database"
	"civichat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()
	l := logger.New(cfg.AppMode)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&user.User{},
		&conversation.Conversation{},
		&conversation.Participant{},
		&message.Message{},
		&message.Attachment{},
		&call.Call{},
		&call.CallParticipant{},
		&presence.Record{},
		&push.Subscription{},
	); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRepository(db)
	presRepo := redis.NewPresenceStore(redisClient, 0)

	verifier := auth.NewVerifier(cfg.JWTSecret, userRepo)
	guard := services.NewGuard(convRepo)

	tokens := media.NewTokenProvider(cfg.MediaBridgeURL, cfg.MediaAPIKey, cfg.MediaAPISecret,
		time.Duration(cfg.MediaTokenTTLMin)*time.Minute)

	var presigner services.AttachmentPresigner
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(context.Background(), storage.S3Config{
			Region: cfg.S3Region,
			Bucket: cfg.S3Bucket,
		})
		if err != nil {
			log.Fatalf("Failed to set up object storage: %v", err)
		}
		presigner = s3Client
	}

	notifier := push.NewNotifier(db, push.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subject:    cfg.VAPIDSubject,
	})

	tracker := presencetracker.NewTracker(convRepo, presRepo)
	hub := realtime.NewHub(guard)
	tracker.BindBroadcaster(hub)
	hub.BindPresence(tracker)

	msgService := services.NewMessageService(msgRepo, guard, hub, presigner, notifier)
	convService := services.NewConversationService(convRepo, guard)
	callService := services.NewCallService(callRepo, userRepo, guard, hub, tokens,
		time.Duration(cfg.CallRingTimeoutSec)*time.Second)

	router := services.NewRouter(msgService, callService, tracker, guard, hub)
	hub.BindRouter(router)
	go hub.Run()

	syncCtx, stopSync := context.WithCancel(context.Background())
	if cfg.DirectoryURL != "" {
		dir := directory.NewHTTPDirectory(cfg.DirectoryURL, cfg.DirectoryToken)
		syncService := directory.NewSyncService(dir, convRepo)
		if _, err := syncService.Sync(syncCtx); err != nil {
			l.Warnf("Initial directory sync failed: %s", err)
		}
		go syncService.RunPeriodic(syncCtx, 15*time.Minute)
	}

	wsHandler := realtime.NewHandler(hub, verifier, time.Duration(cfg.WSAuthDeadlineSec)*time.Second)

	srv := server.New(cfg, l, db)
	srv.SetupRoutes(&server.Handlers{
		Conversation: handler.NewConversationHandler(convService),
		Message:      handler.NewMessageHandler(msgService),
		Call:         handler.NewCallHandler(callService),
		Presence:     handler.NewPresenceHandler(tracker),
		Push:         handler.NewPushHandler(notifier),
		WS:           wsHandler,
	}, verifier, redis.NewRateLimiter(redisClient))

	if err := srv.Start(func() {
		stopSync()
		callService.Stop()
		hub.Stop()
	}); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
