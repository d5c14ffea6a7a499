package router

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/waveline-app/notify-core/internal/channels"
	"github.com/waveline-app/notify-core/internal/dispatcher"
	"github.com/waveline-app/notify-core/internal/facade"
	"github.com/waveline-app/notify-core/internal/feed"
	"github.com/waveline-app/notify-core/internal/handlers"
	"github.com/waveline-app/notify-core/internal/middleware"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/realtime"
	"github.com/waveline-app/notify-core/internal/repositories"
	"github.com/waveline-app/notify-core/internal/watcher"
	"github.com/waveline-app/notify-core/pkg/config"
	"github.com/waveline-app/notify-core/pkg/firebase"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	log.Println("Global middleware configured.")
}

// SetupRoutes wires the notification core and configures all routes. The
// returned liveness manager owns every change-feed subscription; callers stop
// it on shutdown.
func SetupRoutes(ctx context.Context, e *echo.Echo, db *config.DB, firebaseApp *firebase.App, cfg *config.Config) (*feed.Liveness, error) {
	// AutoMigrate the tables this core owns. The domain tables (users,
	// messages, friend_requests, likes, comments) belong to the social
	// backend and are only observed here.
	err := db.Postgres.AutoMigrate(
		&models.NotificationRecord{},
		&models.ChannelSubscription{},
	)
	if err != nil {
		log.Fatalf("Failed to auto migrate models: %v", err)
	}
	log.Println("PostgreSQL auto-migrations completed.")

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Core wiring ---
	hub := realtime.NewHub()
	changeFeed := feed.NewRedisFeed(db.Redis)

	notificationRepo := repositories.NewPostgresNotificationRepository(db.Postgres, changeFeed)
	userRepo := repositories.NewPostgresUserRepository(db.Postgres)
	postRepo := repositories.NewMongoPostRepository(db.Mongo.Database("socialmedia"))
	subscriptionRepo := repositories.NewPostgresSubscriptionRepository(db.Postgres)

	fcmChannel := channels.NewFCMChannel(firebaseApp.MessagingClient, subscriptionRepo, hub, channels.FCMOptions{
		Icon:          cfg.PushIcon,
		Badge:         cfg.PushBadge,
		ClickLink:     cfg.PushClickLink,
		PromptTimeout: cfg.PermissionTimeout,
	})
	localChannel := channels.NewLocalAlertChannel(hub, hub, cfg.PermissionTimeout)

	byID := map[string]channels.Channel{
		fcmChannel.ID():   fcmChannel,
		localChannel.ID(): localChannel,
	}
	var ordered []channels.Channel
	for _, id := range cfg.ChannelPriority {
		if ch, ok := byID[id]; ok {
			ordered = append(ordered, ch)
		} else {
			log.Printf("Unknown channel %q in CHANNEL_PRIORITY, skipping", id)
		}
	}
	registry := channels.NewRegistry(ordered...)

	var liveness *feed.Liveness
	sessions := facade.NewManager(notificationRepo, registry, func() bool {
		return liveness != nil && liveness.Online()
	})
	liveness = feed.NewLiveness(changeFeed, changeFeed, sessions.RefreshAll, cfg.FeedPollInterval, cfg.FeedStaleAfter)

	eventWatcher := watcher.New(notificationRepo, userRepo, postRepo, watcher.NewRedisDeduper(db.Redis))
	if err := eventWatcher.Register(ctx, liveness); err != nil {
		return nil, err
	}
	delivery := dispatcher.New(registry, hub)
	if err := delivery.Register(ctx, liveness); err != nil {
		return nil, err
	}
	if err := sessions.Register(ctx, liveness); err != nil {
		return nil, err
	}

	if err := liveness.Start(ctx); err != nil {
		// The monitor keeps retrying; starting degraded is fine.
		log.Printf("Change feed unavailable at startup: %v", err)
	}
	log.Println("Change feed subscriptions configured.")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())
	log.Println("JWT authentication middleware applied to /api/v1 group.")

	notificationHandler := handlers.NewNotificationHandler(sessions)
	notificationHandler.RegisterNotificationRoutes(api)
	log.Println("Notification routes configured.")

	pushHandler := handlers.NewPushHandler(registry, sessions, hub)
	pushHandler.RegisterPushRoutes(api)
	log.Println("Push routes configured.")

	broadcastHandler := handlers.NewBroadcastHandler(notificationRepo)
	broadcastHandler.RegisterBroadcastRoutes(api)
	log.Println("Broadcast routes configured.")

	wsHandler := handlers.NewWSHandler(hub, sessions, localChannel)
	wsHandler.RegisterWSRoutes(api)
	log.Println("Websocket route configured.")

	log.Println("All routes configured.")
	return liveness, nil
}
