package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"

	"github.com/waveline-app/notify-core/internal/router"
	"github.com/waveline-app/notify-core/pkg/config"
	"github.com/waveline-app/notify-core/pkg/firebase"
	"github.com/waveline-app/notify-core/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Structured logging
	logger.InitLogger()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize databases: %v", err)
	}
	defer db.CloseDB() // Ensure database connections are closed when main exits

	// Initialize Firebase Cloud Messaging
	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	// Create Echo instance
	e := echo.New()

	// Setup global middleware
	router.SetupMiddleware(e)

	// Wire the notification core and routes
	liveness, err := router.SetupRoutes(ctx, e, db, firebaseApp, cfg)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}
	defer liveness.Stop()

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
