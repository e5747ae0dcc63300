package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"health-competition-system/handlers"
	"health-competition-system/middleware"
	"health-competition-system/models"
	"health-competition-system/services"
	"health-competition-system/utils"
	"health-competition-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // avatars only
	})

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitStorage(); err != nil {
		log.Fatal("failed to initialize object storage client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Competition{},
		&models.CompetitionParticipant{},
		&models.ActivityRecord{},
		&models.LeaderboardEntry{},
		&models.Transaction{},
		&models.CompetitionUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	rdb, err := services.NewRedisClient(redisURL)
	if err != nil {
		log.Fatal("failed to connect to redis:", err)
	}
	cache := services.NewLeaderboardCache(rdb)

	leaderboardService := services.NewLeaderboardService(db, cache, nil)
	leaderboardService.Weights = services.MixedWeightsFromEnv()
	hub := handlers.NewHub(leaderboardService)
	leaderboardService.Notifier = hub

	competitionService := services.NewCompetitionService(db)
	fitnessService := services.NewFitnessService(db, leaderboardService)
	prizeService := services.NewPrizeService(db, leaderboardService)
	userService := services.NewUserService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run()

	// Profile mirror sync from the identity service.
	identityServiceURL := os.Getenv("IDENTITY_SERVICE_URL")
	serviceToken := os.Getenv("COMPETITION_SERVICE_TOKEN")
	if identityServiceURL != "" && serviceToken != "" {
		syncWorker := workers.NewProfileSyncWorker(db, identityServiceURL, "/api/v1/public/profiles", serviceToken)
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  IDENTITY_SERVICE_URL / COMPETITION_SERVICE_TOKEN not set, profile sync disabled")
	}

	if strings.ToLower(os.Getenv("AUTO_SETTLE")) == "true" {
		settlementWorker := workers.NewSettlementWorker(db, prizeService)
		go workers.PollUnsettled(ctx, settlementWorker, 1*time.Minute)
		log.Println("✅ Auto-settlement polling running (every 1m)")
	}

	competitionService.StartStatusScheduler()

	handlers.SetupRoutes(app, competitionService, fitnessService, leaderboardService, prizeService, userService)

	// Realtime leaderboard channel.
	app.Use("/ws", handlers.UpgradeMiddleware())
	app.Get("/ws/leaderboard/:competitionId", middleware.WSAuthMiddleware(), hub.ServeWS())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.ShutdownWithTimeout(10 * time.Second)
}
