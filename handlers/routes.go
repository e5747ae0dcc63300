package handlers

import (
	"health-competition-system/middleware"
	"health-competition-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes wires every HTTP endpoint under /api/v1.
func SetupRoutes(
	app *fiber.App,
	competitionService *services.CompetitionService,
	fitnessService *services.FitnessService,
	leaderboardService *services.LeaderboardService,
	prizeService *services.PrizeService,
	userService *services.UserService,
) {
	// 🔓 Public routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/api/v1/users/search", userService.SearchUsers)

	// 🔐 Authenticated routes
	api := app.Group("/api/v1", middleware.AuthMiddleware())

	// Competitions
	api.Post("/competitions", competitionService.CreateCompetition)
	api.Get("/competitions", competitionService.GetCompetitions)
	api.Get("/competitions/:id", competitionService.GetCompetitionByID)
	api.Post("/competitions/:id/join", competitionService.JoinCompetition)

	// Leaderboard
	api.Get("/leaderboard/:competitionId", leaderboardService.GetLeaderboardHandler)
	api.Get("/leaderboard/:competitionId/rank/:userId", leaderboardService.GetUserRankHandler)
	api.Post("/leaderboard/update", fitnessService.UpdateScoreHandler)

	// Fitness ingestion
	api.Post("/fitness/sync", fitnessService.SyncHandler)
	api.Get("/fitness/stats/:userId", fitnessService.UserStatsHandler)

	// Prizes
	api.Post("/prizes/calculate/:competitionId", prizeService.CalculateHandler)
	api.Post("/prizes/distribute/:competitionId", prizeService.DistributeHandler)

	// Users
	api.Get("/users/:id/competitions", competitionService.GetUserCompetitions)
	api.Get("/users/:id/transactions", userService.GetUserTransactions)
	api.Post("/users/:id/avatar", userService.UploadAvatar)
}
