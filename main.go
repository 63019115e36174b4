package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/landvest/landvest_backend/config"
	"github.com/landvest/landvest_backend/controllers"
	"github.com/landvest/landvest_backend/middleware"
	"github.com/landvest/landvest_backend/repositories"
	"github.com/landvest/landvest_backend/routes"
	"github.com/landvest/landvest_backend/services"
	"github.com/landvest/landvest_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis
	redisClient := config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()

	// Create WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Build the commission pipeline
	userRepo := repositories.NewUserRepository(client)

	// Seed the admin account (and tree root) if configured
	if err := services.EnsureAdminAccount(context.Background(), userRepo); err != nil {
		log.Printf("Admin bootstrap failed: %v", err)
	}
	ledgerRepo := repositories.NewLedgerRepository(client)
	incomeRepo := repositories.NewIncomeRepository(client)
	locker := services.NewRedisLocker(redisClient)
	matcher := services.NewMatchingService(userRepo, ledgerRepo, incomeRepo, locker, wsHub)
	saleQueue := services.NewSaleQueue(redisClient)

	// Start the retry worker for sales whose chain walk could not finish
	go saleQueue.Run(context.Background(), matcher)

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	customValidator := &CustomValidator{validator: validator.New()}
	e.Validator = customValidator

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "Landvest Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize controllers
	authController := controllers.NewAuthController(client)
	userController := controllers.NewUserController(client)
	plotController := controllers.NewPlotController(client, matcher, saleQueue, wsHub)

	// Register routes
	routes.RegisterAuthRoutes(e, authController)
	routes.RegisterUserRoutes(e, client, userController, plotController, wsHub)
	routes.RegisterAdminRoutes(e, client, plotController)

	// Start the server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Commission rate: %s%%", matcher.CommissionRate().String())
	e.Logger.Fatal(e.Start(":" + port))
}
