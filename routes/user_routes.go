package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/landvest/landvest_backend/controllers"
	"github.com/landvest/landvest_backend/middleware"
	"github.com/landvest/landvest_backend/websocket"
)

// RegisterUserRoutes sets up all member-facing protected routes
func RegisterUserRoutes(e *echo.Echo, db *mongo.Client, userController *controllers.UserController, plotController *controllers.PlotController, hub *websocket.Hub) {
	legBalanceController := controllers.NewLegBalanceController(db)
	incomeController := controllers.NewMatchingIncomeController(db)

	// Protected routes group
	r := e.Group("/api")
	r.Use(middleware.JWTMiddleware())

	// Profile and team routes
	r.GET("/users/profile", userController.GetProfile)
	r.GET("/users/team", userController.GetDirectTeam)
	r.GET("/users/referral", userController.GetReferralInfo)
	r.GET("/users/referral/qr", userController.GetReferralQR)

	// Plot routes
	r.GET("/plots/available", plotController.AvailablePlots)
	r.POST("/plots/book", plotController.BookPlot)
	r.GET("/plots/my-bookings", plotController.MyBookings)

	// Leg balance routes
	r.GET("/leg-balance", legBalanceController.GetMyLegBalance)
	r.GET("/leg-balance/fragments", legBalanceController.GetLegFragments)

	// Income routes
	r.GET("/income", incomeController.GetMyIncome)
	r.GET("/income/summary", incomeController.GetMyIncomeSummary)

	// WebSocket notifications
	r.GET("/ws", func(c echo.Context) error {
		userID, ok := c.Get("userId").(string)
		if !ok || userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid user token")
		}
		return websocket.HandleWebSocket(c, hub, userID)
	})
}
