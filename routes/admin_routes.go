package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/landvest/landvest_backend/controllers"
	"github.com/landvest/landvest_backend/middleware"
)

// RegisterAdminRoutes sets up the admin-only routes
func RegisterAdminRoutes(e *echo.Echo, db *mongo.Client, plotController *controllers.PlotController) {
	legBalanceController := controllers.NewLegBalanceController(db)
	incomeController := controllers.NewMatchingIncomeController(db)

	r := e.Group("/api/admin")
	r.Use(middleware.JWTMiddleware())
	r.Use(middleware.AdminOnly())

	// Plot inventory
	r.POST("/plots", plotController.CreatePlot)
	r.POST("/plots/bulk", plotController.BulkCreatePlots)
	r.GET("/plots", plotController.ListPlots)
	r.DELETE("/plots/:id", plotController.DeletePlot)

	// Booking approvals
	r.GET("/bookings/pending", plotController.PendingBookings)
	r.PUT("/bookings/:id/approve", plotController.ApproveBooking)
	r.PUT("/bookings/:id/reject", plotController.RejectBooking)

	// Ledger and income oversight
	r.GET("/leg-balances", legBalanceController.GetAllLedgers)
	r.GET("/income", incomeController.GetAllIncome)
	r.PUT("/income/:id/status", incomeController.UpdateIncomeStatus)
}
