// controllers/leg_balance_controller.go
package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
)

// LegBalanceController exposes the carry-forward ledger views: a member's
// own leg balances, the fragments still waiting for a match, and the
// admin overview of all ledgers.
type LegBalanceController struct {
	DB      *mongo.Client
	ledgers *repositories.LedgerRepository
}

func NewLegBalanceController(db *mongo.Client) *LegBalanceController {
	return &LegBalanceController{
		DB:      db,
		ledgers: repositories.NewLedgerRepository(db),
	}
}

// GetMyLegBalance returns the caller's ledger summary. A member whose
// subtree has produced no sales yet gets an all-zero summary rather than
// a 404.
func (lc *LegBalanceController) GetMyLegBalance(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := lc.ledgers.FindBySponsor(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load leg balance",
		})
	}
	if ledger == nil {
		ledger = models.NewLegLedger(userID)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Leg balance retrieved",
		Data:    ledger.Summary(),
	})
}

// GetLegFragments lists the caller's unconsumed sale fragments on one
// leg, in FIFO order.
func (lc *LegBalanceController) GetLegFragments(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	leg := c.QueryParam("leg")
	if leg != models.PositionLeft && leg != models.PositionRight {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "leg must be 'left' or 'right'",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledger, err := lc.ledgers.FindBySponsor(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load leg balance",
		})
	}
	if ledger == nil {
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Fragments retrieved",
			Data:    []models.SaleFragment{},
		})
	}

	fragments, err := ledger.UnmatchedFragments(leg)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Fragments retrieved",
		Data:    fragments,
	})
}

// GetAllLedgers pages through every sponsor's ledger summary. Admin only.
func (lc *LegBalanceController) GetAllLedgers(c echo.Context) error {
	page, _ := strconv.ParseInt(c.QueryParam("page"), 10, 64)
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ledgers, total, err := lc.ledgers.FindAll(ctx, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load ledgers",
		})
	}

	summaries := make([]models.LegSummary, 0, len(ledgers))
	for i := range ledgers {
		summaries = append(summaries, ledgers[i].Summary())
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Ledgers retrieved",
		Data: map[string]interface{}{
			"ledgers": summaries,
			"total":   total,
		},
	})
}
