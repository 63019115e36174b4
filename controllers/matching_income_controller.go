// controllers/matching_income_controller.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
)

// MatchingIncomeController serves commission record views and the admin
// payout-status workflow.
type MatchingIncomeController struct {
	DB      *mongo.Client
	incomes *repositories.IncomeRepository
}

func NewMatchingIncomeController(db *mongo.Client) *MatchingIncomeController {
	return &MatchingIncomeController{
		DB:      db,
		incomes: repositories.NewIncomeRepository(db),
	}
}

// GetMyIncome pages through the caller's commission records.
// Query params: type, status, page, limit.
func (mc *MatchingIncomeController) GetMyIncome(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	page, _ := strconv.ParseInt(c.QueryParam("page"), 10, 64)
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, total, err := mc.incomes.FindByUser(ctx, userID, c.QueryParam("type"), c.QueryParam("status"), page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load income records",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Income records retrieved",
		Data: map[string]interface{}{
			"records": records,
			"total":   total,
		},
	})
}

// GetMyIncomeSummary returns the caller's aggregate income totals.
func (mc *MatchingIncomeController) GetMyIncomeSummary(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := mc.incomes.Summary(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to build income summary",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Income summary retrieved",
		Data:    summary,
	})
}

// GetAllIncome pages through every member's records. Admin only.
func (mc *MatchingIncomeController) GetAllIncome(c echo.Context) error {
	page, _ := strconv.ParseInt(c.QueryParam("page"), 10, 64)
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, total, err := mc.incomes.FindAll(ctx, c.QueryParam("type"), c.QueryParam("status"), page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load income records",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Income records retrieved",
		Data: map[string]interface{}{
			"records": records,
			"total":   total,
		},
	})
}

var allowedStatusTransitions = map[string]string{
	models.IncomeStatusApproved: models.IncomeStatusCalculated,
	models.IncomeStatusCredited: models.IncomeStatusApproved,
	models.IncomeStatusPaid:     models.IncomeStatusCredited,
}

// UpdateIncomeStatus advances a record one step along
// calculated -> approved -> credited -> paid. Admin only.
func (mc *MatchingIncomeController) UpdateIncomeStatus(c echo.Context) error {
	recordID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid record id",
		})
	}

	var body struct {
		Status string `json:"status" validate:"required"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	requiredPrev, ok := allowedStatusTransitions[body.Status]
	if !ok {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "status must be approved, credited or paid",
		})
	}

	adminID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record, err := mc.incomes.UpdateStatusFrom(ctx, recordID, requiredPrev, body.Status, adminID)
	if err != nil {
		if errors.Is(err, repositories.ErrIncomeNotFound) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Record not found or not in the required state",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update record",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Income record updated",
		Data:    record,
	})
}
