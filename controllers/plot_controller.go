// controllers/plot_controller.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/landvest/landvest_backend/config"
	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
	"github.com/landvest/landvest_backend/services"
	"github.com/landvest/landvest_backend/utils"
	"github.com/landvest/landvest_backend/websocket"
)

// PlotController manages the plot inventory and the booking lifecycle.
// Approving a booking is the event that fires the commission pipeline.
type PlotController struct {
	DB      *mongo.Client
	users   *repositories.UserRepository
	matcher *services.MatchingService
	queue   *services.SaleQueue
	hub     *websocket.Hub
}

func NewPlotController(db *mongo.Client, matcher *services.MatchingService, queue *services.SaleQueue, hub *websocket.Hub) *PlotController {
	return &PlotController{
		DB:      db,
		users:   repositories.NewUserRepository(db),
		matcher: matcher,
		queue:   queue,
		hub:     hub,
	}
}

func (pc *PlotController) plots() *mongo.Collection {
	return config.GetCollection(pc.DB, "plots")
}

func plotFromRequest(req models.CreatePlotRequest, adminID primitive.ObjectID) (*models.Plot, error) {
	basePrice, err := utils.ToMinorUnits(req.BasePrice)
	if err != nil {
		return nil, err
	}
	totalPrice, err := utils.ToMinorUnits(req.TotalPrice)
	if err != nil {
		return nil, err
	}
	if totalPrice <= 0 {
		return nil, models.ErrInvalidAmount
	}

	now := time.Now()
	return &models.Plot{
		PlotName:   req.PlotName,
		PlotNumber: req.PlotNumber,
		SiteName:   req.SiteName,
		City:       req.City,
		SizeSqft:   req.SizeSqft,
		Pricing:    models.Pricing{BasePrice: basePrice, TotalPrice: totalPrice},
		Status:     models.PlotStatusAvailable,
		IsActive:   true,
		CreatedBy:  adminID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// CreatePlot adds a single plot to the inventory. Admin only.
func (pc *PlotController) CreatePlot(c echo.Context) error {
	var req models.CreatePlotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	adminID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	plot, err := plotFromRequest(req, adminID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := pc.plots().InsertOne(ctx, plot)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Plot number already exists",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create plot",
		})
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		plot.ID = oid
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Plot created",
		Data:    plot,
	})
}

// BulkCreatePlots creates plotCount copies of a base plot with sequential
// plot numbers. Admin only.
func (pc *PlotController) BulkCreatePlots(c echo.Context) error {
	var req models.BulkCreatePlotsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}
	if req.PlotCount > 500 {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Cannot create more than 500 plots at once",
		})
	}

	startNumber, err := strconv.Atoi(req.StartPlotNumber)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "startPlotNumber must be numeric",
		})
	}

	adminID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	docs := make([]interface{}, 0, req.PlotCount)
	for i := 0; i < req.PlotCount; i++ {
		plotReq := req.BasePlot
		plotReq.PlotNumber = fmt.Sprintf("%d", startNumber+i)
		plotReq.PlotName = fmt.Sprintf("%s-%d", req.BasePlot.PlotName, startNumber+i)

		plot, err := plotFromRequest(plotReq, adminID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: err.Error(),
			})
		}
		docs = append(docs, plot)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := pc.plots().InsertMany(ctx, docs)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "One or more plot numbers already exist",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create plots",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: fmt.Sprintf("%d plots created", len(result.InsertedIDs)),
	})
}

// ListPlots pages through the inventory, optionally filtered by status.
func (pc *PlotController) ListPlots(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"isActive": true}
	if status := c.QueryParam("status"); status != "" {
		filter["status"] = status
	}

	page, _ := strconv.ParseInt(c.QueryParam("page"), 10, 64)
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	total, err := pc.plots().CountDocuments(ctx, filter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to count plots",
		})
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "plotNumber", Value: 1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := pc.plots().Find(ctx, filter, opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load plots",
		})
	}
	defer cursor.Close(ctx)

	plots := []models.Plot{}
	if err := cursor.All(ctx, &plots); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to decode plots",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Plots retrieved",
		Data: map[string]interface{}{
			"plots": plots,
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// AvailablePlots lists plots open for booking.
func (pc *PlotController) AvailablePlots(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "plotNumber", Value: 1}})
	cursor, err := pc.plots().Find(ctx, bson.M{
		"isActive": true,
		"status":   models.PlotStatusAvailable,
	}, opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load plots",
		})
	}
	defer cursor.Close(ctx)

	plots := []models.Plot{}
	if err := cursor.All(ctx, &plots); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to decode plots",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Available plots retrieved",
		Data:    plots,
	})
}

// BookPlot places a pending booking on an available plot. The conditional
// update makes concurrent bookings of the same plot race safely: only one
// request finds the plot still available.
func (pc *PlotController) BookPlot(c echo.Context) error {
	var req models.BookPlotRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	plotID, err := primitive.ObjectIDFromHex(req.PlotID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid plot id",
		})
	}

	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status": models.PlotStatusPending,
		"bookingDetails": models.BookingDetails{
			BuyerID:     userID,
			BookingDate: now,
			Status:      models.BookingStatusPending,
		},
		"updatedAt": now,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var plot models.Plot
	err = pc.plots().FindOneAndUpdate(ctx, bson.M{
		"_id":      plotID,
		"isActive": true,
		"status":   models.PlotStatusAvailable,
	}, update, opts).Decode(&plot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Plot is not available for booking",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to book plot",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Plot booked, pending admin approval",
		Data:    plot,
	})
}

// MyBookings lists the caller's bookings in any state.
func (pc *PlotController) MyBookings(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "bookingDetails.bookingDate", Value: -1}})
	cursor, err := pc.plots().Find(ctx, bson.M{"bookingDetails.buyerId": userID}, opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load bookings",
		})
	}
	defer cursor.Close(ctx)

	plots := []models.Plot{}
	if err := cursor.All(ctx, &plots); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to decode bookings",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Bookings retrieved",
		Data:    plots,
	})
}

// PendingBookings lists bookings awaiting admin review.
func (pc *PlotController) PendingBookings(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "bookingDetails.bookingDate", Value: 1}})
	cursor, err := pc.plots().Find(ctx, bson.M{
		"bookingDetails.status": models.BookingStatusPending,
	}, opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load pending bookings",
		})
	}
	defer cursor.Close(ctx)

	plots := []models.Plot{}
	if err := cursor.All(ctx, &plots); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to decode bookings",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Pending bookings retrieved",
		Data:    plots,
	})
}

// ApproveBooking confirms a pending booking and runs the commission
// pipeline for the sale. The conditional update guarantees a booking is
// approved at most once even under concurrent admin clicks; only the
// winning request fires the pipeline.
func (pc *PlotController) ApproveBooking(c echo.Context) error {
	plotID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid plot id",
		})
	}

	adminID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user token",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":                    models.PlotStatusBooked,
		"bookingDetails.status":     models.BookingStatusApproved,
		"bookingDetails.approvedBy": adminID,
		"bookingDetails.approvedAt": now,
		"updatedAt":                 now,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var plot models.Plot
	err = pc.plots().FindOneAndUpdate(ctx, bson.M{
		"_id":                   plotID,
		"bookingDetails.status": models.BookingStatusPending,
	}, update, opts).Decode(&plot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "No pending booking found for this plot",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to approve booking",
		})
	}

	buyerName := ""
	if buyer, err := pc.users.FindByID(ctx, plot.BookingDetails.BuyerID); err == nil {
		buyerName = buyer.FullName
	}

	event := services.SaleApprovedEvent{
		EventID:    uuid.NewString(),
		SaleID:     plot.ID,
		PlotNumber: plot.PlotNumber,
		BuyerID:    plot.BookingDetails.BuyerID,
		BuyerName:  buyerName,
		Amount:     plot.Pricing.TotalPrice,
		SaleDate:   *plot.BookingDetails.ApprovedAt,
	}

	message := "Booking approved, commissions credited"
	if err := pc.matcher.ProcessSaleApproved(ctx, event); err != nil {
		log.Printf("Commission pipeline for sale %s: %v", plot.ID.Hex(), err)
		if queueErr := pc.queue.Enqueue(ctx, event); queueErr != nil {
			log.Printf("Failed to queue sale %s for retry: %v", plot.ID.Hex(), queueErr)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Booking approved but commission processing failed",
				Data:    plot,
			})
		}
		message = "Booking approved, commissions queued for processing"
	}

	if pc.hub != nil {
		pc.hub.NotifyBookingStatus(plot.BookingDetails.BuyerID.Hex(), true, plot)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: message,
		Data:    plot,
	})
}

// rejectBookingUpdate builds the update that returns a plot to the
// available pool while keeping the rejected booking on the document, so
// the buyer's booking history shows the rejection.
func rejectBookingUpdate(adminID primitive.ObjectID, now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"status":                    models.PlotStatusAvailable,
		"bookingDetails.status":     models.BookingStatusRejected,
		"bookingDetails.rejectedBy": adminID,
		"bookingDetails.rejectedAt": now,
		"updatedAt":                 now,
	}}
}

// RejectBooking returns a pending plot to the available pool.
func (pc *PlotController) RejectBooking(c echo.Context) error {
	plotID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid plot id",
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

	var current models.Plot
	if err := pc.plots().FindOne(ctx, bson.M{
		"_id":                   plotID,
		"bookingDetails.status": models.BookingStatusPending,
	}).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "No pending booking found for this plot",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load booking",
		})
	}

	buyerID := current.BookingDetails.BuyerID

	update := rejectBookingUpdate(adminID, time.Now())
	if _, err := pc.plots().UpdateOne(ctx, bson.M{"_id": plotID}, update); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to reject booking",
		})
	}

	log.Printf("Booking on plot %s rejected by admin %s", plotID.Hex(), adminID.Hex())
	if pc.hub != nil {
		pc.hub.NotifyBookingStatus(buyerID.Hex(), false, current)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Booking rejected, plot returned to available pool",
	})
}

// DeletePlot soft-deletes an unbooked plot. Admin only.
func (pc *PlotController) DeletePlot(c echo.Context) error {
	plotID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid plot id",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := pc.plots().UpdateOne(ctx, bson.M{
		"_id":    plotID,
		"status": models.PlotStatusAvailable,
	}, bson.M{"$set": bson.M{
		"isActive":  false,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to delete plot",
		})
	}
	if result.MatchedCount == 0 {
		return c.JSON(http.StatusConflict, models.Response{
			Status:  http.StatusConflict,
			Message: "Plot not found or not deletable",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Plot deleted",
	})
}
