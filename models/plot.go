// models/plot.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Plot statuses
const (
	PlotStatusAvailable = "available"
	PlotStatusPending   = "pending"
	PlotStatusBooked    = "booked"
)

// Booking statuses
const (
	BookingStatusPending  = "pending"
	BookingStatusApproved = "approved"
	BookingStatusRejected = "rejected"
)

// Pricing amounts are stored in minor units (paise).
type Pricing struct {
	BasePrice  int64 `json:"basePrice" bson:"basePrice"`
	TotalPrice int64 `json:"totalPrice" bson:"totalPrice"`
}

// BookingDetails is embedded in a plot once a member books it.
type BookingDetails struct {
	BuyerID     primitive.ObjectID  `json:"buyerId" bson:"buyerId"`
	BookingDate time.Time           `json:"bookingDate" bson:"bookingDate"`
	Status      string              `json:"status" bson:"status"`
	ApprovedBy  *primitive.ObjectID `json:"approvedBy,omitempty" bson:"approvedBy,omitempty"`
	ApprovedAt  *time.Time          `json:"approvedAt,omitempty" bson:"approvedAt,omitempty"`
	RejectedBy  *primitive.ObjectID `json:"rejectedBy,omitempty" bson:"rejectedBy,omitempty"`
	RejectedAt  *time.Time          `json:"rejectedAt,omitempty" bson:"rejectedAt,omitempty"`
}

// Plot model
type Plot struct {
	ID             primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	PlotName       string             `json:"plotName" bson:"plotName"`
	PlotNumber     string             `json:"plotNumber" bson:"plotNumber"`
	SiteName       string             `json:"siteName,omitempty" bson:"siteName,omitempty"`
	City           string             `json:"city,omitempty" bson:"city,omitempty"`
	SizeSqft       float64            `json:"sizeSqft,omitempty" bson:"sizeSqft,omitempty"`
	Pricing        Pricing            `json:"pricing" bson:"pricing"`
	Status         string             `json:"status" bson:"status"`
	BookingDetails *BookingDetails    `json:"bookingDetails,omitempty" bson:"bookingDetails,omitempty"`
	IsActive       bool               `json:"isActive" bson:"isActive"`
	CreatedBy      primitive.ObjectID `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// CreatePlotRequest accepts prices as decimal values (e.g. "2500000.00").
type CreatePlotRequest struct {
	PlotName   string          `json:"plotName" validate:"required"`
	PlotNumber string          `json:"plotNumber" validate:"required"`
	SiteName   string          `json:"siteName,omitempty"`
	City       string          `json:"city,omitempty"`
	SizeSqft   float64         `json:"sizeSqft,omitempty"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	TotalPrice decimal.Decimal `json:"totalPrice" validate:"required"`
}

// BulkCreatePlotsRequest creates plotCount copies numbered sequentially from
// startPlotNumber.
type BulkCreatePlotsRequest struct {
	BasePlot        CreatePlotRequest `json:"basePlot" validate:"required"`
	PlotCount       int               `json:"plotCount" validate:"required,gt=0"`
	StartPlotNumber string            `json:"startPlotNumber" validate:"required"`
}

type BookPlotRequest struct {
	PlotID string `json:"plotId" validate:"required"`
}
