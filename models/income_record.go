// models/income_record.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Income types
const (
	IncomeTypePersonalSale  = "personal_sale"
	IncomeTypeMatchingBonus = "matching_bonus"
)

// Leg attribution on income records
const (
	LegTypePersonal = "personal"
)

// Income record statuses. Records are immutable except for this status,
// which an admin advances.
const (
	IncomeStatusCalculated = "calculated"
	IncomeStatusApproved   = "approved"
	IncomeStatusCredited   = "credited"
	IncomeStatusPaid       = "paid"
)

// IncomeRecord is one commission entry. Exactly one record exists per
// (userId, sourceSaleId, incomeType); a unique index enforces this so
// replayed sale events cannot double-credit. Amounts are minor units.
type IncomeRecord struct {
	ID                   primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	UserID               primitive.ObjectID  `json:"userId" bson:"userId"`
	IncomeType           string              `json:"incomeType" bson:"incomeType"`
	SourceSaleID         primitive.ObjectID  `json:"sourceSaleId" bson:"sourceSaleId"`
	PlotNumber           string              `json:"plotNumber" bson:"plotNumber"`
	BuyerID              primitive.ObjectID  `json:"buyerId" bson:"buyerId"`
	BuyerName            string              `json:"buyerName" bson:"buyerName"`
	LegType              string              `json:"legType" bson:"legType"` // "personal", "left" or "right"
	SaleAmount           int64               `json:"saleAmount,omitempty" bson:"saleAmount,omitempty"`
	BalancedAmount       int64               `json:"balancedAmount,omitempty" bson:"balancedAmount,omitempty"`
	CommissionPercentage string              `json:"commissionPercentage" bson:"commissionPercentage"`
	IncomeAmount         int64               `json:"incomeAmount" bson:"incomeAmount"`
	PairedFragments      []ConsumedSlice     `json:"pairedFragments,omitempty" bson:"pairedFragments,omitempty"`
	SaleDate             time.Time           `json:"saleDate" bson:"saleDate"`
	Status               string              `json:"status" bson:"status"`
	ApprovedBy           *primitive.ObjectID `json:"approvedBy,omitempty" bson:"approvedBy,omitempty"`
	ApprovedAt           *time.Time          `json:"approvedAt,omitempty" bson:"approvedAt,omitempty"`
	CreatedAt            time.Time           `json:"createdAt" bson:"createdAt"`
}

// IncomeSummary aggregates a user's records for the dashboard view.
type IncomeSummary struct {
	TotalRecords        int   `json:"totalRecords"`
	TotalIncome         int64 `json:"totalIncome"`
	PaidIncome          int64 `json:"paidIncome"`
	PendingIncome       int64 `json:"pendingIncome"`
	PersonalSaleIncome  int64 `json:"personalSaleIncome"`
	MatchingBonusIncome int64 `json:"matchingBonusIncome"`
}
