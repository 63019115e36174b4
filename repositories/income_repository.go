package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/landvest/landvest_backend/config"
	"github.com/landvest/landvest_backend/models"
)

// ErrIncomeNotFound is returned when a record lookup matches nothing.
var ErrIncomeNotFound = errors.New("income record not found")

// IncomeRepository persists commission records.
type IncomeRepository struct {
	collection *mongo.Collection
}

func NewIncomeRepository(db *mongo.Client) *IncomeRepository {
	return &IncomeRepository{
		collection: config.GetCollection(db, "incomeRecords"),
	}
}

// Insert writes the record. The unique (userId, sourceSaleId, incomeType)
// index turns a replayed insert into a no-op; the bool reports whether a
// new record was actually created.
func (r *IncomeRepository) Insert(ctx context.Context, record *models.IncomeRecord) (bool, error) {
	record.CreatedAt = time.Now()
	if record.Status == "" {
		record.Status = models.IncomeStatusCalculated
	}

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid
	}
	return true, nil
}

// UpsertCalculated writes a matching-bonus record, rewriting the amounts
// of an existing record only while it still sits in the calculated
// state. A ledger version conflict can force the match to be recomputed
// with different numbers than an earlier attempt already recorded; the
// rewrite keeps the record aligned with the ledger state that actually
// got saved. Records an admin has already advanced are never touched.
// The bool reports whether a new record was created.
func (r *IncomeRepository) UpsertCalculated(ctx context.Context, record *models.IncomeRecord) (bool, error) {
	filter := bson.M{
		"userId":       record.UserID,
		"sourceSaleId": record.SourceSaleID,
		"incomeType":   record.IncomeType,
		"status":       models.IncomeStatusCalculated,
	}
	update := bson.M{
		"$set": bson.M{
			"plotNumber":           record.PlotNumber,
			"buyerId":              record.BuyerID,
			"buyerName":            record.BuyerName,
			"legType":              record.LegType,
			"saleAmount":           record.SaleAmount,
			"balancedAmount":       record.BalancedAmount,
			"commissionPercentage": record.CommissionPercentage,
			"incomeAmount":         record.IncomeAmount,
			"pairedFragments":      record.PairedFragments,
			"saleDate":             record.SaleDate,
		},
		"$setOnInsert": bson.M{
			"userId":       record.UserID,
			"sourceSaleId": record.SourceSaleID,
			"incomeType":   record.IncomeType,
			"status":       models.IncomeStatusCalculated,
			"createdAt":    time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	result, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Record exists but is already past calculated; leave it.
			return false, nil
		}
		return false, err
	}
	if result.UpsertedID != nil {
		if oid, ok := result.UpsertedID.(primitive.ObjectID); ok {
			record.ID = oid
		}
		return true, nil
	}
	return false, nil
}

// FindByUser pages through a user's records, newest first. incomeType and
// status filter when non-empty.
func (r *IncomeRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, incomeType, status string, page, limit int64) ([]models.IncomeRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := bson.M{"userId": userID}
	if incomeType != "" {
		filter["incomeType"] = incomeType
	}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	records := []models.IncomeRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// FindAll pages through all records for the admin view.
func (r *IncomeRepository) FindAll(ctx context.Context, incomeType, status string, page, limit int64) ([]models.IncomeRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := bson.M{}
	if incomeType != "" {
		filter["incomeType"] = incomeType
	}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	records := []models.IncomeRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Summary aggregates a user's income totals by type and payout state.
func (r *IncomeRepository) Summary(ctx context.Context, userID primitive.ObjectID) (*models.IncomeSummary, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summary := &models.IncomeSummary{}
	for cursor.Next(ctx) {
		var record models.IncomeRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, err
		}
		summary.TotalRecords++
		summary.TotalIncome += record.IncomeAmount
		if record.Status == models.IncomeStatusPaid {
			summary.PaidIncome += record.IncomeAmount
		} else {
			summary.PendingIncome += record.IncomeAmount
		}
		switch record.IncomeType {
		case models.IncomeTypePersonalSale:
			summary.PersonalSaleIncome += record.IncomeAmount
		case models.IncomeTypeMatchingBonus:
			summary.MatchingBonusIncome += record.IncomeAmount
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

// UpdateStatusFrom advances a record's payout status, but only when the
// record currently sits in fromStatus. The conditional filter keeps two
// admins from advancing the same record twice.
func (r *IncomeRepository) UpdateStatusFrom(ctx context.Context, recordID primitive.ObjectID, fromStatus, toStatus string, adminID primitive.ObjectID) (*models.IncomeRecord, error) {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":     toStatus,
		"approvedBy": adminID,
		"approvedAt": now,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var record models.IncomeRecord
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": recordID, "status": fromStatus}, update, opts).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrIncomeNotFound
		}
		return nil, err
	}
	return &record, nil
}
