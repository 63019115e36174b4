package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/landvest/landvest_backend/config"
	"github.com/landvest/landvest_backend/models"
)

// ErrConcurrentModification is returned by Save when the ledger changed
// since it was loaded. Callers reload and retry.
var ErrConcurrentModification = errors.New("ledger modified concurrently")

// LedgerRepository persists the per-sponsor leg ledgers.
type LedgerRepository struct {
	collection *mongo.Collection
}

func NewLedgerRepository(db *mongo.Client) *LedgerRepository {
	return &LedgerRepository{
		collection: config.GetCollection(db, "legLedgers"),
	}
}

// GetOrCreate loads the sponsor's ledger, creating an empty one on first
// use. Creation races resolve through the unique sponsorId index: the
// loser falls back to reading the winner's document.
func (r *LedgerRepository) GetOrCreate(ctx context.Context, sponsorID primitive.ObjectID) (*models.LegLedger, error) {
	var ledger models.LegLedger
	err := r.collection.FindOne(ctx, bson.M{"sponsorId": sponsorID}).Decode(&ledger)
	if err == nil {
		return &ledger, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	fresh := models.NewLegLedger(sponsorID)
	result, err := r.collection.InsertOne(ctx, fresh)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = r.collection.FindOne(ctx, bson.M{"sponsorId": sponsorID}).Decode(&ledger)
			if err != nil {
				return nil, err
			}
			return &ledger, nil
		}
		return nil, err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		fresh.ID = oid
	}
	return fresh, nil
}

// Save writes the ledger back with a compare-and-swap on Version. A
// mismatch means another writer got in first and the caller's in-memory
// state is stale.
func (r *LedgerRepository) Save(ctx context.Context, ledger *models.LegLedger) error {
	loadedVersion := ledger.Version
	ledger.Version = loadedVersion + 1

	result, err := r.collection.ReplaceOne(ctx, bson.M{
		"_id":     ledger.ID,
		"version": loadedVersion,
	}, ledger)
	if err != nil {
		ledger.Version = loadedVersion
		return err
	}
	if result.MatchedCount == 0 {
		ledger.Version = loadedVersion
		return ErrConcurrentModification
	}
	return nil
}

// FindBySponsor loads a ledger without creating one.
func (r *LedgerRepository) FindBySponsor(ctx context.Context, sponsorID primitive.ObjectID) (*models.LegLedger, error) {
	var ledger models.LegLedger
	err := r.collection.FindOne(ctx, bson.M{"sponsorId": sponsorID}).Decode(&ledger)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &ledger, nil
}

// FindAll pages through every ledger, newest activity first.
func (r *LedgerRepository) FindAll(ctx context.Context, page, limit int64) ([]models.LegLedger, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	ledgers := []models.LegLedger{}
	if err := cursor.All(ctx, &ledgers); err != nil {
		return nil, 0, err
	}
	return ledgers, total, nil
}
