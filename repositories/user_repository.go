package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/landvest/landvest_backend/config"
	"github.com/landvest/landvest_backend/models"
)

// ErrUserNotFound is returned when a lookup matches no member.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned by Create when the email unique index rejects
// the insert. Unlike a slot collision this is not retryable.
var ErrEmailTaken = errors.New("email already registered")

// UserRepository is the member directory. It answers the structural
// questions placement and matching ask of the binary tree: who occupies
// a slot, who sponsors whom, and on which side.
type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Client) *UserRepository {
	return &UserRepository{
		collection: config.GetCollection(db, "users"),
	}
}

// Create inserts the member. The unique (sponsorId, position) index makes
// the insert fail with a duplicate-key error when a concurrent
// registration claimed the same slot first; callers detect that with
// IsDuplicateKeyError and re-resolve placement.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if isEmailConflict(err) {
			return ErrEmailTaken
		}
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return nil
}

// IsDuplicateKeyError reports whether err is a unique-index violation.
func IsDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// isEmailConflict reports whether a duplicate-key error came from the
// email index rather than the slot or referral code indexes. The server
// names the violated index in the error message.
func isEmailConflict(err error) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "index: email")
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"referralCode": code}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ChildOf returns the member occupying the given slot under sponsorID, or
// nil when the slot is open.
func (r *UserRepository) ChildOf(ctx context.Context, sponsorID primitive.ObjectID, position string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"sponsorId": sponsorID, "position": position}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// DirectTeam lists the members placed directly under sponsorID, left slot
// first.
func (r *UserRepository) DirectTeam(ctx context.Context, sponsorID primitive.ObjectID) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"sponsorId": sponsorID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Password = ""
	}
	return users, nil
}

// CountMembers returns the total number of registered members.
func (r *UserRepository) CountMembers(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
