// config/db.go
package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB establishes connection to MongoDB
func ConnectDB() *mongo.Client {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	if mongoURI == "" {
		env := os.Getenv("ENV")
		if env == "development" || env == "dev" {
			mongoURI = "mongodb://localhost:27017"
		} else {
			log.Fatal("MONGO_URI or MONGODB_URI environment variable is required for production")
		}
	}

	log.Printf("Connecting to MongoDB at: %s", maskMongoURI(mongoURI))

	clientOptions := options.Client().ApplyURI(mongoURI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatal("MongoDB connection error:", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		log.Fatal("MongoDB ping error:", err)
	}

	log.Println("Connected to MongoDB")

	setupCollections(client)

	return client
}

// DatabaseName returns the configured database name.
func DatabaseName() string {
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "landvest"
	}
	return dbName
}

// GetCollection returns MongoDB collection
func GetCollection(client *mongo.Client, collectionName string) *mongo.Collection {
	return client.Database(DatabaseName()).Collection(collectionName)
}

// setupCollections ensures all necessary collections and indexes exist
func setupCollections(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := client.Database(DatabaseName())

	collections := []string{"users", "plots", "legLedgers", "incomeRecords"}
	for _, collName := range collections {
		db.CreateCollection(ctx, collName)
	}

	userColl := db.Collection("users")

	emailIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := userColl.Indexes().CreateOne(ctx, emailIndex); err != nil {
		log.Printf("Error creating email index: %v", err)
	}

	referralCodeIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "referralCode", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(
			bson.M{"referralCode": bson.M{"$exists": true}},
		),
	}
	if _, err := userColl.Indexes().CreateOne(ctx, referralCodeIndex); err != nil {
		log.Printf("Error creating referral code index: %v", err)
	}

	// One member per (sponsor, position) slot. Concurrent registrations
	// racing on the same open slot serialize here: the loser gets a
	// duplicate-key error and re-resolves placement.
	slotIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "sponsorId", Value: 1}, {Key: "position", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(
			bson.M{"sponsorId": bson.M{"$exists": true}},
		),
	}
	if _, err := userColl.Indexes().CreateOne(ctx, slotIndex); err != nil {
		log.Printf("Error creating sponsor slot index: %v", err)
	}

	ledgerColl := db.Collection("legLedgers")
	ledgerIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "sponsorId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := ledgerColl.Indexes().CreateOne(ctx, ledgerIndex); err != nil {
		log.Printf("Error creating ledger sponsor index: %v", err)
	}

	incomeColl := db.Collection("incomeRecords")

	// Idempotency key: one record per (earner, source sale, income type),
	// so replayed sale-approved events never duplicate commissions.
	incomeIdempotencyIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "sourceSaleId", Value: 1},
			{Key: "incomeType", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := incomeColl.Indexes().CreateOne(ctx, incomeIdempotencyIndex); err != nil {
		log.Printf("Error creating income idempotency index: %v", err)
	}

	incomeUserIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	}
	if _, err := incomeColl.Indexes().CreateOne(ctx, incomeUserIndex); err != nil {
		log.Printf("Error creating income user index: %v", err)
	}

	plotColl := db.Collection("plots")
	plotNumberIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "plotNumber", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := plotColl.Indexes().CreateOne(ctx, plotNumberIndex); err != nil {
		log.Printf("Error creating plot number index: %v", err)
	}

	log.Println("Database collections and indexes setup complete")
}

// maskMongoURI masks the password in MongoDB URI for logging
func maskMongoURI(uri string) string {
	if idx := strings.Index(uri, "@"); idx > 0 {
		if colonIdx := strings.LastIndex(uri[:idx], ":"); colonIdx > 0 {
			return uri[:colonIdx+1] + "***" + uri[idx:]
		}
	}
	return uri
}
