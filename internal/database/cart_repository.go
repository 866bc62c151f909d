package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/travyy/tour-booking-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CartRepository stores one cart document per user in MongoDB
type CartRepository struct {
	collection *mongo.Collection
}

// ConnectMongoDB opens a client and returns the named database
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(50)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

// NewCartRepository creates a cart repository on the carts collection
func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{collection: db.Collection("carts")}
}

// CreateIndexes ensures one cart per user
func (r *CartRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}

func (r *CartRepository) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// AddItemIfAbsent pushes the item unless an equal selection is already in the
// cart. The existence check is part of the update filter so it is atomic. When
// the cart exists and already holds the item, the upsert collides with the
// unique user_id index and is reported as not added.
func (r *CartRepository) AddItemIfAbsent(ctx context.Context, userID string, item models.CartItem) (bool, error) {
	now := time.Now()
	filter := bson.M{
		"user_id": userID,
		"items": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"tour_id":  item.TourID,
			"date":     item.Date,
			"adults":   item.Adults,
			"children": item.Children,
		}}},
	}
	update := bson.M{
		"$push":        bson.M{"items": item},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore cart item: %w", err)
	}
	return result.ModifiedCount > 0 || result.UpsertedCount > 0, nil
}

// RemoveItems pulls the given selections from the cart
func (r *CartRepository) RemoveItems(ctx context.Context, userID string, items []models.SessionItem) error {
	if len(items) == 0 {
		return nil
	}
	conds := make(bson.A, 0, len(items))
	for _, item := range items {
		conds = append(conds, bson.M{
			"tour_id":  item.TourID,
			"date":     item.Date,
			"adults":   item.Adults,
			"children": item.Children,
		})
	}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"$or": conds}},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update); err != nil {
		return fmt.Errorf("failed to remove cart items: %w", err)
	}
	return nil
}
