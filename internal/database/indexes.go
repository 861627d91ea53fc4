package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderIndexes backs the order store's uniqueness guarantees.
func OrderIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "humanReference", Value: 1}},
			Options: options.Index().
				SetName("humanReference_unique").
				SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "payment.externalTransactionRef", Value: 1}},
			Options: options.Index().
				SetName("externalTransactionRef_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"payment.externalTransactionRef": bson.M{
						"$type": "string",
					},
				}),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("ownerId_index"),
		},
	}
}

func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Println("EnsureOrderIndexes: creating order indexes")
	names, err := db.Collection("orders").Indexes().CreateMany(ctx, OrderIndexes())
	if err != nil {
		log.Println("EnsureOrderIndexes: order index error:", err)
		return err
	}
	log.Println("EnsureOrderIndexes: created", names)
	return nil
}

func EnsureCouponIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("coupons").Indexes()

	codeIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}},
		Options: options.Index().
			SetName("code_unique").
			SetUnique(true),
	}

	log.Println("EnsureCouponIndexes: creating code_unique index")
	_, err := indexes.CreateOne(ctx, codeIndex)
	if err != nil {
		log.Println("EnsureCouponIndexes: code index error:", err)
		return err
	}
	log.Println("EnsureCouponIndexes: code_unique index created")
	return nil
}
