package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
)

const ordersCollection = "orders"

// MongoStore persists orders in the storefront's document database. Writes use
// a version-guarded UpdateOne so a lost race is detected and retried.
type MongoStore struct {
	db  *mongo.Database
	now func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, now: time.Now}
}

func (s *MongoStore) coll() *mongo.Collection {
	return s.db.Collection(ordersCollection)
}

func (s *MongoStore) Create(ctx context.Context, order *models.Order) (string, error) {
	if order.ID == "" {
		order.ID = primitive.NewObjectID().Hex()
	}
	order.Version = 1

	if _, err := s.coll().InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("insert order %s: %w", order.HumanReference, domain.ErrConflict)
		}
		return "", fmt.Errorf("insert order: %w", err)
	}
	return order.ID, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (models.Order, error) {
	return s.findOne(ctx, bson.M{"_id": id}, "order "+id)
}

func (s *MongoStore) GetByReference(ctx context.Context, reference string) (models.Order, error) {
	return s.findOne(ctx, bson.M{"humanReference": reference}, "order reference "+reference)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, what string) (models.Order, error) {
	var order models.Order
	err := s.coll().FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("find %s: %w", what, err)
	}
	return order, nil
}

func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	query := bson.M{}
	if filter.OwnerID != "" {
		query["ownerId"] = filter.OwnerID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Offset > 0 {
		opts.SetSkip(filter.Offset)
	}
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	cursor, err := s.coll().Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

func (s *MongoStore) MarkPaymentRequested(ctx context.Context, id, gatewayRef string, at time.Time) (models.Order, error) {
	o, _, err := casUpdate(ctx, s.loader(id), decidePaymentRequest(gatewayRef, at), s.save)
	return o, err
}

func (s *MongoStore) ApplyPaymentResult(ctx context.Context, id string, result PaymentResult) (models.Order, bool, error) {
	return casUpdate(ctx, s.loader(id), decidePaymentResult(result, s.now()), s.save)
}

func (s *MongoStore) SetFulfillmentStatus(ctx context.Context, id string, status models.OrderStatus, by Actor) (models.Order, bool, error) {
	return casUpdate(ctx, s.loader(id), decideFulfillment(status, by, s.now()), s.save)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.Client().Ping(checkCtx, readpref.Primary())
}

func (s *MongoStore) loader(id string) func(ctx context.Context) (models.Order, error) {
	return func(ctx context.Context) (models.Order, error) {
		return s.Get(ctx, id)
	}
}

// save only touches the fields the state machine owns.
func (s *MongoStore) save(ctx context.Context, prev, next models.Order) (bool, error) {
	filter := bson.M{"_id": prev.ID, "version": prev.Version}
	update := bson.M{"$set": bson.M{
		"status":       next.Status,
		"payment":      next.Payment,
		"cancelReason": next.CancelReason,
		"updatedAt":    next.UpdatedAt,
		"version":      next.Version,
	}}

	res, err := s.coll().UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("update order %s: %w", prev.ID, domain.ErrConflict)
		}
		return false, fmt.Errorf("update order %s: %w", prev.ID, err)
	}
	return res.MatchedCount == 1, nil
}

var _ Store = (*MongoStore)(nil)
