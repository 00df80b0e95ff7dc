package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoBag is the stored document. Prices are kept as decimal strings so no
// precision is lost to BSON doubles.
type mongoBag struct {
	BagKey    string      `bson:"_id"`
	Lines     []mongoLine `bson:"lines"`
	UpdatedAt time.Time   `bson:"updated_at"`
}

type mongoLine struct {
	ProductID    string `bson:"product_id"`
	WeightOption string `bson:"weight_option"`
	Name         string `bson:"name"`
	UnitPrice    string `bson:"unit_price"`
	Quantity     int    `bson:"quantity"`
	ImageURL     string `bson:"image_url,omitempty"`
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("carts")}
}

func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return client.Database(database), nil
}

func (s *MongoStore) Load(ctx context.Context, bagKey string) ([]models.CartLine, error) {
	var bag mongoBag
	err := s.collection.FindOne(ctx, bson.M{"_id": bagKey}).Decode(&bag)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cart bag %s: %w", bagKey, err)
	}

	lines := make([]models.CartLine, 0, len(bag.Lines))
	for _, l := range bag.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("decode price of %s in bag %s: %w", l.ProductID, bagKey, err)
		}
		lines = append(lines, models.CartLine{
			ProductID:            l.ProductID,
			Name:                 l.Name,
			UnitPrice:            price,
			Quantity:             l.Quantity,
			SelectedWeightOption: l.WeightOption,
			ImageURL:             l.ImageURL,
		})
	}
	return lines, nil
}

func (s *MongoStore) Save(ctx context.Context, bagKey string, lines []models.CartLine) error {
	if len(lines) == 0 {
		return s.Clear(ctx, bagKey)
	}

	bag := mongoBag{BagKey: bagKey, UpdatedAt: time.Now(), Lines: make([]mongoLine, 0, len(lines))}
	for _, l := range lines {
		bag.Lines = append(bag.Lines, mongoLine{
			ProductID:    l.ProductID,
			WeightOption: l.SelectedWeightOption,
			Name:         l.Name,
			UnitPrice:    l.UnitPrice.String(),
			Quantity:     l.Quantity,
			ImageURL:     l.ImageURL,
		})
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": bagKey}, bag, opts); err != nil {
		return fmt.Errorf("upsert cart bag %s: %w", bagKey, err)
	}
	return nil
}

func (s *MongoStore) Clear(ctx context.Context, bagKey string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": bagKey}); err != nil {
		return fmt.Errorf("delete cart bag %s: %w", bagKey, err)
	}
	return nil
}
