package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

const (
	defaultDatabase   = "monitor"
	collectionName    = "watermarks"
	connectionTimeout = 10 * time.Second
)

// Store keeps one document per subscription in the watermarks collection.
// Writes use majority write concern so a returned Set survives failover.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func New(ctx context.Context, uri string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(connectionTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client: client,
		coll: client.Database(databaseName(uri)).Collection(collectionName,
			options.Collection().SetWriteConcern(writeconcern.Majority())),
	}, nil
}

func databaseName(uri string) string {
	if cs, err := connstring.ParseAndValidate(uri); err == nil && cs.Database != "" {
		return cs.Database
	}
	return defaultDatabase
}

type watermarkDoc struct {
	Name  string `bson:"_id"`
	Round any    `bson:"round"`
}

func (s *Store) Get(ctx context.Context, name string) (model.Round, error) {
	var doc watermarkDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark %s: %w", name, err)
	}
	return roundValue(name, doc.Round)
}

// roundValue accepts the integer encodings a hand-edited document may carry.
func roundValue(name string, v any) (model.Round, error) {
	var r int64
	switch n := v.(type) {
	case int64:
		r = n
	case int32:
		r = int64(n)
	default:
		return 0, fmt.Errorf("watermark %s holds %T: %w", name, v, model.ErrCorruptWatermark)
	}
	if r < 0 {
		return 0, fmt.Errorf("watermark %s holds %d: %w", name, r, model.ErrCorruptWatermark)
	}
	return model.Round(r), nil
}

// Set relies on $max so a stored watermark never decreases.
func (s *Store) Set(ctx context.Context, name string, round model.Round) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{
			"$max": bson.M{"round": int64(round)},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
