package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/types"
)

// MongoConfig configures the Mongo session store.
type MongoConfig struct {
	URI        string        `yaml:"uri" json:"uri"`
	Database   string        `yaml:"database" json:"database"`
	Collection string        `yaml:"collection" json:"collection"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultMongoConfig returns sensible defaults.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "parley",
		Collection: "conversations",
		Timeout:    10 * time.Second,
	}
}

// MongoStore keeps conversations in a MongoDB collection, one document
// per aggregate keyed by conversation id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	cfg    MongoConfig
	logger *zap.Logger
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultMongoConfig()
	if cfg.URI == "" {
		cfg.URI = def.URI
	}
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "mongo_store")),
	}
	s.logger.Info("mongo store initialized",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

// Load fetches a conversation by id.
func (s *MongoStore) Load(ctx context.Context, id string) (*types.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var conv types.Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewNotFoundError("conversation", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStore, "failed to load conversation").WithCause(err)
	}
	return &conv, nil
}

// Save upserts the full aggregate.
func (s *MongoStore) Save(ctx context.Context, conv *types.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": conv.ID},
		conv,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return types.NewError(types.ErrStore, "failed to save conversation").WithCause(err)
	}
	return nil
}

// Delete removes a conversation. Missing ids are not an error.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return types.NewError(types.ErrStore, "failed to delete conversation").WithCause(err)
	}
	return nil
}

// ListByUser returns the user's conversations, most recently active first.
func (s *MongoStore) ListByUser(ctx context.Context, userID string, limit int) ([]*types.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "last_activity_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, types.NewError(types.ErrStore, "failed to list conversations").WithCause(err)
	}
	defer cursor.Close(ctx)

	var convs []*types.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, types.NewError(types.ErrStore, "failed to decode conversations").WithCause(err)
	}
	return convs, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
