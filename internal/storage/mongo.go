package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// Mongo defaults
const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabase     = "rssnews"
	DefaultArticleCollection = "news"
	DefaultFeedCollection    = "feed"
	defaultConnectTimeout    = 10 * time.Second
)

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI               string `mapstructure:"uri"`
	Database          string `mapstructure:"database"`
	ArticleCollection string `mapstructure:"article_collection"`
	FeedCollection    string `mapstructure:"feed_collection"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c MongoConfig) WithDefaults() MongoConfig {
	if c.URI == "" {
		c.URI = DefaultMongoURI
	}
	if c.Database == "" {
		c.Database = DefaultMongoDatabase
	}
	if c.ArticleCollection == "" {
		c.ArticleCollection = DefaultArticleCollection
	}
	if c.FeedCollection == "" {
		c.FeedCollection = DefaultFeedCollection
	}
	return c
}

// ConnectMongo connects and pings MongoDB.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, error) {
	cfg = cfg.WithDefaults()

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", pingErr)
	}

	return client, nil
}

// MongoArticleStore keeps articles in one collection keyed by _id = URL hash.
type MongoArticleStore struct {
	coll *mongo.Collection
}

// NewMongoArticleStore creates an article store on the configured collection.
func NewMongoArticleStore(client *mongo.Client, cfg MongoConfig) *MongoArticleStore {
	cfg = cfg.WithDefaults()
	return &MongoArticleStore{coll: client.Database(cfg.Database).Collection(cfg.ArticleCollection)}
}

// Insert creates the document.
func (s *MongoArticleStore) Insert(ctx context.Context, doc *domain.ArticleDocument) error {
	if doc.Symbols == nil {
		doc.Symbols = []string{}
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.URLHash)
		}
		return fmt.Errorf("insert article %s: %w", doc.URLHash, err)
	}
	return nil
}

// AddSymbol adds symbol to the document's symbol set.
func (s *MongoArticleStore) AddSymbol(ctx context.Context, hash, symbol string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": hash},
		bson.M{"$addToSet": bson.M{"symbols": symbol}},
	)
	if err != nil {
		return fmt.Errorf("add symbol %s to %s: %w", symbol, hash, err)
	}
	return nil
}

// ForEachSymbols streams the hash and symbols of every stored article.
func (s *MongoArticleStore) ForEachSymbols(ctx context.Context, fn func(string, []string) error) error {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "symbols": 1})

	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("scan articles: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ID      string   `bson:"_id"`
			Symbols []string `bson:"symbols"`
		}
		if decodeErr := cur.Decode(&row); decodeErr != nil {
			return fmt.Errorf("decode article: %w", decodeErr)
		}
		if fnErr := fn(row.ID, row.Symbols); fnErr != nil {
			return fnErr
		}
	}

	if cur.Err() != nil {
		return fmt.Errorf("scan articles: %w", cur.Err())
	}
	return nil
}

// MongoRegistry keeps feed sources in one collection keyed by symbol.
type MongoRegistry struct {
	coll *mongo.Collection
}

// NewMongoRegistry creates a registry on the configured collection.
func NewMongoRegistry(client *mongo.Client, cfg MongoConfig) *MongoRegistry {
	cfg = cfg.WithDefaults()
	return &MongoRegistry{coll: client.Database(cfg.Database).Collection(cfg.FeedCollection)}
}

// List returns every registered source.
func (r *MongoRegistry) List(ctx context.Context) ([]*domain.FeedSource, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"symbol": 1}))
	if err != nil {
		return nil, fmt.Errorf("list feed sources: %w", err)
	}
	defer cur.Close(ctx)

	var sources []*domain.FeedSource
	if allErr := cur.All(ctx, &sources); allErr != nil {
		return nil, fmt.Errorf("decode feed sources: %w", allErr)
	}
	return sources, nil
}

// Register upserts the source under _id = symbol.
func (r *MongoRegistry) Register(ctx context.Context, src *domain.FeedSource) error {
	src.ID = src.Symbol

	_, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": src.ID},
		src,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", src.Symbol, err)
	}
	return nil
}

// RecordUpdate pushes updated onto the history and sets lastUpdated.
func (r *MongoRegistry) RecordUpdate(ctx context.Context, src *domain.FeedSource, updated time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"symbol": src.Symbol},
		bson.M{
			"$set":  bson.M{"updated": updated},
			"$push": bson.M{"updated_timestamps": updated},
		},
	)
	if err != nil {
		return fmt.Errorf("record update for %s: %w", src.Symbol, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, src.Symbol)
	}
	return nil
}

// DropAll removes every source.
func (r *MongoRegistry) DropAll(ctx context.Context) error {
	if _, err := r.coll.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("drop feed sources: %w", err)
	}
	return nil
}
