package fontstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/keyforge/pkg/errors"
)

// MongoStore keeps fonts in a MongoDB collection, one document per font
// keyed by name.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoConfig configures [NewMongoStore].
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type fontDoc struct {
	Name     string    `bson:"_id"`
	Data     []byte    `bson:"data"`
	Size     int64     `bson:"size"`
	Modified time.Time `bson:"modified"`
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Database == "" {
		cfg.Database = "keyforge"
	}
	if cfg.Collection == "" {
		cfg.Collection = "fonts"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// List returns the stored fonts without their data.
func (s *MongoStore) List(ctx context.Context) ([]Info, error) {
	opts := options.Find().
		SetProjection(bson.M{"data": 0}).
		SetSort(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list fonts: %w", err)
	}
	defer cur.Close(ctx)

	var out []Info
	for cur.Next(ctx) {
		var doc fontDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode font: %w", err)
		}
		out = append(out, Info{Name: doc.Name, Size: doc.Size, Source: "mongo", Modified: doc.Modified})
	}
	return out, cur.Err()
}

// Get reads a font.
func (s *MongoStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := errors.ValidateFontName(name); err != nil {
		return nil, err
	}
	var doc fontDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.New(errors.ErrCodeFontNotFound, "font not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get font: %w", err)
	}
	return doc.Data, nil
}

// Put upserts a font.
func (s *MongoStore) Put(ctx context.Context, name string, data []byte) error {
	if err := errors.ValidateFontName(name); err != nil {
		return err
	}
	doc := fontDoc{Name: name, Data: data, Size: int64(len(data)), Modified: time.Now().UTC()}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put font: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
