package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviepicker/internal/domain"
)

// GenreNamer resolves canonical genre ids to display names so items
// can be searched by genre text. Satisfied by genres.Normalizer.
type GenreNamer interface {
	Names(ids []int64) []string
}

// Store is the MongoDB-backed local catalogue: items, user ratings,
// wishlist, entity affinity aggregates, and the persistent tier of the
// recommendation cache.
type Store struct {
	items    *mongo.Collection
	ratings  *mongo.Collection
	wishlist *mongo.Collection
	stats    *mongo.Collection
	recs     *mongo.Collection
	namer    GenreNamer
}

func NewStore(client *mongo.Client, dbName string, namer GenreNamer) *Store {
	db := client.Database(dbName)
	return &Store{
		items:    db.Collection("items"),
		ratings:  db.Collection("ratings"),
		wishlist: db.Collection("wishlist"),
		stats:    db.Collection("entity_stats"),
		recs:     db.Collection("rec_cache"),
		namer:    namer,
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return client, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "externalId", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "genreIds", Value: 1}}},
		{Keys: bson.D{{Key: "directors.personId", Value: 1}}},
		{Keys: bson.D{{Key: "actors.personId", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.ratings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "rating", Value: -1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.stats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "entityId", Value: 1}}},
	})
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.items.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
