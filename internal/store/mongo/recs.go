package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviepicker/internal/domain"
)

// GetRecommendations returns the stored recommendation row for one
// source item. Staleness is the cache's concern, not the store's: the
// row comes back with its RefreshedAt regardless of age.
func (s *Store) GetRecommendations(ctx context.Context, key domain.ItemKey) (domain.RecommendationList, error) {
	var doc recListDoc
	if err := s.recs.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.RecommendationList{}, domain.ErrNotFound
		}
		return domain.RecommendationList{}, err
	}
	return fromRecListDoc(doc), nil
}

func (s *Store) PutRecommendations(ctx context.Context, list domain.RecommendationList) error {
	doc := toRecListDoc(list)
	_, err := s.recs.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}
