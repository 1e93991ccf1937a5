package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"moviepicker/internal/domain"
)

// UpdateEntityStats replaces the affinity rows in one bulk write.
// Cleared entities (nil average) are written too, so stale averages
// cannot survive a rating deletion.
func (s *Store) UpdateEntityStats(ctx context.Context, stats []domain.EntityStats) error {
	if len(stats) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(stats))
	for _, st := range stats {
		doc := toStatsDoc(st)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := s.stats.BulkWrite(ctx, models)
	return err
}

// GetEntityStats fetches affinity rows for entities of one kind.
// Entities without a row are simply absent from the result.
func (s *Store) GetEntityStats(ctx context.Context, kind domain.EntityKind, ids []int64) ([]domain.EntityStats, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.stats.Find(ctx, bson.M{
		"kind":     string(kind),
		"entityId": bson.M{"$in": ids},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []statsDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.EntityStats, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromStatsDoc(doc))
	}
	return out, nil
}
