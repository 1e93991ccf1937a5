package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviepicker/internal/domain"
)

func (s *Store) AddToWishlist(ctx context.Context, key domain.ItemKey) error {
	doc := wishlistDoc{
		ID:         key.String(),
		ExternalID: key.ExternalID,
		Type:       string(key.Type),
		AddedAt:    time.Now().UTC().Unix(),
	}
	_, err := s.wishlist.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *Store) RemoveFromWishlist(ctx context.Context, key domain.ItemKey) error {
	res, err := s.wishlist.DeleteOne(ctx, bson.M{"_id": key.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListWishlist returns wishlist entries newest first, joined with the
// catalogue items that exist locally.
func (s *Store) ListWishlist(ctx context.Context) ([]domain.CatalogItem, error) {
	cursor, err := s.wishlist.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "addedAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []wishlistDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	keys := make([]domain.ItemKey, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, domain.ItemKey{ExternalID: doc.ExternalID, Type: domain.ContentType(doc.Type)})
	}

	items, err := s.GetItems(ctx, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[domain.ItemKey]domain.CatalogItem, len(items))
	for _, item := range items {
		byKey[item.Key] = item
	}
	out := make([]domain.CatalogItem, 0, len(keys))
	for _, key := range keys {
		if item, ok := byKey[key]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// WishlistKeys returns the raw key set, for exclusion filters.
func (s *Store) WishlistKeys(ctx context.Context) (map[domain.ItemKey]struct{}, error) {
	cursor, err := s.wishlist.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []wishlistDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[domain.ItemKey]struct{}, len(docs))
	for _, doc := range docs {
		out[domain.ItemKey{ExternalID: doc.ExternalID, Type: domain.ContentType(doc.Type)}] = struct{}{}
	}
	return out, nil
}
