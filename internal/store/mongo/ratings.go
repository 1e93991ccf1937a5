package mongo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviepicker/internal/domain"
)

// UpsertRating writes or replaces the user's rating for one item and
// drops any wishlist entry for it: a rated item is watched, not
// planned.
func (s *Store) UpsertRating(ctx context.Context, r domain.UserRating) error {
	if !domain.ValidRating(r.Rating) {
		return domain.ErrInvalidRating
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"externalId": r.Key.ExternalID,
			"type":       string(r.Key.Type),
			"rating":     r.Rating,
			"review":     r.Review,
			"updatedAt":  now.Unix(),
		},
		"$setOnInsert": bson.M{"createdAt": now.Unix()},
	}
	if _, err := s.ratings.UpdateOne(ctx, bson.M{"_id": r.Key.String()}, update, options.Update().SetUpsert(true)); err != nil {
		return err
	}
	_, err := s.wishlist.DeleteOne(ctx, bson.M{"_id": r.Key.String()})
	return err
}

func (s *Store) GetRating(ctx context.Context, key domain.ItemKey) (domain.UserRating, error) {
	var doc ratingDoc
	if err := s.ratings.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UserRating{}, domain.ErrNotFound
		}
		return domain.UserRating{}, err
	}
	return fromRatingDoc(doc), nil
}

func (s *Store) DeleteRating(ctx context.Context, key domain.ItemKey) error {
	res, err := s.ratings.DeleteOne(ctx, bson.M{"_id": key.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RatedItems returns the full rating history joined with catalogue
// items, optionally restricted to ratings >= minRating. Ratings whose
// item row is missing are skipped.
func (s *Store) RatedItems(ctx context.Context, minRating int) ([]domain.RatedItem, error) {
	query := bson.M{}
	if minRating > 0 {
		query["rating"] = bson.M{"$gte": minRating}
	}
	cursor, err := s.ratings.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "rating", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ratingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return s.joinRatings(ctx, docs)
}

// ListRatings applies filter and ordering on top of the joined rating
// history. Year and title ordering need item fields, so sorting
// happens after the join.
func (s *Store) ListRatings(ctx context.Context, filter domain.RatingFilter) ([]domain.RatedItem, error) {
	query := bson.M{}
	if filter.MinRating > 0 || filter.MaxRating > 0 {
		r := bson.M{}
		if filter.MinRating > 0 {
			r["$gte"] = filter.MinRating
		}
		if filter.MaxRating > 0 {
			r["$lte"] = filter.MaxRating
		}
		query["rating"] = r
	}
	if filter.Type != "" {
		query["type"] = string(filter.Type)
	}

	cursor, err := s.ratings.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ratingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	rated, err := s.joinRatings(ctx, docs)
	if err != nil {
		return nil, err
	}

	if filter.GenreID != 0 {
		filtered := rated[:0]
		for _, r := range rated {
			for _, id := range r.Item.GenreIDs {
				if id == filter.GenreID {
					filtered = append(filtered, r)
					break
				}
			}
		}
		rated = filtered
	}

	sortRated(rated, filter.SortBy, filter.SortOrder, s.ratingUpdatedAt(docs))
	return rated, nil
}

// RatingsForItems returns the user's rating per key for the keys that
// have one.
func (s *Store) RatingsForItems(ctx context.Context, keys []domain.ItemKey) (map[domain.ItemKey]int, error) {
	if len(keys) == 0 {
		return map[domain.ItemKey]int{}, nil
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.String())
	}
	cursor, err := s.ratings.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ratingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[domain.ItemKey]int, len(docs))
	for _, doc := range docs {
		r := fromRatingDoc(doc)
		out[r.Key] = r.Rating
	}
	return out, nil
}

// RatedItemsByGenres returns every rated item linked to any of the
// given genre ids, in one query pair regardless of how many ids.
func (s *Store) RatedItemsByGenres(ctx context.Context, ids []int64) ([]domain.RatedItem, error) {
	return s.ratedItemsBy(ctx, bson.M{"genreIds": bson.M{"$in": ids}})
}

func (s *Store) RatedItemsByDirectors(ctx context.Context, ids []int64) ([]domain.RatedItem, error) {
	return s.ratedItemsBy(ctx, bson.M{"directors.personId": bson.M{"$in": ids}})
}

func (s *Store) RatedItemsByActors(ctx context.Context, ids []int64) ([]domain.RatedItem, error) {
	return s.ratedItemsBy(ctx, bson.M{"actors.personId": bson.M{"$in": ids}})
}

func (s *Store) ratedItemsBy(ctx context.Context, itemQuery bson.M) ([]domain.RatedItem, error) {
	if len(itemQuery) == 0 {
		return nil, nil
	}

	ratings, err := s.allRatings(ctx)
	if err != nil {
		return nil, err
	}
	if len(ratings) == 0 {
		return nil, nil
	}
	ratedIDs := make([]string, 0, len(ratings))
	for id := range ratings {
		ratedIDs = append(ratedIDs, id)
	}
	itemQuery["_id"] = bson.M{"$in": ratedIDs}

	cursor, err := s.items.Find(ctx, itemQuery)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []itemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]domain.RatedItem, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.RatedItem{Item: fromItemDoc(doc), Rating: ratings[doc.ID]})
	}
	return out, nil
}

func (s *Store) allRatings(ctx context.Context) (map[string]int, error) {
	cursor, err := s.ratings.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ratingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(docs))
	for _, doc := range docs {
		out[doc.ID] = doc.Rating
	}
	return out, nil
}

func (s *Store) joinRatings(ctx context.Context, docs []ratingDoc) ([]domain.RatedItem, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	keys := make([]domain.ItemKey, 0, len(docs))
	for _, doc := range docs {
		keys = append(keys, fromRatingDoc(doc).Key)
	}
	items, err := s.GetItems(ctx, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[domain.ItemKey]domain.CatalogItem, len(items))
	for _, item := range items {
		byKey[item.Key] = item
	}

	out := make([]domain.RatedItem, 0, len(docs))
	for _, doc := range docs {
		r := fromRatingDoc(doc)
		item, ok := byKey[r.Key]
		if !ok {
			continue
		}
		out = append(out, domain.RatedItem{Item: item, Rating: r.Rating})
	}
	return out, nil
}

func (s *Store) ratingUpdatedAt(docs []ratingDoc) map[domain.ItemKey]int64 {
	out := make(map[domain.ItemKey]int64, len(docs))
	for _, doc := range docs {
		out[fromRatingDoc(doc).Key] = doc.UpdatedAt
	}
	return out
}

func sortRated(rated []domain.RatedItem, by domain.RatingSortBy, order domain.SortOrder, updatedAt map[domain.ItemKey]int64) {
	less := func(a, b domain.RatedItem) bool {
		switch by {
		case domain.RatingSortByRating:
			if a.Rating != b.Rating {
				return a.Rating < b.Rating
			}
		case domain.RatingSortByYear:
			if a.Item.Year != b.Item.Year {
				return a.Item.Year < b.Item.Year
			}
		case domain.RatingSortByTitle:
			at := strings.ToLower(a.Item.Title)
			bt := strings.ToLower(b.Item.Title)
			if at != bt {
				return at < bt
			}
		default:
			if updatedAt[a.Item.Key] != updatedAt[b.Item.Key] {
				return updatedAt[a.Item.Key] < updatedAt[b.Item.Key]
			}
		}
		return a.Item.Key.String() < b.Item.Key.String()
	}
	sort.SliceStable(rated, func(i, j int) bool {
		if order == domain.SortAsc {
			return less(rated[i], rated[j])
		}
		return less(rated[j], rated[i])
	})
}
