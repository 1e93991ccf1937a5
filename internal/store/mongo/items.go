package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviepicker/internal/domain"
)

const defaultSearchLimit = 100

// UpsertItem inserts or replaces the item under its deterministic key.
// CreatedAt of an existing row is preserved; concurrent upserts of the
// same identity converge on the last writer without surfacing a
// duplicate-key error.
func (s *Store) UpsertItem(ctx context.Context, item domain.CatalogItem) error {
	now := time.Now().UTC()
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = now
	}
	doc := toItemDoc(item, s.namer)

	set := bson.M{
		"externalId":    doc.ExternalID,
		"type":          doc.Type,
		"title":         doc.Title,
		"originalTitle": doc.OriginalTitle,
		"year":          doc.Year,
		"description":   doc.Description,
		"posterUrl":     doc.PosterURL,
		"imdbId":        doc.IMDBID,
		"genreIds":      doc.GenreIDs,
		"genreNames":    doc.GenreNames,
		"directors":     doc.Directors,
		"actors":        doc.Actors,
		"updatedAt":     doc.UpdatedAt,
	}
	// Absent aggregator ratings must not erase values a previous
	// enrichment pass already stored.
	if doc.TMDBRating != nil {
		set["tmdbRating"] = *doc.TMDBRating
	}
	if doc.IMDBRating != nil {
		set["imdbRating"] = *doc.IMDBRating
	}
	if doc.RottenToms != nil {
		set["rottenTomatoes"] = *doc.RottenToms
	}
	if doc.Metacritic != nil {
		set["metacritic"] = *doc.Metacritic
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now.Unix()},
	}
	_, err := s.items.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Lost a race on the secondary unique index; the winner's row
		// is equivalent, so the caller can proceed.
		return nil
	}
	return err
}

// UpdateItemRatings patches only the aggregator rating fields, used by
// the deferred enrichment path so it cannot clobber concurrent full
// upserts. Nil bundle fields leave stored values alone.
func (s *Store) UpdateItemRatings(ctx context.Context, key domain.ItemKey, bundle domain.RatingBundle) error {
	set := bson.M{"updatedAt": time.Now().UTC().Unix()}
	if bundle.IMDB != nil {
		set["imdbRating"] = *bundle.IMDB
	}
	if bundle.RottenTomatoes != nil {
		set["rottenTomatoes"] = *bundle.RottenTomatoes
	}
	if bundle.Metacritic != nil {
		set["metacritic"] = *bundle.Metacritic
	}

	res, err := s.items.UpdateOne(ctx, bson.M{"_id": key.String()}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, key domain.ItemKey) (domain.CatalogItem, error) {
	var doc itemDoc
	if err := s.items.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.CatalogItem{}, domain.ErrNotFound
		}
		return domain.CatalogItem{}, err
	}
	return fromItemDoc(doc), nil
}

func (s *Store) GetItems(ctx context.Context, keys []domain.ItemKey) ([]domain.CatalogItem, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.String())
	}

	cursor, err := s.items.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []itemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromItemDocs(docs), nil
}

// SearchItems matches term case-insensitively against titles,
// description, genre names, and credit names.
func (s *Store) SearchItems(ctx context.Context, term string) ([]domain.CatalogItem, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	pattern := bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
	query := bson.M{"$or": []bson.M{
		{"title": pattern},
		{"originalTitle": pattern},
		{"description": pattern},
		{"genreNames": pattern},
		{"directors.name": pattern},
		{"actors.name": pattern},
	}}

	cursor, err := s.items.Find(ctx, query, options.Find().SetLimit(defaultSearchLimit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []itemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromItemDocs(docs), nil
}

func (s *Store) DeleteItem(ctx context.Context, key domain.ItemKey) error {
	res, err := s.items.DeleteOne(ctx, bson.M{"_id": key.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
