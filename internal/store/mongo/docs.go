package mongo

import (
	"strconv"
	"time"

	"moviepicker/internal/domain"
)

type creditDoc struct {
	PersonID int64  `bson:"personId"`
	Name     string `bson:"name"`
}

type itemDoc struct {
	ID            string      `bson:"_id"` // "movie:603"
	ExternalID    int64       `bson:"externalId"`
	Type          string      `bson:"type"`
	Title         string      `bson:"title"`
	OriginalTitle string      `bson:"originalTitle,omitempty"`
	Year          int         `bson:"year,omitempty"`
	Description   string      `bson:"description,omitempty"`
	PosterURL     string      `bson:"posterUrl,omitempty"`
	IMDBID        string      `bson:"imdbId,omitempty"`
	TMDBRating    *float64    `bson:"tmdbRating,omitempty"`
	IMDBRating    *float64    `bson:"imdbRating,omitempty"`
	RottenToms    *int        `bson:"rottenTomatoes,omitempty"`
	Metacritic    *int        `bson:"metacritic,omitempty"`
	GenreIDs      []int64     `bson:"genreIds,omitempty"`
	GenreNames    []string    `bson:"genreNames,omitempty"` // denormalized for text search
	Directors     []creditDoc `bson:"directors,omitempty"`
	Actors        []creditDoc `bson:"actors,omitempty"`
	CreatedAt     int64       `bson:"createdAt"`
	UpdatedAt     int64       `bson:"updatedAt"`
}

type ratingDoc struct {
	ID         string `bson:"_id"`
	ExternalID int64  `bson:"externalId"`
	Type       string `bson:"type"`
	Rating     int    `bson:"rating"`
	Review     string `bson:"review,omitempty"`
	CreatedAt  int64  `bson:"createdAt"`
	UpdatedAt  int64  `bson:"updatedAt"`
}

type wishlistDoc struct {
	ID         string `bson:"_id"`
	ExternalID int64  `bson:"externalId"`
	Type       string `bson:"type"`
	AddedAt    int64  `bson:"addedAt"`
}

type statsDoc struct {
	ID          string   `bson:"_id"` // "genre:28"
	Kind        string   `bson:"kind"`
	EntityID    int64    `bson:"entityId"`
	AvgRating   *float64 `bson:"avgRating,omitempty"`
	RatingCount int      `bson:"ratingCount"`
}

type recListDoc struct {
	ID          string  `bson:"_id"` // source item key
	ExternalID  int64   `bson:"externalId"`
	Type        string  `bson:"type"`
	IDs         []int64 `bson:"ids"`
	RefreshedAt int64   `bson:"refreshedAt"`
}

func toItemDoc(item domain.CatalogItem, namer GenreNamer) itemDoc {
	var names []string
	if namer != nil {
		names = namer.Names(item.GenreIDs)
	}
	return itemDoc{
		ID:            item.Key.String(),
		ExternalID:    item.Key.ExternalID,
		Type:          string(item.Key.Type),
		Title:         item.Title,
		OriginalTitle: item.OriginalTitle,
		Year:          item.Year,
		Description:   item.Description,
		PosterURL:     item.PosterURL,
		IMDBID:        item.IMDBID,
		TMDBRating:    item.Ratings.TMDB,
		IMDBRating:    item.Ratings.IMDB,
		RottenToms:    item.Ratings.RottenTomatoes,
		Metacritic:    item.Ratings.Metacritic,
		GenreIDs:      item.GenreIDs,
		GenreNames:    names,
		Directors:     toCreditDocs(item.Directors),
		Actors:        toCreditDocs(item.Actors),
		CreatedAt:     item.CreatedAt.Unix(),
		UpdatedAt:     item.UpdatedAt.Unix(),
	}
}

func fromItemDoc(doc itemDoc) domain.CatalogItem {
	return domain.CatalogItem{
		Key:           domain.ItemKey{ExternalID: doc.ExternalID, Type: domain.ContentType(doc.Type)},
		Title:         doc.Title,
		OriginalTitle: doc.OriginalTitle,
		Year:          doc.Year,
		Description:   doc.Description,
		PosterURL:     doc.PosterURL,
		IMDBID:        doc.IMDBID,
		Ratings: domain.ExternalRatings{
			TMDB:           doc.TMDBRating,
			IMDB:           doc.IMDBRating,
			RottenTomatoes: doc.RottenToms,
			Metacritic:     doc.Metacritic,
		},
		GenreIDs:  doc.GenreIDs,
		Directors: fromCreditDocs(doc.Directors),
		Actors:    fromCreditDocs(doc.Actors),
		CreatedAt: timeFromUnix(doc.CreatedAt),
		UpdatedAt: timeFromUnix(doc.UpdatedAt),
	}
}

func fromItemDocs(docs []itemDoc) []domain.CatalogItem {
	items := make([]domain.CatalogItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fromItemDoc(doc))
	}
	return items
}

func toRatingDoc(r domain.UserRating) ratingDoc {
	return ratingDoc{
		ID:         r.Key.String(),
		ExternalID: r.Key.ExternalID,
		Type:       string(r.Key.Type),
		Rating:     r.Rating,
		Review:     r.Review,
		CreatedAt:  r.CreatedAt.Unix(),
		UpdatedAt:  r.UpdatedAt.Unix(),
	}
}

func fromRatingDoc(doc ratingDoc) domain.UserRating {
	return domain.UserRating{
		Key:       domain.ItemKey{ExternalID: doc.ExternalID, Type: domain.ContentType(doc.Type)},
		Rating:    doc.Rating,
		Review:    doc.Review,
		CreatedAt: timeFromUnix(doc.CreatedAt),
		UpdatedAt: timeFromUnix(doc.UpdatedAt),
	}
}

func toStatsDoc(s domain.EntityStats) statsDoc {
	return statsDoc{
		ID:          string(s.Kind) + ":" + itoa(s.EntityID),
		Kind:        string(s.Kind),
		EntityID:    s.EntityID,
		AvgRating:   s.AvgRating,
		RatingCount: s.RatingCount,
	}
}

func fromStatsDoc(doc statsDoc) domain.EntityStats {
	return domain.EntityStats{
		Kind:        domain.EntityKind(doc.Kind),
		EntityID:    doc.EntityID,
		AvgRating:   doc.AvgRating,
		RatingCount: doc.RatingCount,
	}
}

func toRecListDoc(list domain.RecommendationList) recListDoc {
	return recListDoc{
		ID:          list.Source.String(),
		ExternalID:  list.Source.ExternalID,
		Type:        string(list.Source.Type),
		IDs:         list.IDs,
		RefreshedAt: list.RefreshedAt.Unix(),
	}
}

func fromRecListDoc(doc recListDoc) domain.RecommendationList {
	return domain.RecommendationList{
		Source:      domain.ItemKey{ExternalID: doc.ExternalID, Type: domain.ContentType(doc.Type)},
		IDs:         doc.IDs,
		RefreshedAt: timeFromUnix(doc.RefreshedAt),
	}
}

func toCreditDocs(credits []domain.CreditRef) []creditDoc {
	if len(credits) == 0 {
		return nil
	}
	out := make([]creditDoc, 0, len(credits))
	for _, c := range credits {
		out = append(out, creditDoc{PersonID: c.PersonID, Name: c.Name})
	}
	return out
}

func fromCreditDocs(docs []creditDoc) []domain.CreditRef {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.CreditRef, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.CreditRef{PersonID: d.PersonID, Name: d.Name})
	}
	return out
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
