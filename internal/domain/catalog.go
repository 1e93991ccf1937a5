package domain

import (
	"fmt"
	"time"
)

type ContentType string

const (
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
)

func NormalizeContentType(raw string) (ContentType, bool) {
	switch ContentType(raw) {
	case ContentMovie:
		return ContentMovie, true
	case ContentSeries, "tv", "show":
		return ContentSeries, true
	default:
		return "", false
	}
}

// ItemKey identifies a catalogue item. The same external id can exist
// once as a movie and once as a series; they are distinct items.
type ItemKey struct {
	ExternalID int64       `json:"externalId"`
	Type       ContentType `json:"type"`
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.ExternalID)
}

func (k ItemKey) IsZero() bool {
	return k.ExternalID == 0 && k.Type == ""
}

type CreditRef struct {
	PersonID int64  `json:"personId"`
	Name     string `json:"name"`
}

// ExternalRatings carries aggregator scores. IMDB and TMDB are on a
// 0-10 scale, RottenTomatoes and Metacritic are percentages. A nil
// field means the aggregator had no score, not a zero score.
type ExternalRatings struct {
	TMDB           *float64 `json:"tmdb,omitempty"`
	IMDB           *float64 `json:"imdb,omitempty"`
	RottenTomatoes *int     `json:"rottenTomatoes,omitempty"`
	Metacritic     *int     `json:"metacritic,omitempty"`
}

func (r ExternalRatings) IsZero() bool {
	return r.TMDB == nil && r.IMDB == nil && r.RottenTomatoes == nil && r.Metacritic == nil
}

type CatalogItem struct {
	Key           ItemKey         `json:"key"`
	Title         string          `json:"title"`
	OriginalTitle string          `json:"originalTitle,omitempty"`
	Year          int             `json:"year,omitempty"`
	Description   string          `json:"description,omitempty"`
	PosterURL     string          `json:"posterUrl,omitempty"`
	IMDBID        string          `json:"imdbId,omitempty"`
	Ratings       ExternalRatings `json:"ratings"`
	GenreIDs      []int64         `json:"genreIds,omitempty"`
	Directors     []CreditRef     `json:"directors,omitempty"`
	// Actors keeps billing order; scoring only looks at the first few.
	Actors    []CreditRef `json:"actors,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Hydrated reports whether the item already carries full details
// (credits fetched at least once).
func (c CatalogItem) Hydrated() bool {
	return len(c.Directors) > 0 || len(c.Actors) > 0
}

type UserRating struct {
	Key       ItemKey   `json:"key"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	MinRating = 1
	MaxRating = 10

	// Ratings above the neutral midpoint count as liked, below as
	// disliked; exactly neutral items carry no signal.
	NeutralRating = 5
	LikedMin      = 6
	DislikedMax   = 4
)

func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// RatedItem pairs a catalogue item with the user's rating, the unit
// the scoring engine and affinity maintainer work on.
type RatedItem struct {
	Item   CatalogItem `json:"item"`
	Rating int         `json:"rating"`
}

type WishlistEntry struct {
	Key     ItemKey   `json:"key"`
	AddedAt time.Time `json:"addedAt"`
}

type RatingSortBy string

const (
	RatingSortByDate   RatingSortBy = "date"
	RatingSortByRating RatingSortBy = "rating"
	RatingSortByYear   RatingSortBy = "year"
	RatingSortByTitle  RatingSortBy = "title"
)

func NormalizeRatingSortBy(raw string) RatingSortBy {
	switch RatingSortBy(raw) {
	case RatingSortByRating:
		return RatingSortByRating
	case RatingSortByYear:
		return RatingSortByYear
	case RatingSortByTitle:
		return RatingSortByTitle
	default:
		return RatingSortByDate
	}
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

func NormalizeSortOrder(raw string) SortOrder {
	if SortOrder(raw) == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// RatingFilter narrows and orders the rated-items listing.
type RatingFilter struct {
	MinRating int
	MaxRating int
	GenreID   int64
	Type      ContentType
	SortBy    RatingSortBy
	SortOrder SortOrder
}

type EntityKind string

const (
	EntityGenre    EntityKind = "genre"
	EntityDirector EntityKind = "director"
	EntityActor    EntityKind = "actor"
)

// EntityStats is the maintained affinity aggregate for one entity.
// AvgRating is nil when no rated item references the entity.
type EntityStats struct {
	Kind        EntityKind `json:"kind"`
	EntityID    int64      `json:"entityId"`
	AvgRating   *float64   `json:"avgRating,omitempty"`
	RatingCount int        `json:"ratingCount"`
}

// RecommendationList is a cached provider recommendation payload for
// one source item.
type RecommendationList struct {
	Source      ItemKey   `json:"source"`
	IDs         []int64   `json:"ids"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// PartialItem is what a provider search returns before hydration.
type PartialItem struct {
	Key           ItemKey  `json:"key"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"originalTitle,omitempty"`
	Year          int      `json:"year,omitempty"`
	Description   string   `json:"description,omitempty"`
	PosterURL     string   `json:"posterUrl,omitempty"`
	TMDBRating    *float64 `json:"tmdbRating,omitempty"`
}

// FullItem is a hydrated provider payload: partial fields plus credits
// and identifiers needed for rating enrichment.
type FullItem struct {
	PartialItem
	IMDBID     string      `json:"imdbId,omitempty"`
	GenreNames []string    `json:"genreNames,omitempty"`
	Directors  []CreditRef `json:"directors,omitempty"`
	Actors     []CreditRef `json:"actors,omitempty"`
}

// RatingBundle is a partial set of aggregator ratings from a rating
// provider. Missing fields are valid and leave stored values alone.
type RatingBundle struct {
	IMDB           *float64
	RottenTomatoes *int
	Metacritic     *int
}

func (b RatingBundle) IsZero() bool {
	return b.IMDB == nil && b.RottenTomatoes == nil && b.Metacritic == nil
}

type Person struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Popularity float64 `json:"popularity,omitempty"`
}
