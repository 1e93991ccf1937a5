package mongo

import (
	"math"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"moviepicker/internal/domain"
)

type staticNamer map[int64]string

func (n staticNamer) Names(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := n[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

// ---------------------------------------------------------------------------
// toItemDoc / fromItemDoc roundtrip
// ---------------------------------------------------------------------------

func TestItemDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	item := domain.CatalogItem{
		Key:           domain.ItemKey{ExternalID: 603, Type: domain.ContentMovie},
		Title:         "The Matrix",
		OriginalTitle: "The Matrix",
		Year:          1999,
		Description:   "A hacker learns the truth.",
		PosterURL:     "/poster/603.jpg",
		IMDBID:        "tt0133093",
		Ratings: domain.ExternalRatings{
			TMDB:           ptrF(8.2),
			IMDB:           ptrF(8.7),
			RottenTomatoes: ptrI(88),
			Metacritic:     ptrI(73),
		},
		GenreIDs: []int64{1, 15},
		Directors: []domain.CreditRef{
			{PersonID: 9339, Name: "Lana Wachowski"},
			{PersonID: 9340, Name: "Lilly Wachowski"},
		},
		Actors: []domain.CreditRef{
			{PersonID: 6384, Name: "Keanu Reeves"},
			{PersonID: 2975, Name: "Laurence Fishburne"},
		},
		CreatedAt: now,
		UpdatedAt: now.Add(time.Minute),
	}

	namer := staticNamer{1: "action", 15: "science fiction"}
	doc := toItemDoc(item, namer)
	got := fromItemDoc(doc)

	if got.Key != item.Key {
		t.Errorf("Key: got %+v, want %+v", got.Key, item.Key)
	}
	if got.Title != item.Title || got.OriginalTitle != item.OriginalTitle {
		t.Errorf("titles: got %q/%q", got.Title, got.OriginalTitle)
	}
	if got.Year != item.Year {
		t.Errorf("Year: got %d, want %d", got.Year, item.Year)
	}
	if got.IMDBID != item.IMDBID {
		t.Errorf("IMDBID: got %q, want %q", got.IMDBID, item.IMDBID)
	}
	if !reflect.DeepEqual(got.Ratings, item.Ratings) {
		t.Errorf("Ratings: got %+v, want %+v", got.Ratings, item.Ratings)
	}
	if !reflect.DeepEqual(got.GenreIDs, item.GenreIDs) {
		t.Errorf("GenreIDs: got %v, want %v", got.GenreIDs, item.GenreIDs)
	}
	if !reflect.DeepEqual(got.Directors, item.Directors) {
		t.Errorf("Directors: got %v, want %v", got.Directors, item.Directors)
	}
	if !reflect.DeepEqual(got.Actors, item.Actors) {
		t.Errorf("Actors: got %v, want %v", got.Actors, item.Actors)
	}
	// Time loses sub-second precision through Unix conversion.
	if got.CreatedAt.Unix() != item.CreatedAt.Unix() {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, item.CreatedAt)
	}
	if got.UpdatedAt.Unix() != item.UpdatedAt.Unix() {
		t.Errorf("UpdatedAt: got %v, want %v", got.UpdatedAt, item.UpdatedAt)
	}
}

func TestItemDocIdentity(t *testing.T) {
	movie := domain.CatalogItem{Key: domain.ItemKey{ExternalID: 100, Type: domain.ContentMovie}, Title: "A"}
	series := domain.CatalogItem{Key: domain.ItemKey{ExternalID: 100, Type: domain.ContentSeries}, Title: "B"}

	// Same external id, different content type: distinct documents.
	if toItemDoc(movie, nil).ID == toItemDoc(series, nil).ID {
		t.Fatal("movie and series with the same external id must map to distinct _ids")
	}
	if toItemDoc(movie, nil).ID != "movie:100" {
		t.Errorf("doc id = %q, want movie:100", toItemDoc(movie, nil).ID)
	}
}

func TestItemDocGenreNamesDenormalized(t *testing.T) {
	item := domain.CatalogItem{
		Key:      domain.ItemKey{ExternalID: 1, Type: domain.ContentMovie},
		GenreIDs: []int64{1, 7, 99},
	}
	namer := staticNamer{1: "action", 7: "drama"}

	doc := toItemDoc(item, namer)
	if !reflect.DeepEqual(doc.GenreNames, []string{"action", "drama"}) {
		t.Errorf("GenreNames = %v, want [action drama]", doc.GenreNames)
	}

	// Without a namer the field is simply absent.
	if names := toItemDoc(item, nil).GenreNames; names != nil {
		t.Errorf("GenreNames without namer = %v, want nil", names)
	}
}

func TestItemDocNilRatingsStayNil(t *testing.T) {
	item := domain.CatalogItem{Key: domain.ItemKey{ExternalID: 2, Type: domain.ContentSeries}}
	got := fromItemDoc(toItemDoc(item, nil))
	if !got.Ratings.IsZero() {
		t.Errorf("Ratings should stay unset, got %+v", got.Ratings)
	}
}

// ---------------------------------------------------------------------------
// rating / stats / recommendation docs
// ---------------------------------------------------------------------------

func TestRatingDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	rating := domain.UserRating{
		Key:       domain.ItemKey{ExternalID: 603, Type: domain.ContentMovie},
		Rating:    9,
		Review:    "rewatched, still great",
		CreatedAt: now,
		UpdatedAt: now,
	}

	got := fromRatingDoc(toRatingDoc(rating))
	if got.Key != rating.Key || got.Rating != rating.Rating || got.Review != rating.Review {
		t.Errorf("roundtrip: got %+v, want %+v", got, rating)
	}
}

func TestStatsDocRoundtrip(t *testing.T) {
	tests := []struct {
		name  string
		stats domain.EntityStats
	}{
		{"with average", domain.EntityStats{Kind: domain.EntityDirector, EntityID: 525, AvgRating: ptrF(7.5), RatingCount: 4}},
		{"cleared", domain.EntityStats{Kind: domain.EntityGenre, EntityID: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromStatsDoc(toStatsDoc(tt.stats))
			if !reflect.DeepEqual(got, tt.stats) {
				t.Errorf("roundtrip: got %+v, want %+v", got, tt.stats)
			}
		})
	}
}

func TestStatsDocID(t *testing.T) {
	doc := toStatsDoc(domain.EntityStats{Kind: domain.EntityActor, EntityID: 6384})
	if doc.ID != "actor:6384" {
		t.Errorf("stats doc id = %q, want actor:6384", doc.ID)
	}
}

func TestRecListDocRoundtrip(t *testing.T) {
	list := domain.RecommendationList{
		Source:      domain.ItemKey{ExternalID: 1399, Type: domain.ContentSeries},
		IDs:         []int64{60574, 1402, 456},
		RefreshedAt: time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC),
	}
	got := fromRecListDoc(toRecListDoc(list))
	if got.Source != list.Source {
		t.Errorf("Source: got %+v, want %+v", got.Source, list.Source)
	}
	if !reflect.DeepEqual(got.IDs, list.IDs) {
		t.Errorf("IDs: got %v, want %v", got.IDs, list.IDs)
	}
	if !got.RefreshedAt.Equal(list.RefreshedAt) {
		t.Errorf("RefreshedAt: got %v, want %v", got.RefreshedAt, list.RefreshedAt)
	}
}

// ---------------------------------------------------------------------------
// BSON serialization integrity
// ---------------------------------------------------------------------------

func TestItemDocBSONRoundtrip(t *testing.T) {
	item := domain.CatalogItem{
		Key:     domain.ItemKey{ExternalID: 550, Type: domain.ContentMovie},
		Title:   "Fight Club",
		Ratings: domain.ExternalRatings{TMDB: ptrF(8.4)},
		Actors:  []domain.CreditRef{{PersonID: 287, Name: "Brad Pitt"}},
	}

	raw, err := bson.Marshal(toItemDoc(item, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded itemDoc
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.ID != "movie:550" {
		t.Errorf("ID mismatch after BSON roundtrip: %q", decoded.ID)
	}
	if decoded.TMDBRating == nil || math.Abs(*decoded.TMDBRating-8.4) > 1e-9 {
		t.Errorf("TMDBRating lost in BSON roundtrip: %v", decoded.TMDBRating)
	}
	if len(decoded.Actors) != 1 || decoded.Actors[0].Name != "Brad Pitt" {
		t.Errorf("Actors lost in BSON roundtrip: %v", decoded.Actors)
	}
	if decoded.IMDBRating != nil {
		t.Errorf("unset rating should stay nil, got %v", decoded.IMDBRating)
	}
}

func TestItemDocIDMappedTo_id(t *testing.T) {
	raw, err := bson.Marshal(toItemDoc(domain.CatalogItem{
		Key: domain.ItemKey{ExternalID: 42, Type: domain.ContentSeries},
	}, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["_id"] != "series:42" {
		t.Errorf("expected _id=series:42, got %v", m["_id"])
	}
}

// ---------------------------------------------------------------------------
// sortRated
// ---------------------------------------------------------------------------

func TestSortRated(t *testing.T) {
	key := func(id int64) domain.ItemKey {
		return domain.ItemKey{ExternalID: id, Type: domain.ContentMovie}
	}
	rated := []domain.RatedItem{
		{Item: domain.CatalogItem{Key: key(1), Title: "Beta", Year: 2001}, Rating: 7},
		{Item: domain.CatalogItem{Key: key(2), Title: "Alpha", Year: 1999}, Rating: 9},
		{Item: domain.CatalogItem{Key: key(3), Title: "Gamma", Year: 2010}, Rating: 3},
	}
	updated := map[domain.ItemKey]int64{key(1): 10, key(2): 30, key(3): 20}

	titles := func(v []domain.RatedItem) []string {
		out := make([]string, 0, len(v))
		for _, r := range v {
			out = append(out, r.Item.Title)
		}
		return out
	}

	tests := []struct {
		name  string
		by    domain.RatingSortBy
		order domain.SortOrder
		want  []string
	}{
		{"rating desc", domain.RatingSortByRating, domain.SortDesc, []string{"Alpha", "Beta", "Gamma"}},
		{"rating asc", domain.RatingSortByRating, domain.SortAsc, []string{"Gamma", "Beta", "Alpha"}},
		{"year asc", domain.RatingSortByYear, domain.SortAsc, []string{"Alpha", "Beta", "Gamma"}},
		{"title asc", domain.RatingSortByTitle, domain.SortAsc, []string{"Alpha", "Beta", "Gamma"}},
		{"date desc", domain.RatingSortByDate, domain.SortDesc, []string{"Alpha", "Gamma", "Beta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := append([]domain.RatedItem(nil), rated...)
			sortRated(v, tt.by, tt.order, updated)
			if got := titles(v); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// timeFromUnix
// ---------------------------------------------------------------------------

func TestTimeFromUnix(t *testing.T) {
	got := timeFromUnix(1708329600)
	if !got.Equal(time.Unix(1708329600, 0).UTC()) {
		t.Errorf("timeFromUnix = %v", got)
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
}

// ---------------------------------------------------------------------------
// EnsureIndexes nil safety
// ---------------------------------------------------------------------------

func TestEnsureIndexesNilStore(t *testing.T) {
	var s *Store
	if err := s.EnsureIndexes(nil); err != nil {
		t.Errorf("expected nil error for nil store, got %v", err)
	}
}
