package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"moviepicker/internal/domain"
	"moviepicker/internal/genres"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeProvider struct {
	mu      sync.Mutex
	name    string
	movies  map[string][]domain.PartialItem
	series  map[string][]domain.PartialItem
	details map[domain.ItemKey]domain.FullItem
	recs    map[domain.ItemKey][]int64
	persons []domain.Person

	searchErr error
	calls     int
	detail    map[domain.ItemKey]int
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:    name,
		movies:  make(map[string][]domain.PartialItem),
		series:  make(map[string][]domain.PartialItem),
		details: make(map[domain.ItemKey]domain.FullItem),
		recs:    make(map[domain.ItemKey][]int64),
		detail:  make(map[domain.ItemKey]int),
	}
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Enabled() bool { return true }

func (f *fakeProvider) SearchMovies(_ context.Context, query string, page int) ([]domain.PartialItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if page > 1 {
		return nil, nil
	}
	return f.movies[query], nil
}

func (f *fakeProvider) SearchSeries(_ context.Context, query string, page int) ([]domain.PartialItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if page > 1 {
		return nil, nil
	}
	return f.series[query], nil
}

func (f *fakeProvider) DiscoverMovies(_ context.Context, _ []int64, page int) ([]domain.PartialItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if page > 1 {
		return nil, nil
	}
	return f.movies["_discover"], nil
}

func (f *fakeProvider) DiscoverSeries(_ context.Context, _ []int64, page int) ([]domain.PartialItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if page > 1 {
		return nil, nil
	}
	return f.series["_discover"], nil
}

func (f *fakeProvider) FullDetails(_ context.Context, key domain.ItemKey) (domain.FullItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detail[key]++
	full, ok := f.details[key]
	if !ok {
		return domain.FullItem{}, errors.New("no such item")
	}
	return full, nil
}

func (f *fakeProvider) Recommendations(_ context.Context, key domain.ItemKey) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recs[key], nil
}

func (f *fakeProvider) SearchPerson(_ context.Context, _ string) ([]domain.Person, error) {
	return f.persons, nil
}

func (f *fakeProvider) Filmography(_ context.Context, _ int64) ([]domain.PartialItem, error) {
	return f.movies["_filmography"], nil
}

func (f *fakeProvider) detailCalls(key domain.ItemKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detail[key]
}

type memStore struct {
	mu       sync.Mutex
	items    map[domain.ItemKey]domain.CatalogItem
	history  []domain.RatedItem
	wishlist map[domain.ItemKey]struct{}
	local    []domain.CatalogItem
	patches  map[domain.ItemKey]domain.RatingBundle
}

func newMemStore() *memStore {
	return &memStore{
		items:    make(map[domain.ItemKey]domain.CatalogItem),
		wishlist: make(map[domain.ItemKey]struct{}),
		patches:  make(map[domain.ItemKey]domain.RatingBundle),
	}
}

func (m *memStore) UpsertItem(_ context.Context, item domain.CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.Key] = item
	return nil
}

func (m *memStore) GetItems(_ context.Context, keys []domain.ItemKey) ([]domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CatalogItem
	for _, key := range keys {
		if item, ok := m.items[key]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) UpdateItemRatings(_ context.Context, key domain.ItemKey, bundle domain.RatingBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches[key] = bundle
	return nil
}

func (m *memStore) SearchItems(_ context.Context, _ string) ([]domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local, nil
}

func (m *memStore) RatedItems(_ context.Context, minRating int) ([]domain.RatedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RatedItem
	for _, r := range m.history {
		if r.Rating >= minRating {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) RatingsForItems(_ context.Context, keys []domain.ItemKey) (map[domain.ItemKey]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ItemKey]int)
	for _, r := range m.history {
		out[r.Item.Key] = r.Rating
	}
	return out, nil
}

func (m *memStore) WishlistKeys(_ context.Context) (map[domain.ItemKey]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ItemKey]struct{}, len(m.wishlist))
	for k := range m.wishlist {
		out[k] = struct{}{}
	}
	return out, nil
}

type fakeRecs struct {
	mu    sync.Mutex
	lists map[domain.ItemKey][]int64
	err   error
}

func (f *fakeRecs) Resolve(_ context.Context, key domain.ItemKey) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.lists[key], nil
}

type fakeScorer struct {
	scores map[domain.ItemKey]float64
}

func (f *fakeScorer) Score(_ context.Context, item domain.CatalogItem, _ []domain.RatedItem) float64 {
	return f.scores[item.Key]
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func movieKey(id int64) domain.ItemKey {
	return domain.ItemKey{ExternalID: id, Type: domain.ContentMovie}
}

func partialMovie(id int64, title string) domain.PartialItem {
	return domain.PartialItem{Key: movieKey(id), Title: title}
}

func fullMovie(id int64, title string, genreNames ...string) domain.FullItem {
	full := domain.FullItem{
		GenreNames: genreNames,
		Directors:  []domain.CreditRef{{PersonID: id * 10, Name: "Director " + title}},
		Actors:     []domain.CreditRef{{PersonID: id*10 + 1, Name: "Actor " + title}},
	}
	full.Key = movieKey(id)
	full.Title = title
	return full
}

func fullWithConsensus(id int64, title string, tmdb float64) domain.FullItem {
	full := fullMovie(id, title)
	if tmdb > 0 {
		full.TMDBRating = &tmdb
	}
	return full
}

func newTestService(t *testing.T, provider *fakeProvider, store *memStore, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{WithPageWindow(1)}
	return NewService(
		[]MetadataProvider{provider},
		nil,
		store,
		genres.NewNormalizer(),
		&fakeRecs{lists: map[domain.ItemKey][]int64{}},
		nil,
		append(base, opts...)...,
	)
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearchRequiresQueryOrGenres(t *testing.T) {
	svc := newTestService(t, newFakeProvider("tmdb"), newMemStore())
	_, err := svc.Search(context.Background(), Request{Query: "   "})
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSearchMergesAndHydrates(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.movies["matrix"] = []domain.PartialItem{partialMovie(603, "The Matrix")}
	provider.details[movieKey(603)] = fullMovie(603, "The Matrix", "Action")

	store := newMemStore()
	svc := newTestService(t, provider, store)

	resp, err := svc.Search(context.Background(), Request{Query: "matrix"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Key != movieKey(603) {
		t.Fatalf("items: %+v", resp.Items)
	}
	if !resp.Items[0].Hydrated() {
		t.Error("result must carry credits after hydration")
	}
	if len(resp.Items[0].GenreIDs) == 0 {
		t.Error("provider genre names must be normalized to ids")
	}
	if _, persisted := store.items[movieKey(603)]; !persisted {
		t.Error("hydrated item must be upserted into the store")
	}
	if len(resp.Providers) != 1 || !resp.Providers[0].OK {
		t.Errorf("provider status: %+v", resp.Providers)
	}
}

func TestSearchOneFailingBranchDoesNotAbortSiblings(t *testing.T) {
	healthy := newFakeProvider("tmdb")
	healthy.movies["matrix"] = []domain.PartialItem{partialMovie(603, "The Matrix")}
	healthy.details[movieKey(603)] = fullMovie(603, "The Matrix")

	broken := newFakeProvider("backup")
	broken.searchErr = errors.New("boom")

	store := newMemStore()
	svc := NewService(
		[]MetadataProvider{healthy, broken},
		nil, store, genres.NewNormalizer(),
		&fakeRecs{lists: map[domain.ItemKey][]int64{}}, nil,
		WithPageWindow(1),
	)

	resp, err := svc.Search(context.Background(), Request{Query: "matrix"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("healthy branch results lost: %+v", resp.Items)
	}
	var brokenStatus *ProviderStatus
	for i := range resp.Providers {
		if resp.Providers[i].Name == "backup" {
			brokenStatus = &resp.Providers[i]
		}
	}
	if brokenStatus == nil || brokenStatus.OK || brokenStatus.Error == "" {
		t.Errorf("broken provider status: %+v", resp.Providers)
	}
}

func TestSearchDedupesAcrossBranches(t *testing.T) {
	provider := newFakeProvider("tmdb")
	// Same item surfaces from two different tokens.
	provider.movies["the"] = []domain.PartialItem{partialMovie(603, "The Matrix")}
	provider.movies["matrix"] = []domain.PartialItem{partialMovie(603, "The Matrix")}
	provider.details[movieKey(603)] = fullMovie(603, "The Matrix")

	svc := newTestService(t, provider, newMemStore())
	resp, err := svc.Search(context.Background(), Request{Query: "the matrix"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("duplicate not collapsed: %+v", resp.Items)
	}
	if calls := provider.detailCalls(movieKey(603)); calls != 1 {
		t.Errorf("item hydrated %d times, want 1", calls)
	}
}

func TestSearchTokenFilterIsConjunctive(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.movies["matrix"] = []domain.PartialItem{
		partialMovie(603, "The Matrix"),
		partialMovie(700, "Matrix Unrelated"),
	}
	provider.movies["reloaded"] = []domain.PartialItem{partialMovie(604, "The Matrix Reloaded")}
	provider.details[movieKey(603)] = fullMovie(603, "The Matrix")
	provider.details[movieKey(604)] = fullMovie(604, "The Matrix Reloaded")
	provider.details[movieKey(700)] = fullMovie(700, "Matrix Unrelated")

	svc := newTestService(t, provider, newMemStore())
	resp, err := svc.Search(context.Background(), Request{Query: "matrix reloaded"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Key != movieKey(604) {
		t.Fatalf("only the item matching every token should survive: %+v", resp.Items)
	}
}

func TestSearchGenreFilterIsConjunctive(t *testing.T) {
	norm := genres.NewNormalizer()
	actionIDs := norm.Normalize("action")
	adventureIDs := norm.Normalize("adventure")
	if len(actionIDs) != 1 || len(adventureIDs) != 1 {
		t.Fatal("seed table must resolve action and adventure")
	}

	provider := newFakeProvider("tmdb")
	provider.movies["_discover"] = []domain.PartialItem{
		partialMovie(1, "Pure Action"),
		partialMovie(2, "Action Adventure"),
	}
	provider.details[movieKey(1)] = fullMovie(1, "Pure Action", "Action")
	provider.details[movieKey(2)] = fullMovie(2, "Action Adventure", "Action", "Adventure")

	svc := newTestService(t, provider, newMemStore())
	resp, err := svc.Search(context.Background(), Request{GenreIDs: []int64{actionIDs[0], adventureIDs[0]}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Key != movieKey(2) {
		t.Fatalf("genre AND filter: %+v", resp.Items)
	}
}

func TestSearchNoHistoryOrdersByConsensus(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.movies["matrix"] = []domain.PartialItem{
		partialMovie(1, "Matrix Low"),
		partialMovie(2, "Matrix High"),
		partialMovie(3, "Matrix None"),
	}
	provider.details[movieKey(1)] = fullWithConsensus(1, "Matrix Low", 5.5)
	provider.details[movieKey(2)] = fullWithConsensus(2, "Matrix High", 8.9)
	provider.details[movieKey(3)] = fullWithConsensus(3, "Matrix None", 0)

	svc := newTestService(t, provider, newMemStore())
	resp, err := svc.Search(context.Background(), Request{Query: "matrix"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items: %+v", resp.Items)
	}
	got := []int64{resp.Items[0].Key.ExternalID, resp.Items[1].Key.ExternalID, resp.Items[2].Key.ExternalID}
	if got[0] != 2 || got[1] != 1 || got[2] != 3 {
		t.Errorf("consensus order: %v, want [2 1 3]", got)
	}
}

func TestSearchWithHistoryUsesScorer(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.movies["matrix"] = []domain.PartialItem{
		partialMovie(1, "Matrix One"),
		partialMovie(2, "Matrix Two"),
	}
	provider.details[movieKey(1)] = fullWithConsensus(1, "Matrix One", 9.0)
	provider.details[movieKey(2)] = fullWithConsensus(2, "Matrix Two", 2.0)

	store := newMemStore()
	store.history = []domain.RatedItem{{Item: domain.CatalogItem{Key: movieKey(99)}, Rating: 8}}

	scorer := &fakeScorer{scores: map[domain.ItemKey]float64{
		movieKey(1): 0.1,
		movieKey(2): 5.0,
	}}
	svc := NewService(
		[]MetadataProvider{provider}, nil, store, genres.NewNormalizer(),
		&fakeRecs{lists: map[domain.ItemKey][]int64{}}, scorer,
		WithPageWindow(1),
	)

	resp, err := svc.Search(context.Background(), Request{Query: "matrix"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 || resp.Items[0].Key != movieKey(2) {
		t.Errorf("personal score must outrank consensus: %+v", resp.Items)
	}
}

func TestSearchSeedsFromLikedRecommendations(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.details[movieKey(200)] = fullMovie(200, "Matrix Sequel")

	store := newMemStore()
	store.history = []domain.RatedItem{
		{Item: domain.CatalogItem{Key: movieKey(100), Title: "The Matrix"}, Rating: 9},
	}

	recs := &fakeRecs{lists: map[domain.ItemKey][]int64{movieKey(100): {200}}}
	svc := NewService(
		[]MetadataProvider{provider}, nil, store, genres.NewNormalizer(), recs, nil,
		WithPageWindow(1),
	)

	resp, err := svc.Search(context.Background(), Request{Query: "matrix"})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, item := range resp.Items {
		if item.Key == movieKey(200) {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendation-seeded candidate missing: %+v", resp.Items)
	}
}

func TestSearchSecondPageSkipsSeedingAndLocal(t *testing.T) {
	provider := newFakeProvider("tmdb")
	store := newMemStore()
	store.history = []domain.RatedItem{
		{Item: domain.CatalogItem{Key: movieKey(100), Title: "The Matrix"}, Rating: 9},
	}
	store.local = []domain.CatalogItem{{Key: movieKey(300), Title: "Matrix Local"}}

	recs := &fakeRecs{lists: map[domain.ItemKey][]int64{movieKey(100): {200}}}
	svc := NewService(
		[]MetadataProvider{provider}, nil, store, genres.NewNormalizer(), recs, nil,
		WithPageWindow(1),
	)

	resp, err := svc.Search(context.Background(), Request{Query: "matrix", Page: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("page 2 must not include seeds or local matches: %+v", resp.Items)
	}
}

func TestSessionDisabledProviderIsSkipped(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.searchErr = fmt.Errorf("tmdb HTTP 401: %w", domain.ErrProviderDisabled)

	svc := newTestService(t, provider, newMemStore())
	if _, err := svc.Search(context.Background(), Request{Query: "matrix"}); err != nil {
		t.Fatal(err)
	}

	before := provider.calls
	if _, err := svc.Search(context.Background(), Request{Query: "matrix"}); err != nil {
		t.Fatal(err)
	}
	if provider.calls != before {
		t.Errorf("disabled provider was called again: %d -> %d", before, provider.calls)
	}

	diags := svc.ProviderDiagnostics()
	if len(diags) != 1 || !diags[0].SessionDisabled {
		t.Errorf("diagnostics: %+v", diags)
	}
}

// ---------------------------------------------------------------------------
// PickBest / FindSimilar
// ---------------------------------------------------------------------------

func TestPickBestExcludesRatedAndWishlisted(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.details[movieKey(200)] = fullWithConsensus(200, "Fresh Pick", 7.0)

	store := newMemStore()
	store.history = []domain.RatedItem{
		{Item: domain.CatalogItem{Key: movieKey(100), Title: "Seed"}, Rating: 9},
		{Item: domain.CatalogItem{Key: movieKey(201), Title: "Seen"}, Rating: 7},
	}
	store.wishlist[movieKey(202)] = struct{}{}

	recs := &fakeRecs{lists: map[domain.ItemKey][]int64{
		movieKey(100): {200, 201, 202},
	}}
	svc := NewService(
		[]MetadataProvider{provider}, nil, store, genres.NewNormalizer(), recs, nil,
		WithPageWindow(1),
	)

	best, err := svc.PickBest(context.Background())
	if err != nil {
		t.Fatalf("PickBest: %v", err)
	}
	if best.Key != movieKey(200) {
		t.Errorf("best = %v, want the unseen unwishlisted candidate", best.Key)
	}
}

func TestPickBestNoLikedHistory(t *testing.T) {
	store := newMemStore()
	store.history = []domain.RatedItem{
		{Item: domain.CatalogItem{Key: movieKey(1)}, Rating: 3},
	}
	svc := newTestService(t, newFakeProvider("tmdb"), store)

	_, err := svc.PickBest(context.Background())
	if !errors.Is(err, domain.ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestFindSimilarExcludesSourceAndRanks(t *testing.T) {
	provider := newFakeProvider("tmdb")
	provider.details[movieKey(604)] = fullWithConsensus(604, "Reloaded", 7.0)
	provider.details[movieKey(605)] = fullWithConsensus(605, "Revolutions", 6.5)

	store := newMemStore()
	recs := &fakeRecs{lists: map[domain.ItemKey][]int64{
		movieKey(603): {603, 604, 605},
	}}
	svc := NewService(
		[]MetadataProvider{provider}, nil, store, genres.NewNormalizer(), recs, nil,
		WithPageWindow(1),
	)

	items, err := svc.FindSimilar(context.Background(), movieKey(603))
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("source item must be excluded: %+v", items)
	}
	if items[0].Key != movieKey(604) {
		t.Errorf("consensus order: %+v", items)
	}
}

func TestFindSimilarResolveErrorPropagates(t *testing.T) {
	svc := NewService(
		[]MetadataProvider{newFakeProvider("tmdb")}, nil, newMemStore(), genres.NewNormalizer(),
		&fakeRecs{err: errors.New("provider down")}, nil,
		WithPageWindow(1),
	)
	if _, err := svc.FindSimilar(context.Background(), movieKey(603)); err == nil {
		t.Fatal("expected error when the recommendation list cannot be resolved")
	}
}

// ---------------------------------------------------------------------------
// Tokenizing and matching
// ---------------------------------------------------------------------------

func TestTokenize(t *testing.T) {
	got := tokenize("  The MATRIX: reloaded (1999) ")
	want := []string{"the", "matrix", "reloaded", "1999"}
	if len(got) != len(want) {
		t.Fatalf("tokens: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMatchesTokensSearchesAllFields(t *testing.T) {
	svc := newTestService(t, newFakeProvider("tmdb"), newMemStore())
	item := domain.CatalogItem{
		Key:       movieKey(1),
		Title:     "Heat",
		Directors: []domain.CreditRef{{PersonID: 1, Name: "Michael Mann"}},
	}
	if !svc.matchesTokens(item, []string{"mann"}) {
		t.Error("director name must be searchable")
	}
	if svc.matchesTokens(item, []string{"heat", "pacino"}) {
		t.Error("every token must match")
	}
}
