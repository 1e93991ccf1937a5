package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"moviepicker/internal/domain"
	"moviepicker/internal/metrics"
	"moviepicker/internal/scoring"
)

// candidateSet is the shared merge target for all fan-out branches.
// Identity is (external id, content type); the first partial for a key
// wins, later duplicates only fill missing fields via the store.
type candidateSet struct {
	mu    sync.Mutex
	byKey map[domain.ItemKey]domain.PartialItem
}

func newCandidateSet() *candidateSet {
	return &candidateSet{byKey: make(map[domain.ItemKey]domain.PartialItem)}
}

func (c *candidateSet) add(items ...domain.PartialItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		if item.Key.ExternalID == 0 || item.Key.Type == "" {
			continue
		}
		if _, exists := c.byKey[item.Key]; !exists {
			c.byKey[item.Key] = item
		}
	}
}

func (c *candidateSet) addKey(key domain.ItemKey) {
	c.add(domain.PartialItem{Key: key})
}

func (c *candidateSet) keys() []domain.ItemKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]domain.ItemKey, 0, len(c.byKey))
	for key := range c.byKey {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (c *candidateSet) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byKey)
}

// branch is one independent provider call inside a fan-out. Failures
// stay inside the branch; siblings keep running.
type branch struct {
	provider string
	run      func(ctx context.Context) ([]domain.PartialItem, error)
}

// Search fans the request out to every provider and the local store,
// merges candidates by identity, hydrates what the catalogue is
// missing, filters by tokens and genres, and ranks the survivors.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	tokens := tokenize(query)
	if len(tokens) == 0 && len(req.GenreIDs) == 0 {
		return Response{}, domain.ErrEmptyQuery
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	startedAt := time.Now()

	// One history snapshot feeds seeding and ranking; the set does not
	// shift under a single search.
	history, err := s.store.RatedItems(runCtx, 0)
	if err != nil {
		s.logger.Warn("search: rating history unavailable, ranking degrades to consensus", "error", err)
		history = nil
	}

	set := newCandidateSet()

	if page == 1 {
		s.seedFromRecommendations(runCtx, history, set)
	}

	statuses := s.runBranches(runCtx, s.buildBranches(tokens, query, req.GenreIDs, page), set)

	if page == 1 && query != "" {
		local, err := s.store.SearchItems(runCtx, query)
		if err != nil {
			s.logger.Warn("search: local store search failed", "query", query, "error", err)
		}
		for _, item := range local {
			set.addKey(item.Key)
		}
	}

	metrics.SearchCandidates.Observe(float64(set.len()))

	items := s.materialize(runCtx, set.keys())

	filtered := items[:0]
	for _, item := range items {
		if s.matchesTokens(item, tokens) && matchesGenres(item, req.GenreIDs) {
			filtered = append(filtered, item)
		}
	}

	s.rank(runCtx, filtered, history)

	s.logger.Info("search completed",
		"query", query,
		"genres", len(req.GenreIDs),
		"page", page,
		"candidates", set.len(),
		"results", len(filtered),
		"elapsedMs", time.Since(startedAt).Milliseconds(),
	)

	return Response{
		Items:     filtered,
		Providers: statuses,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
		Page:      page,
	}, nil
}

// seedFromRecommendations turns the recommendation lists of liked
// items into candidates. Cache hits cost nothing; misses fetch through
// the recommender, bounded like any other fan-out.
func (s *Service) seedFromRecommendations(ctx context.Context, history []domain.RatedItem, set *candidateSet) {
	if s.recs == nil {
		return
	}
	seeds := make([]domain.RatedItem, 0, maxRecSeeds)
	for _, rated := range history {
		if rated.Rating < domain.LikedMin {
			continue
		}
		seeds = append(seeds, rated)
		if len(seeds) == maxRecSeeds {
			break
		}
	}
	if len(seeds) == 0 {
		return
	}

	sem := semaphore.NewWeighted(maxConcurrentBranches)
	var wg sync.WaitGroup
	for _, seed := range seeds {
		wg.Add(1)
		go func(source domain.RatedItem) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			ids, err := s.recs.Resolve(ctx, source.Item.Key)
			if err != nil {
				s.logger.Warn("search: recommendation seed failed", "source", source.Item.Key, "error", err)
				return
			}
			if len(ids) > recsPerSeed {
				ids = ids[:recsPerSeed]
			}
			// Recommendation lists stay within the source's content type.
			for _, id := range ids {
				set.addKey(domain.ItemKey{ExternalID: id, Type: source.Item.Key.Type})
			}
		}(seed)
	}
	wg.Wait()
}

// buildBranches expands the request into independent provider calls:
// keyword search per token and page, genre discovery per page, and a
// person lookup resolving filmographies.
func (s *Service) buildBranches(tokens []string, query string, genreIDs []int64, page int) []branch {
	var branches []branch

	firstPage := (page-1)*s.pageWindow + 1
	for _, p := range s.providers {
		provider := p
		name := provider.Name()

		for _, tok := range tokens {
			token := tok
			for offset := 0; offset < s.pageWindow; offset++ {
				pg := firstPage + offset
				branches = append(branches,
					branch{name, func(ctx context.Context) ([]domain.PartialItem, error) {
						return provider.SearchMovies(ctx, token, pg)
					}},
					branch{name, func(ctx context.Context) ([]domain.PartialItem, error) {
						return provider.SearchSeries(ctx, token, pg)
					}},
				)
			}
		}

		if len(genreIDs) > 0 && s.genres != nil {
			movieIDs := s.genres.MovieGenreIDs(genreIDs)
			seriesIDs := s.genres.SeriesGenreIDs(genreIDs)
			for offset := 0; offset < s.pageWindow; offset++ {
				pg := firstPage + offset
				if len(movieIDs) > 0 {
					branches = append(branches, branch{name, func(ctx context.Context) ([]domain.PartialItem, error) {
						return provider.DiscoverMovies(ctx, movieIDs, pg)
					}})
				}
				// Genres without a series-side id skip the series branch.
				if len(seriesIDs) > 0 {
					branches = append(branches, branch{name, func(ctx context.Context) ([]domain.PartialItem, error) {
						return provider.DiscoverSeries(ctx, seriesIDs, pg)
					}})
				}
			}
		}

		if query != "" && page == 1 {
			branches = append(branches, branch{name, func(ctx context.Context) ([]domain.PartialItem, error) {
				return s.personBranch(ctx, provider, query)
			}})
		}
	}
	return branches
}

// personBranch resolves the query as a person name and merges the
// filmographies of the best matches.
func (s *Service) personBranch(ctx context.Context, provider MetadataProvider, query string) ([]domain.PartialItem, error) {
	persons, err := provider.SearchPerson(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(persons) > maxPersons {
		persons = persons[:maxPersons]
	}
	var out []domain.PartialItem
	for _, person := range persons {
		items, err := provider.Filmography(ctx, person.ID)
		if err != nil {
			return out, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// runBranches executes branches under the fan-out semaphore, merging
// every result into the shared set. A branch failure degrades to zero
// results; only the per-provider status carries the error.
func (s *Service) runBranches(ctx context.Context, branches []branch, set *candidateSet) []ProviderStatus {
	if len(branches) == 0 {
		return nil
	}

	type providerOutcome struct {
		branches int
		count    int
		firstErr error
	}
	outcomes := make(map[string]*providerOutcome)
	var mu sync.Mutex

	sem := semaphore.NewWeighted(maxConcurrentBranches)
	var wg sync.WaitGroup
	for _, b := range branches {
		wg.Add(1)
		go func(b branch) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			now := time.Now()
			if skip, reason := s.skipProvider(b.provider, now); skip {
				s.logger.Debug("search: branch skipped", "provider", b.provider, "reason", reason)
				return
			}
			if err := s.waitProviderRateLimit(ctx, b.provider); err != nil {
				return
			}

			branchStarted := time.Now()
			var items []domain.PartialItem
			err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
				var runErr error
				items, runErr = b.run(ctx)
				return runErr
			})
			s.recordProviderResult(b.provider, err, time.Since(branchStarted), time.Now())

			if err != nil {
				s.logger.Warn("search: provider branch failed", "provider", b.provider, "error", err)
			} else {
				set.add(items...)
			}

			mu.Lock()
			outcome := outcomes[b.provider]
			if outcome == nil {
				outcome = &providerOutcome{}
				outcomes[b.provider] = outcome
			}
			outcome.branches++
			outcome.count += len(items)
			if err != nil && outcome.firstErr == nil {
				outcome.firstErr = err
			}
			mu.Unlock()
		}(b)
	}
	wg.Wait()

	statuses := make([]ProviderStatus, 0, len(outcomes))
	for name, outcome := range outcomes {
		status := ProviderStatus{
			Name:     name,
			OK:       outcome.firstErr == nil,
			Branches: outcome.branches,
			Count:    outcome.count,
		}
		if outcome.firstErr != nil {
			status.Error = outcome.firstErr.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// rank orders items best first. With no rating history there is no
// personal signal, so raw aggregator consensus decides; absent
// consensus sorts last, ties break on title.
func (s *Service) rank(ctx context.Context, items []domain.CatalogItem, history []domain.RatedItem) {
	if len(items) < 2 {
		return
	}
	if len(history) == 0 || s.scorer == nil {
		sort.SliceStable(items, func(i, j int) bool {
			left, right := scoring.Consensus(items[i].Ratings), scoring.Consensus(items[j].Ratings)
			if left != right {
				return left > right
			}
			return items[i].Title < items[j].Title
		})
		return
	}

	scores := make(map[domain.ItemKey]float64, len(items))
	for _, item := range items {
		scores[item.Key] = s.scorer.Score(ctx, item, history)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if scores[items[i].Key] != scores[items[j].Key] {
			return scores[items[i].Key] > scores[items[j].Key]
		}
		return items[i].Title < items[j].Title
	})
}
