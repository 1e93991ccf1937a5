package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"moviepicker/internal/domain"
	"moviepicker/internal/metrics"
)

const deferredEnrichTimeout = 2 * time.Minute

// materialize turns candidate keys into full catalogue items. Items
// the store already holds with credits are used as-is; the rest are
// hydrated concurrently from the providers and persisted. Candidates
// that cannot be hydrated are dropped.
func (s *Service) materialize(ctx context.Context, keys []domain.ItemKey) []domain.CatalogItem {
	if len(keys) == 0 {
		return nil
	}

	known := make(map[domain.ItemKey]domain.CatalogItem, len(keys))
	stored, err := s.store.GetItems(ctx, keys)
	if err != nil {
		s.logger.Warn("hydration: store lookup failed", "keys", len(keys), "error", err)
	}
	for _, item := range stored {
		known[item.Key] = item
	}

	var (
		mu  sync.Mutex
		out = make([]domain.CatalogItem, 0, len(keys))
	)
	needy := make([]domain.ItemKey, 0, len(keys))
	for _, key := range keys {
		if item, ok := known[key]; ok && item.Hydrated() {
			out = append(out, item)
			continue
		}
		needy = append(needy, key)
	}

	sem := semaphore.NewWeighted(maxConcurrentHydrations)
	var wg sync.WaitGroup
	var pendingEnrich []domain.FullItem

	for _, key := range needy {
		fallback, hasFallback := known[key]

		wg.Add(1)
		go func(key domain.ItemKey) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			item, full, ok := s.hydrateOne(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ok:
				out = append(out, item)
				if s.fastHydration {
					pendingEnrich = append(pendingEnrich, full)
				}
			case hasFallback:
				// A stale local row beats dropping the candidate.
				out = append(out, fallback)
			}
		}(key)
	}
	wg.Wait()

	if len(pendingEnrich) > 0 {
		go s.enrichDeferred(ctx, pendingEnrich)
	}
	return out
}

// hydrateOne fetches full details for one key, persists the item, and
// runs rating enrichment inline unless fast hydration defers it.
func (s *Service) hydrateOne(ctx context.Context, key domain.ItemKey) (domain.CatalogItem, domain.FullItem, bool) {
	provider := s.pickHydrationProvider(time.Now())
	if provider == nil {
		return domain.CatalogItem{}, domain.FullItem{}, false
	}

	if err := s.waitProviderRateLimit(ctx, provider.Name()); err != nil {
		return domain.CatalogItem{}, domain.FullItem{}, false
	}
	startedAt := time.Now()
	full, err := provider.FullDetails(ctx, key)
	s.recordProviderResult(provider.Name(), err, time.Since(startedAt), time.Now())
	if err != nil {
		metrics.HydrationsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("hydration failed", "key", key, "provider", provider.Name(), "error", err)
		return domain.CatalogItem{}, domain.FullItem{}, false
	}

	item := s.catalogFromFull(full)
	if !s.fastHydration {
		s.applyRatings(ctx, full, &item)
	}

	// A concurrent hydration of the same identity may win the insert
	// race; the store treats the duplicate as success.
	if err := s.store.UpsertItem(ctx, item); err != nil {
		metrics.HydrationsTotal.WithLabelValues("store_error").Inc()
		s.logger.Warn("hydration: persist failed", "key", key, "error", err)
		return item, full, true
	}
	metrics.HydrationsTotal.WithLabelValues("ok").Inc()
	return item, full, true
}

// pickHydrationProvider returns the first healthy metadata provider.
func (s *Service) pickHydrationProvider(now time.Time) MetadataProvider {
	for _, p := range s.providers {
		if skip, _ := s.skipProvider(p.Name(), now); !skip {
			return p
		}
	}
	return nil
}

// catalogFromFull converts a provider payload into a catalogue item,
// normalizing provider genre labels into canonical ids.
func (s *Service) catalogFromFull(full domain.FullItem) domain.CatalogItem {
	item := domain.CatalogItem{
		Key:           full.Key,
		Title:         full.Title,
		OriginalTitle: full.OriginalTitle,
		Year:          full.Year,
		Description:   full.Description,
		PosterURL:     full.PosterURL,
		IMDBID:        full.IMDBID,
		Directors:     full.Directors,
		Actors:        full.Actors,
	}
	if s.genres != nil {
		item.GenreIDs = s.genres.NormalizeAll(full.GenreNames)
	}
	if full.TMDBRating != nil {
		v := *full.TMDBRating
		item.Ratings.TMDB = &v
	}
	return item
}

// applyRatings queries the rating providers and folds their partial
// bundles into the item. Provider failures leave the fields nil.
func (s *Service) applyRatings(ctx context.Context, full domain.FullItem, item *domain.CatalogItem) {
	bundle := s.collectRatings(ctx, full)
	if bundle.IsZero() {
		return
	}
	if bundle.IMDB != nil {
		item.Ratings.IMDB = bundle.IMDB
	}
	if bundle.RottenTomatoes != nil {
		item.Ratings.RottenTomatoes = bundle.RottenTomatoes
	}
	if bundle.Metacritic != nil {
		item.Ratings.Metacritic = bundle.Metacritic
	}
}

// collectRatings asks each rating provider in order; earlier providers
// win, later ones only fill gaps.
func (s *Service) collectRatings(ctx context.Context, full domain.FullItem) domain.RatingBundle {
	var merged domain.RatingBundle
	now := time.Now()
	for _, provider := range s.ratings {
		if skip, _ := s.skipProvider(provider.Name(), now); skip {
			continue
		}
		if err := s.waitProviderRateLimit(ctx, provider.Name()); err != nil {
			return merged
		}
		startedAt := time.Now()
		bundle, err := provider.Ratings(ctx, full)
		s.recordProviderResult(provider.Name(), err, time.Since(startedAt), time.Now())
		if err != nil {
			s.logger.Warn("rating enrichment failed", "key", full.Key, "provider", provider.Name(), "error", err)
			continue
		}
		if merged.IMDB == nil {
			merged.IMDB = bundle.IMDB
		}
		if merged.RottenTomatoes == nil {
			merged.RottenTomatoes = bundle.RottenTomatoes
		}
		if merged.Metacritic == nil {
			merged.Metacritic = bundle.Metacritic
		}
	}
	return merged
}

// enrichDeferred is the fast-hydration background pass. It outlives
// the request, so it runs on a detached context with its own deadline,
// re-checked before every provider call and every write; expiry
// abandons the remaining items silently.
func (s *Service) enrichDeferred(parent context.Context, items []domain.FullItem) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), deferredEnrichTimeout)
	defer cancel()

	for _, full := range items {
		if ctx.Err() != nil {
			return
		}
		bundle := s.collectRatings(ctx, full)
		if bundle.IsZero() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.store.UpdateItemRatings(ctx, full.Key, bundle); err != nil {
			s.logger.Warn("deferred enrichment: persist failed", "key", full.Key, "error", err)
		}
	}
}
