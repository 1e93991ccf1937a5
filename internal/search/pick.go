package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"moviepicker/internal/domain"
	"moviepicker/internal/scoring"
)

// PickBest returns the single highest-scoring unrated item drawn from
// the recommendation lists of liked items. Returns ErrNoCandidates
// when the user's history offers nothing new.
func (s *Service) PickBest(ctx context.Context) (domain.CatalogItem, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	history, err := s.store.RatedItems(runCtx, 0)
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("load rating history: %w", err)
	}

	seeds := make([]domain.RatedItem, 0, pickBestSeeds)
	for _, rated := range history {
		if rated.Rating < domain.LikedMin {
			continue
		}
		seeds = append(seeds, rated)
		if len(seeds) == pickBestSeeds {
			break
		}
	}
	if len(seeds) == 0 || s.recs == nil {
		return domain.CatalogItem{}, domain.ErrNoCandidates
	}

	set := newCandidateSet()
	sem := semaphore.NewWeighted(maxConcurrentBranches)
	var wg sync.WaitGroup
	for _, seed := range seeds {
		wg.Add(1)
		go func(source domain.RatedItem) {
			defer wg.Done()
			if err := sem.Acquire(runCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			ids, err := s.recs.Resolve(runCtx, source.Item.Key)
			if err != nil {
				s.logger.Warn("pick: recommendation seed failed", "source", source.Item.Key, "error", err)
				return
			}
			for _, id := range ids {
				set.addKey(domain.ItemKey{ExternalID: id, Type: source.Item.Key.Type})
			}
		}(seed)
	}
	wg.Wait()

	// Already-seen items are not suggestions.
	rated := make(map[domain.ItemKey]struct{}, len(history))
	for _, r := range history {
		rated[r.Item.Key] = struct{}{}
	}
	wishlisted, err := s.store.WishlistKeys(runCtx)
	if err != nil {
		s.logger.Warn("pick: wishlist unavailable, not excluding", "error", err)
	}

	keys := make([]domain.ItemKey, 0, set.len())
	for _, key := range set.keys() {
		if _, seen := rated[key]; seen {
			continue
		}
		if _, planned := wishlisted[key]; planned {
			continue
		}
		keys = append(keys, key)
		if len(keys) == pickBestScored {
			break
		}
	}
	if len(keys) == 0 {
		return domain.CatalogItem{}, domain.ErrNoCandidates
	}

	items := s.materialize(runCtx, keys)
	if len(items) == 0 {
		return domain.CatalogItem{}, domain.ErrNoCandidates
	}

	best := items[0]
	bestScore := s.scoreOrConsensus(runCtx, best, history)
	for _, item := range items[1:] {
		if score := s.scoreOrConsensus(runCtx, item, history); score > bestScore {
			best, bestScore = item, score
		}
	}
	return best, nil
}

// FindSimilar hydrates and ranks one item's recommendation list.
func (s *Service) FindSimilar(ctx context.Context, key domain.ItemKey) ([]domain.CatalogItem, error) {
	if s.recs == nil {
		return nil, domain.ErrNoCandidates
	}
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	startedAt := time.Now()

	ids, err := s.recs.Resolve(runCtx, key)
	if err != nil {
		return nil, fmt.Errorf("resolve recommendations for %s: %w", key, err)
	}
	if len(ids) > similarCap {
		ids = ids[:similarCap]
	}

	keys := make([]domain.ItemKey, 0, len(ids))
	for _, id := range ids {
		if id == key.ExternalID {
			continue
		}
		keys = append(keys, domain.ItemKey{ExternalID: id, Type: key.Type})
	}
	if len(keys) == 0 {
		return nil, nil
	}

	history, err := s.store.RatedItems(runCtx, 0)
	if err != nil {
		s.logger.Warn("similar: rating history unavailable, ranking degrades to consensus", "error", err)
		history = nil
	}

	items := s.materialize(runCtx, keys)
	s.rank(runCtx, items, history)

	s.logger.Info("similar lookup completed",
		"source", key,
		"results", len(items),
		"elapsedMs", time.Since(startedAt).Milliseconds(),
	)
	return items, nil
}

func (s *Service) scoreOrConsensus(ctx context.Context, item domain.CatalogItem, history []domain.RatedItem) float64 {
	if len(history) == 0 || s.scorer == nil {
		return scoring.Consensus(item.Ratings)
	}
	return s.scorer.Score(ctx, item, history)
}
