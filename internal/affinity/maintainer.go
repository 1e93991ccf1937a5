package affinity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moviepicker/internal/domain"
)

// Store is the slice of the local store the maintainer needs. The
// RatedItemsBy* queries return every rated item linked to any of the
// given entity ids, one query per entity kind.
type Store interface {
	RatedItemsByGenres(ctx context.Context, ids []int64) ([]domain.RatedItem, error)
	RatedItemsByDirectors(ctx context.Context, ids []int64) ([]domain.RatedItem, error)
	RatedItemsByActors(ctx context.Context, ids []int64) ([]domain.RatedItem, error)
	UpdateEntityStats(ctx context.Context, stats []domain.EntityStats) error
}

const (
	// Only the top-billed actors of the changed item trigger a
	// recompute; deep cast entries carry too little signal.
	topActorsMaintained = 5

	recomputeTimeout = 30 * time.Second
)

// Maintainer keeps per-entity affinity aggregates in step with the
// rating table.
type Maintainer struct {
	store  Store
	logger *slog.Logger
}

func NewMaintainer(store Store, logger *slog.Logger) *Maintainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{store: store, logger: logger}
}

// Recompute rebuilds (average, count) for every genre, director, and
// top-billed actor linked to item, from scratch over all rated items
// sharing the entity. It is idempotent and safe to retry; entities
// with no qualifying items get their average cleared rather than left
// stale.
func (m *Maintainer) Recompute(ctx context.Context, item domain.CatalogItem) error {
	var stats []domain.EntityStats

	if ids := item.GenreIDs; len(ids) > 0 {
		rated, err := m.store.RatedItemsByGenres(ctx, ids)
		if err != nil {
			return fmt.Errorf("load rated items by genre: %w", err)
		}
		stats = append(stats, aggregate(domain.EntityGenre, ids, rated, func(it domain.CatalogItem) []int64 {
			return it.GenreIDs
		})...)
	}

	if ids := creditIDs(item.Directors, 0); len(ids) > 0 {
		rated, err := m.store.RatedItemsByDirectors(ctx, ids)
		if err != nil {
			return fmt.Errorf("load rated items by director: %w", err)
		}
		stats = append(stats, aggregate(domain.EntityDirector, ids, rated, func(it domain.CatalogItem) []int64 {
			return creditIDs(it.Directors, 0)
		})...)
	}

	if ids := creditIDs(item.Actors, topActorsMaintained); len(ids) > 0 {
		rated, err := m.store.RatedItemsByActors(ctx, ids)
		if err != nil {
			return fmt.Errorf("load rated items by actor: %w", err)
		}
		stats = append(stats, aggregate(domain.EntityActor, ids, rated, func(it domain.CatalogItem) []int64 {
			return creditIDs(it.Actors, 0)
		})...)
	}

	if len(stats) == 0 {
		return nil
	}
	if err := m.store.UpdateEntityStats(ctx, stats); err != nil {
		return fmt.Errorf("write entity stats: %w", err)
	}
	return nil
}

// RecomputeAsync runs Recompute on its own goroutine with a detached
// timeout, for fire-and-forget use after rating mutations. Failures
// are logged; the next rating change repairs the aggregates.
func (m *Maintainer) RecomputeAsync(item domain.CatalogItem) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
		defer cancel()
		if err := m.Recompute(ctx, item); err != nil {
			m.logger.Warn("affinity recompute failed",
				slog.String("item", item.Key.String()),
				slog.String("error", err.Error()))
		}
	}()
}

func aggregate(kind domain.EntityKind, ids []int64, rated []domain.RatedItem, linked func(domain.CatalogItem) []int64) []domain.EntityStats {
	sums := make(map[int64]int, len(ids))
	counts := make(map[int64]int, len(ids))
	for _, r := range rated {
		for _, id := range linked(r.Item) {
			if contains(ids, id) {
				sums[id] += r.Rating
				counts[id]++
			}
		}
	}

	out := make([]domain.EntityStats, 0, len(ids))
	for _, id := range ids {
		s := domain.EntityStats{Kind: kind, EntityID: id}
		if n := counts[id]; n > 0 {
			avg := float64(sums[id]) / float64(n)
			s.AvgRating = &avg
			s.RatingCount = n
		}
		out = append(out, s)
	}
	return out
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func creditIDs(credits []domain.CreditRef, limit int) []int64 {
	if limit > 0 && len(credits) > limit {
		credits = credits[:limit]
	}
	seen := make(map[int64]struct{}, len(credits))
	out := make([]int64, 0, len(credits))
	for _, c := range credits {
		if _, dup := seen[c.PersonID]; dup {
			continue
		}
		seen[c.PersonID] = struct{}{}
		out = append(out, c.PersonID)
	}
	return out
}
