package scoring

import (
	"context"
	"log/slog"
	"sort"

	"moviepicker/internal/domain"
)

// Term weights. Similarity dominates; consensus is a tiebreaker.
const (
	weightSimilarity = 1.0
	weightDirector   = 0.8
	weightGenre      = 0.5
	weightActor      = 0.3
	weightConsensus  = 0.2
)

const (
	// Similarity looks at a bounded slice of history, split evenly
	// between liked and disliked items.
	maxSimilaritySources = 30

	topActorsScored   = 5
	positionDecay     = 0.05
	minPositionWeight = 0.1

	neutralConsensus = 5.0
)

// RecommendationSource resolves the similar-item list for one item,
// typically the two-tier recommendation cache.
type RecommendationSource interface {
	Resolve(ctx context.Context, key domain.ItemKey) ([]int64, error)
}

// StatsSource returns maintained affinity aggregates for entities of
// one kind. Entities without stats may be missing from the result.
type StatsSource interface {
	GetEntityStats(ctx context.Context, kind domain.EntityKind, ids []int64) ([]domain.EntityStats, error)
}

type Engine struct {
	recs   RecommendationSource
	stats  StatsSource
	logger *slog.Logger
}

func NewEngine(recs RecommendationSource, stats StatsSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{recs: recs, stats: stats, logger: logger}
}

// Score computes the personalization score for one candidate against
// the full rating history. Higher is better, range unbounded. Every
// term is centered on the neutral rating so an unknown signal
// contributes zero. Branch failures (a rec list that cannot be
// resolved, a stats read error) degrade to absent signals.
func (e *Engine) Score(ctx context.Context, item domain.CatalogItem, history []domain.RatedItem) float64 {
	score := weightSimilarity * e.similarity(ctx, item.Key, history)

	if avg, ok := e.affinityAvg(ctx, domain.EntityDirector, creditIDs(item.Directors, 0)); ok {
		score += weightDirector * (avg - neutralConsensus)
	}
	if avg, ok := e.affinityAvg(ctx, domain.EntityGenre, item.GenreIDs); ok {
		score += weightGenre * (avg - neutralConsensus)
	}
	if avg, ok := e.affinityAvg(ctx, domain.EntityActor, creditIDs(item.Actors, topActorsScored)); ok {
		score += weightActor * (avg - neutralConsensus)
	}

	score += weightConsensus * (consensusOrNeutral(item.Ratings) - neutralConsensus)
	return score
}

// Consensus is the mean of the available aggregator ratings with
// percentage scales divided by ten. It returns 0 when the item has no
// aggregator ratings at all; this is the no-history ordering key and
// is distinct from the neutral default used inside Score.
func Consensus(r domain.ExternalRatings) float64 {
	sum, n := consensusParts(r)
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func consensusOrNeutral(r domain.ExternalRatings) float64 {
	sum, n := consensusParts(r)
	if n == 0 {
		return neutralConsensus
	}
	return sum / float64(n)
}

func consensusParts(r domain.ExternalRatings) (float64, int) {
	var sum float64
	var n int
	if r.TMDB != nil && *r.TMDB > 0 {
		sum += *r.TMDB
		n++
	}
	if r.IMDB != nil && *r.IMDB > 0 {
		sum += *r.IMDB
		n++
	}
	if r.RottenTomatoes != nil && *r.RottenTomatoes > 0 {
		sum += float64(*r.RottenTomatoes) / 10
		n++
	}
	if r.Metacritic != nil && *r.Metacritic > 0 {
		sum += float64(*r.Metacritic) / 10
		n++
	}
	return sum, n
}

// SimilaritySources selects the bounded history slice the similarity
// term works from: half liked (highest rating first), half disliked
// (lowest first). Neutral ratings carry no signal and are excluded.
func SimilaritySources(history []domain.RatedItem) []domain.RatedItem {
	half := maxSimilaritySources / 2

	var liked, disliked []domain.RatedItem
	for _, h := range history {
		switch {
		case h.Rating >= domain.LikedMin:
			liked = append(liked, h)
		case h.Rating <= domain.DislikedMax:
			disliked = append(disliked, h)
		}
	}
	sort.SliceStable(liked, func(i, j int) bool { return liked[i].Rating > liked[j].Rating })
	sort.SliceStable(disliked, func(i, j int) bool { return disliked[i].Rating < disliked[j].Rating })

	if len(liked) > half {
		liked = liked[:half]
	}
	if len(disliked) > half {
		disliked = disliked[:half]
	}
	return append(liked, disliked...)
}

func (e *Engine) similarity(ctx context.Context, candidate domain.ItemKey, history []domain.RatedItem) float64 {
	if len(history) == 0 || e.recs == nil {
		return 0
	}

	var total float64
	for _, src := range SimilaritySources(history) {
		// Recommendation lists stay within one content type, so only
		// same-type sources can contain the candidate.
		if src.Item.Key.Type != candidate.Type {
			continue
		}
		ids, err := e.recs.Resolve(ctx, src.Item.Key)
		if err != nil {
			e.logger.Warn("similarity source unavailable",
				slog.String("item", src.Item.Key.String()),
				slog.String("error", err.Error()))
			continue
		}
		weight := float64(src.Rating - domain.NeutralRating)
		for i, id := range ids {
			if id == candidate.ExternalID {
				pos := 1.0 - float64(i)*positionDecay
				if pos < minPositionWeight {
					pos = minPositionWeight
				}
				total += weight * pos
				break
			}
		}
	}
	return total
}

// affinityAvg averages the maintained affinities of the entities that
// have one. Entities without stats do not drag the average down.
func (e *Engine) affinityAvg(ctx context.Context, kind domain.EntityKind, ids []int64) (float64, bool) {
	if len(ids) == 0 || e.stats == nil {
		return 0, false
	}
	stats, err := e.stats.GetEntityStats(ctx, kind, ids)
	if err != nil {
		e.logger.Warn("affinity read failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		return 0, false
	}
	var sum float64
	var n int
	for _, s := range stats {
		if s.AvgRating != nil {
			sum += *s.AvgRating
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func creditIDs(credits []domain.CreditRef, limit int) []int64 {
	if limit > 0 && len(credits) > limit {
		credits = credits[:limit]
	}
	out := make([]int64, 0, len(credits))
	for _, c := range credits {
		out = append(out, c.PersonID)
	}
	return out
}
