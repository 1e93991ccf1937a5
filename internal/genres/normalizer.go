package genres

import (
	"sort"
	"strings"
	"sync"
)

// Genre is one row of the canonical genre table. ID is the stable
// catalogue id; TMDBMovieID/TMDBSeriesID are the provider's discover
// ids and may be zero when the provider has no equivalent.
type Genre struct {
	ID           int64
	Name         string
	Aliases      []string
	TMDBMovieID  int64
	TMDBSeriesID int64
}

// DefaultSeed returns the built-in genre table. IDs are assigned by
// position so they stay stable across rebuilds.
func DefaultSeed() []Genre {
	rows := []Genre{
		{Name: "action", TMDBMovieID: 28, TMDBSeriesID: 10759},
		{Name: "adventure", TMDBMovieID: 12, TMDBSeriesID: 10759},
		{Name: "animation", Aliases: []string{"cartoon"}, TMDBMovieID: 16, TMDBSeriesID: 16},
		{Name: "comedy", TMDBMovieID: 35, TMDBSeriesID: 35},
		{Name: "crime", TMDBMovieID: 80, TMDBSeriesID: 80},
		{Name: "documentary", Aliases: []string{"docu"}, TMDBMovieID: 99, TMDBSeriesID: 99},
		{Name: "drama", TMDBMovieID: 18, TMDBSeriesID: 18},
		{Name: "family", TMDBMovieID: 10751, TMDBSeriesID: 10751},
		{Name: "fantasy", TMDBMovieID: 14, TMDBSeriesID: 10765},
		{Name: "history", Aliases: []string{"historical"}, TMDBMovieID: 36},
		{Name: "horror", TMDBMovieID: 27},
		{Name: "music", Aliases: []string{"musical"}, TMDBMovieID: 10402},
		{Name: "mystery", Aliases: []string{"detective"}, TMDBMovieID: 9648, TMDBSeriesID: 9648},
		{Name: "romance", Aliases: []string{"romantic"}, TMDBMovieID: 10749},
		{Name: "science fiction", Aliases: []string{"sci-fi", "scifi"}, TMDBMovieID: 878, TMDBSeriesID: 10765},
		{Name: "tv movie", TMDBMovieID: 10770},
		{Name: "thriller", TMDBMovieID: 53},
		{Name: "war", Aliases: []string{"military"}, TMDBMovieID: 10752, TMDBSeriesID: 10768},
		{Name: "western", TMDBMovieID: 37, TMDBSeriesID: 37},
		{Name: "kids", Aliases: []string{"children"}, TMDBSeriesID: 10762},
		{Name: "news", TMDBSeriesID: 10763},
		{Name: "reality", Aliases: []string{"reality tv"}, TMDBSeriesID: 10764},
		{Name: "soap", Aliases: []string{"soap opera"}, TMDBSeriesID: 10766},
		{Name: "talk", Aliases: []string{"talk show"}, TMDBSeriesID: 10767},
	}
	for i := range rows {
		rows[i].ID = int64(i + 1)
	}
	return rows
}

// compoundGenres maps labels some providers return as a single genre
// onto the canonical names they stand for.
var compoundGenres = map[string][]string{
	"action & adventure":   {"action", "adventure"},
	"action and adventure": {"action", "adventure"},
	"sci-fi & fantasy":     {"science fiction", "fantasy"},
	"war & politics":       {"war"},
}

// Normalizer resolves free-form genre labels to canonical genre ids.
// Safe for concurrent use.
type Normalizer struct {
	mu      sync.RWMutex
	byID    map[int64]Genre
	byName  map[string]int64
	byAlias map[string]int64
	order   []int64
}

func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.Rebuild(DefaultSeed())
	return n
}

// Rebuild replaces the whole table. Lookup caches are rebuilt
// atomically under the lock.
func (n *Normalizer) Rebuild(seed []Genre) {
	byID := make(map[int64]Genre, len(seed))
	byName := make(map[string]int64, len(seed))
	byAlias := make(map[string]int64)
	order := make([]int64, 0, len(seed))
	for _, g := range seed {
		byID[g.ID] = g
		byName[strings.ToLower(g.Name)] = g.ID
		order = append(order, g.ID)
		for _, a := range g.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" {
				byAlias[a] = g.ID
			}
		}
	}
	n.mu.Lock()
	n.byID = byID
	n.byName = byName
	n.byAlias = byAlias
	n.order = order
	n.mu.Unlock()
}

// Normalize parses a free-form genre string into canonical ids.
// Resolution order: exact name or alias, whole-string compound label,
// comma-separated parts, compound parts, conjunction-joined parts.
// Unresolved labels are dropped silently. The result is sorted and
// de-duplicated; Normalize never fails.
func (n *Normalizer) Normalize(raw string) []int64 {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	ids := make(map[int64]struct{})

	if n.addCompound(ids, raw) {
		return sortedIDs(ids)
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n.addCompound(ids, part) {
			continue
		}
		if n.addLookup(ids, part) {
			continue
		}
		for _, sub := range splitConjunction(part) {
			n.addLookup(ids, sub)
		}
	}
	return sortedIDs(ids)
}

// NormalizeAll normalizes a batch of labels into one id set.
func (n *Normalizer) NormalizeAll(labels []string) []int64 {
	ids := make(map[int64]struct{})
	for _, l := range labels {
		for _, id := range n.Normalize(l) {
			ids[id] = struct{}{}
		}
	}
	return sortedIDs(ids)
}

func (n *Normalizer) addCompound(ids map[int64]struct{}, s string) bool {
	names, ok := compoundGenres[s]
	if !ok {
		return false
	}
	for _, name := range names {
		if id, ok := n.byName[name]; ok {
			ids[id] = struct{}{}
		}
	}
	return true
}

func (n *Normalizer) addLookup(ids map[int64]struct{}, s string) bool {
	s = strings.TrimSpace(s)
	if id, ok := n.byName[s]; ok {
		ids[id] = struct{}{}
		return true
	}
	if id, ok := n.byAlias[s]; ok {
		ids[id] = struct{}{}
		return true
	}
	return false
}

// Name returns the canonical name for an id, or "" when unknown.
func (n *Normalizer) Name(id int64) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.byID[id].Name
}

// Names maps canonical ids to names, skipping unknown ids.
func (n *Normalizer) Names(ids []int64) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if g, ok := n.byID[id]; ok {
			out = append(out, g.Name)
		}
	}
	return out
}

// All returns the table in seed order.
func (n *Normalizer) All() []Genre {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Genre, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.byID[id])
	}
	return out
}

// MovieGenreIDs translates canonical ids to the provider's movie
// discover ids. Genres without a movie equivalent are skipped.
func (n *Normalizer) MovieGenreIDs(ids []int64) []int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{})
	for _, id := range ids {
		g, ok := n.byID[id]
		if !ok || g.TMDBMovieID == 0 {
			continue
		}
		if _, dup := seen[g.TMDBMovieID]; dup {
			continue
		}
		seen[g.TMDBMovieID] = struct{}{}
		out = append(out, g.TMDBMovieID)
	}
	return out
}

// SeriesGenreIDs translates canonical ids to the provider's series
// discover ids. Genres without a series equivalent are skipped, so the
// result can be empty even for a non-empty input.
func (n *Normalizer) SeriesGenreIDs(ids []int64) []int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{})
	for _, id := range ids {
		g, ok := n.byID[id]
		if !ok || g.TMDBSeriesID == 0 {
			continue
		}
		if _, dup := seen[g.TMDBSeriesID]; dup {
			continue
		}
		seen[g.TMDBSeriesID] = struct{}{}
		out = append(out, g.TMDBSeriesID)
	}
	return out
}

func splitConjunction(s string) []string {
	s = strings.ReplaceAll(s, "&", " and ")
	parts := strings.Split(s, " and ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedIDs(set map[int64]struct{}) []int64 {
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
