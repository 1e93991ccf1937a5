package search

import (
	"regexp"
	"strings"

	"moviepicker/internal/domain"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize lowercases the query and splits it into letter/digit runs.
func tokenize(raw string) []string {
	return tokenPattern.FindAllString(strings.ToLower(strings.TrimSpace(raw)), -1)
}

// searchableText flattens one item into a single lowercase haystack:
// title, original title, genre names, credit names and description.
func (s *Service) searchableText(item domain.CatalogItem) string {
	parts := make([]string, 0, 8)
	parts = append(parts, item.Title, item.OriginalTitle)
	if s.genres != nil {
		parts = append(parts, s.genres.Names(item.GenreIDs)...)
	}
	for _, c := range item.Directors {
		parts = append(parts, c.Name)
	}
	for _, c := range item.Actors {
		parts = append(parts, c.Name)
	}
	parts = append(parts, item.Description)
	return strings.ToLower(strings.Join(parts, " "))
}

// matchesTokens requires every query token to appear somewhere in the
// item's searchable text. AND across tokens, OR across fields.
func (s *Service) matchesTokens(item domain.CatalogItem, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	haystack := s.searchableText(item)
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}

// matchesGenres requires every requested genre to be linked.
func matchesGenres(item domain.CatalogItem, genreIDs []int64) bool {
	for _, want := range genreIDs {
		found := false
		for _, have := range item.GenreIDs {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
