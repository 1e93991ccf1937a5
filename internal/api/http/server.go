package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moviepicker/internal/domain"
	"moviepicker/internal/genres"
	"moviepicker/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
	PickBest(ctx context.Context) (domain.CatalogItem, error)
	FindSimilar(ctx context.Context, key domain.ItemKey) ([]domain.CatalogItem, error)
	ProviderNames() []string
	ProviderDiagnostics() []search.ProviderDiagnostics
}

// CatalogStore is the slice of the local store the API mutates and
// lists directly, without going through the aggregator.
type CatalogStore interface {
	GetItem(ctx context.Context, key domain.ItemKey) (domain.CatalogItem, error)
	UpsertRating(ctx context.Context, r domain.UserRating) error
	GetRating(ctx context.Context, key domain.ItemKey) (domain.UserRating, error)
	DeleteRating(ctx context.Context, key domain.ItemKey) error
	ListRatings(ctx context.Context, filter domain.RatingFilter) ([]domain.RatedItem, error)
	AddToWishlist(ctx context.Context, key domain.ItemKey) error
	RemoveFromWishlist(ctx context.Context, key domain.ItemKey) error
	ListWishlist(ctx context.Context) ([]domain.CatalogItem, error)
}

// AffinityMaintainer is notified after every rating mutation so the
// per-entity aggregates follow the rating table.
type AffinityMaintainer interface {
	RecomputeAsync(item domain.CatalogItem)
}

type GenreCatalog interface {
	All() []genres.Genre
}

type Server struct {
	search   SearchService
	store    CatalogStore
	affinity AffinityMaintainer
	genres   GenreCatalog
	logger   *slog.Logger
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithAffinity(maintainer AffinityMaintainer) ServerOption {
	return func(s *Server) {
		s.affinity = maintainer
	}
}

func WithGenres(catalog GenreCatalog) ServerOption {
	return func(s *Server) {
		s.genres = catalog
	}
}

func NewServer(searchService SearchService, store CatalogStore, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		store:  store,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/similar", s.handleSimilar)
	mux.HandleFunc("/pick", s.handlePick)
	mux.HandleFunc("/ratings", s.handleRatings)
	mux.HandleFunc("/wishlist", s.handleWishlist)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/genres", s.handleGenres)
	mux.HandleFunc("/posters", s.handlePosterProxy)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "movie-picker",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	genreIDs, err := parseGenreIDs(r.URL.Query().Get("genres"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid genres")
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}

	response, err := s.search.Search(r.Context(), search.Request{
		Query:    query,
		GenreIDs: genreIDs,
		Page:     page,
	})
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "search failed")
		return
	}

	failedProviders := make([]string, 0, len(response.Providers))
	for _, providerStatus := range response.Providers {
		if !providerStatus.OK {
			failedProviders = append(failedProviders, providerStatus.Name)
		}
	}
	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.Int("genres", len(genreIDs)),
		slog.Int("results", len(response.Items)),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedProviders", len(failedProviders)),
	)
	if len(failedProviders) > 0 {
		s.logger.Warn("search providers partially failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("failedProviders", failedProviders),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/similar" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	key, err := parseItemKey(r.URL.Query().Get("id"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	items, err := s.search.FindSimilar(r.Context(), key)
	if err != nil {
		s.logger.Warn("similar lookup failed",
			slog.String("item", key.String()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err, "similar lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source": key,
		"items":  items,
	})
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/pick" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	item, err := s.search.PickBest(r.Context())
	if err != nil {
		if !errors.Is(err, domain.ErrNoCandidates) {
			s.logger.Warn("pick failed", slog.String("error", err.Error()))
		}
		writeDomainError(w, err, "pick failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/ratings" {
		http.NotFound(w, r)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleListRatings(w, r)
	case http.MethodPost:
		s.handleUpsertRating(w, r)
	case http.MethodDelete:
		s.handleDeleteRating(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RatingFilter{
		SortBy:    domain.NormalizeRatingSortBy(strings.TrimSpace(q.Get("sortBy"))),
		SortOrder: domain.NormalizeSortOrder(strings.TrimSpace(q.Get("sortOrder"))),
	}
	var err error
	if filter.MinRating, err = parseOptionalInt(q.Get("minRating")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid minRating")
		return
	}
	if filter.MaxRating, err = parseOptionalInt(q.Get("maxRating")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid maxRating")
		return
	}
	if raw := strings.TrimSpace(q.Get("genre")); raw != "" {
		id, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid genre")
			return
		}
		filter.GenreID = id
	}
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		contentType, ok := domain.NormalizeContentType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid type")
			return
		}
		filter.Type = contentType
	}

	rated, err := s.store.ListRatings(r.Context(), filter)
	if err != nil {
		s.logger.Warn("rating list failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "rating list failed")
		return
	}
	if rated == nil {
		rated = []domain.RatedItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": rated,
		"total": len(rated),
	})
}

func (s *Server) handleUpsertRating(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExternalID int64  `json:"externalId"`
		Type       string `json:"type"`
		Rating     int    `json:"rating"`
		Review     string `json:"review"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key, err := parseItemKey(strconv.FormatInt(payload.ExternalID, 10), payload.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !domain.ValidRating(payload.Rating) {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
		return
	}

	// Only catalogued items can be rated; an unknown key means the item
	// was never searched for and hydrated.
	item, err := s.store.GetItem(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "item is not in the catalogue; search for it first")
			return
		}
		s.logger.Warn("rating lookup failed", slog.String("item", key.String()), slog.String("error", err.Error()))
		writeDomainError(w, err, "rating failed")
		return
	}

	if err := s.store.UpsertRating(r.Context(), domain.UserRating{
		Key:    key,
		Rating: payload.Rating,
		Review: strings.TrimSpace(payload.Review),
	}); err != nil {
		s.logger.Warn("rating write failed", slog.String("item", key.String()), slog.String("error", err.Error()))
		writeDomainError(w, err, "rating failed")
		return
	}
	if s.affinity != nil {
		s.affinity.RecomputeAsync(item)
	}

	s.logger.Info("rating stored",
		slog.String("item", key.String()),
		slog.Int("rating", payload.Rating),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"rating": payload.Rating,
	})
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	key, err := parseItemKey(r.URL.Query().Get("id"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Fetch the item first: the affinity recompute needs its entity
	// links after the rating row is gone.
	item, itemErr := s.store.GetItem(r.Context(), key)

	if err := s.store.DeleteRating(r.Context(), key); err != nil {
		writeDomainError(w, err, "rating delete failed")
		return
	}
	if s.affinity != nil && itemErr == nil {
		s.affinity.RecomputeAsync(item)
	}

	s.logger.Info("rating deleted", slog.String("item", key.String()))
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/wishlist" {
		http.NotFound(w, r)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "catalog store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := s.store.ListWishlist(r.Context())
		if err != nil {
			s.logger.Warn("wishlist list failed", slog.String("error", err.Error()))
			writeDomainError(w, err, "wishlist list failed")
			return
		}
		if items == nil {
			items = []domain.CatalogItem{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"total": len(items),
		})
	case http.MethodPost:
		var payload struct {
			ExternalID int64  `json:"externalId"`
			Type       string `json:"type"`
		}
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		key, err := parseItemKey(strconv.FormatInt(payload.ExternalID, 10), payload.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if _, err := s.store.GetItem(r.Context(), key); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "item is not in the catalogue; search for it first")
				return
			}
			writeDomainError(w, err, "wishlist add failed")
			return
		}
		if err := s.store.AddToWishlist(r.Context(), key); err != nil {
			writeDomainError(w, err, "wishlist add failed")
			return
		}
		s.logger.Info("wishlist entry added", slog.String("item", key.String()))
		writeJSON(w, http.StatusCreated, map[string]any{"key": key})
	case http.MethodDelete:
		key, err := parseItemKey(r.URL.Query().Get("id"), r.URL.Query().Get("type"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := s.store.RemoveFromWishlist(r.Context(), key); err != nil {
			writeDomainError(w, err, "wishlist remove failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt":  time.Now().UTC(),
		"configured": s.search.ProviderNames(),
		"items":      s.search.ProviderDiagnostics(),
	})
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/genres" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.genres == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
		return
	}

	type genrePayload struct {
		ID      int64    `json:"id"`
		Name    string   `json:"name"`
		Aliases []string `json:"aliases,omitempty"`
	}
	rows := s.genres.All()
	items := make([]genrePayload, 0, len(rows))
	for _, g := range rows {
		items = append(items, genrePayload{ID: g.ID, Name: g.Name, Aliases: g.Aliases})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// writeDomainError translates domain sentinels into HTTP statuses.
// Unknown errors stay opaque to the client.
func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", "query or genres are required")
	case errors.Is(err, domain.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict", "already exists")
	case errors.Is(err, domain.ErrNoCandidates):
		writeError(w, http.StatusNotFound, "no_candidates", "nothing to suggest; rate a few items first")
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "catalogue store is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

func parseItemKey(rawID, rawType string) (domain.ItemKey, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return domain.ItemKey{}, errors.New("id must be a positive integer")
	}
	contentType, ok := domain.NormalizeContentType(strings.ToLower(strings.TrimSpace(rawType)))
	if !ok {
		return domain.ItemKey{}, errors.New("type must be movie or series")
	}
	return domain.ItemKey{ExternalID: id, Type: contentType}, nil
}

func parseGenreIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid genre id %q", part)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
