package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"moviepicker/internal/domain"
	"moviepicker/internal/genres"
)

// MetadataProvider is one catalogue source. Implementations must be
// safe for concurrent use; rate limiting and session health live in
// the Service, not the provider.
type MetadataProvider interface {
	Name() string
	Enabled() bool
	SearchMovies(ctx context.Context, query string, page int) ([]domain.PartialItem, error)
	SearchSeries(ctx context.Context, query string, page int) ([]domain.PartialItem, error)
	DiscoverMovies(ctx context.Context, genreIDs []int64, page int) ([]domain.PartialItem, error)
	DiscoverSeries(ctx context.Context, genreIDs []int64, page int) ([]domain.PartialItem, error)
	FullDetails(ctx context.Context, key domain.ItemKey) (domain.FullItem, error)
	Recommendations(ctx context.Context, key domain.ItemKey) ([]int64, error)
	SearchPerson(ctx context.Context, name string) ([]domain.Person, error)
	Filmography(ctx context.Context, personID int64) ([]domain.PartialItem, error)
}

// RatingProvider contributes external scores to a hydrated item.
// Bundles are partial; a provider that knows nothing returns a zero
// bundle and no error.
type RatingProvider interface {
	Name() string
	Enabled() bool
	Ratings(ctx context.Context, item domain.FullItem) (domain.RatingBundle, error)
}

// Store is the slice of the local catalogue the aggregator needs.
type Store interface {
	UpsertItem(ctx context.Context, item domain.CatalogItem) error
	GetItems(ctx context.Context, keys []domain.ItemKey) ([]domain.CatalogItem, error)
	UpdateItemRatings(ctx context.Context, key domain.ItemKey, bundle domain.RatingBundle) error
	SearchItems(ctx context.Context, term string) ([]domain.CatalogItem, error)
	RatedItems(ctx context.Context, minRating int) ([]domain.RatedItem, error)
	RatingsForItems(ctx context.Context, keys []domain.ItemKey) (map[domain.ItemKey]int, error)
	WishlistKeys(ctx context.Context) (map[domain.ItemKey]struct{}, error)
}

// Recommender resolves an item's recommendation id list through the
// two-tier cache, hitting the provider only on a full miss.
type Recommender interface {
	Resolve(ctx context.Context, key domain.ItemKey) ([]int64, error)
}

// Scorer ranks one candidate against the full rating history.
type Scorer interface {
	Score(ctx context.Context, item domain.CatalogItem, history []domain.RatedItem) float64
}

const (
	maxConcurrentBranches   = 8
	maxConcurrentHydrations = 10

	maxRecSeeds    = 10
	recsPerSeed    = 10
	maxPersons     = 2
	pickBestSeeds  = 20
	pickBestScored = 50
	similarCap     = 40

	defaultPageWindow = 3
	defaultTimeout    = 15 * time.Second

	defaultProviderRate  = rate.Limit(20)
	defaultProviderBurst = 40
)

// Service fans a query out across every configured provider and the
// local store, merges and hydrates the candidates, and ranks them with
// the scoring engine.
type Service struct {
	providers []MetadataProvider
	ratings   []RatingProvider
	store     Store
	genres    *genres.Normalizer
	recs      Recommender
	scorer    Scorer

	logger        *slog.Logger
	timeout       time.Duration
	pageWindow    int
	fastHydration bool

	providerRate  rate.Limit
	providerBurst int
	limiterMu     sync.Mutex
	limiters      map[string]*rate.Limiter

	healthMu sync.Mutex
	health   map[string]*providerHealth
}

type ServiceOption func(*Service)

// WithFastHydration defers rating enrichment to a background pass so
// search responses do not wait on the rating providers.
func WithFastHydration(fast bool) ServiceOption {
	return func(s *Service) {
		s.fastHydration = fast
	}
}

// WithPageWindow sets how many provider result pages each keyword and
// discovery branch walks.
func WithPageWindow(pages int) ServiceOption {
	return func(s *Service) {
		if pages > 0 {
			s.pageWindow = pages
		}
	}
}

func WithTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProviderRate caps outbound request rate per provider.
func WithProviderRate(limit rate.Limit, burst int) ServiceOption {
	return func(s *Service) {
		if limit > 0 && burst > 0 {
			s.providerRate = limit
			s.providerBurst = burst
		}
	}
}

func NewService(
	providers []MetadataProvider,
	ratingProviders []RatingProvider,
	store Store,
	normalizer *genres.Normalizer,
	recs Recommender,
	scorer Scorer,
	opts ...ServiceOption,
) *Service {
	enabled := make([]MetadataProvider, 0, len(providers))
	for _, p := range providers {
		if p != nil && p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	enabledRatings := make([]RatingProvider, 0, len(ratingProviders))
	for _, p := range ratingProviders {
		if p != nil && p.Enabled() {
			enabledRatings = append(enabledRatings, p)
		}
	}

	svc := &Service{
		providers:     enabled,
		ratings:       enabledRatings,
		store:         store,
		genres:        normalizer,
		recs:          recs,
		scorer:        scorer,
		logger:        slog.Default(),
		timeout:       defaultTimeout,
		pageWindow:    defaultPageWindow,
		providerRate:  defaultProviderRate,
		providerBurst: defaultProviderBurst,
		limiters:      make(map[string]*rate.Limiter),
		health:        make(map[string]*providerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Request is one aggregated search. Query and GenreIDs may each be
// empty but not both.
type Request struct {
	Query    string
	GenreIDs []int64
	Page     int
}

// Response carries the ranked page plus per-provider outcomes.
type Response struct {
	Items     []domain.CatalogItem `json:"items"`
	Providers []ProviderStatus     `json:"providers"`
	ElapsedMS int64                `json:"elapsedMs"`
	Page      int                  `json:"page"`
}

type ProviderStatus struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Branches int    `json:"branches"`
	Count    int    `json:"count"`
}

// waitProviderRateLimit blocks until the provider's limiter admits one
// more call or the context expires.
func (s *Service) waitProviderRateLimit(ctx context.Context, providerName string) error {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return nil
	}

	s.limiterMu.Lock()
	limiter := s.limiters[name]
	if limiter == nil {
		limiter = rate.NewLimiter(s.providerRate, s.providerBurst)
		s.limiters[name] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Wait(ctx)
}

// ProviderNames lists configured metadata providers, sorted.
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, strings.ToLower(strings.TrimSpace(p.Name())))
	}
	sort.Strings(names)
	return names
}
