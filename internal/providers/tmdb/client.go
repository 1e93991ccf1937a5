package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"moviepicker/internal/domain"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	posterBaseURL   = "https://image.tmdb.org/t/p/w300"
	defaultLanguage = "en-US"
	redisCacheKey   = "moviepicker:tmdb:"

	maxActors             = 10
	maxRecommendations    = 10
	maxResponseBytes      = 1 << 20
	defaultClientTimeout  = 10 * time.Second
	defaultSearchCacheTTL = 24 * time.Hour
)

// Client talks to the TMDB v3 API. Search and recommendation payloads
// go through an optional Redis read-through cache; detail lookups are
// always live because they feed the local store.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
}

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultSearchCacheTTL
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

func (c *Client) Name() string { return "tmdb" }

func (c *Client) Enabled() bool { return c.apiKey != "" }

// SearchMovies runs a title search over movies.
func (c *Client) SearchMovies(ctx context.Context, query string, page int) ([]domain.PartialItem, error) {
	return c.search(ctx, "/search/movie", domain.ContentMovie, query, page)
}

// SearchSeries runs a title search over TV series.
func (c *Client) SearchSeries(ctx context.Context, query string, page int) ([]domain.PartialItem, error) {
	return c.search(ctx, "/search/tv", domain.ContentSeries, query, page)
}

func (c *Client) search(ctx context.Context, path string, ct domain.ContentType, query string, page int) ([]domain.PartialItem, error) {
	query = strings.TrimSpace(query)
	if !c.Enabled() || query == "" {
		return nil, nil
	}
	params := url.Values{
		"query": {query},
		"page":  {pageParam(page)},
	}
	cacheKey := fmt.Sprintf("search:%s:%s:%s:%s", ct, strings.ToLower(query), pageParam(page), c.language)

	var resp listResponse
	if err := c.getJSON(ctx, path, params, cacheKey, &resp); err != nil {
		return nil, err
	}
	return resp.partials(ct), nil
}

// DiscoverMovies lists popular movies matching all given TMDB genre ids.
func (c *Client) DiscoverMovies(ctx context.Context, genreIDs []int64, page int) ([]domain.PartialItem, error) {
	return c.discover(ctx, "/discover/movie", domain.ContentMovie, genreIDs, page)
}

// DiscoverSeries lists popular series matching all given TMDB genre ids.
func (c *Client) DiscoverSeries(ctx context.Context, genreIDs []int64, page int) ([]domain.PartialItem, error) {
	return c.discover(ctx, "/discover/tv", domain.ContentSeries, genreIDs, page)
}

func (c *Client) discover(ctx context.Context, path string, ct domain.ContentType, genreIDs []int64, page int) ([]domain.PartialItem, error) {
	if !c.Enabled() || len(genreIDs) == 0 {
		return nil, nil
	}
	csv := joinIDs(genreIDs)
	params := url.Values{
		"with_genres": {csv},
		"sort_by":     {"popularity.desc"},
		"page":        {pageParam(page)},
	}
	cacheKey := fmt.Sprintf("discover:%s:%s:%s:%s", ct, csv, pageParam(page), c.language)

	var resp listResponse
	if err := c.getJSON(ctx, path, params, cacheKey, &resp); err != nil {
		return nil, err
	}
	return resp.partials(ct), nil
}

// FullDetails fetches one item with credits and external ids in a
// single request.
func (c *Client) FullDetails(ctx context.Context, key domain.ItemKey) (domain.FullItem, error) {
	if !c.Enabled() {
		return domain.FullItem{}, domain.ErrProviderDisabled
	}
	path := "/movie/" + strconv.FormatInt(key.ExternalID, 10)
	if key.Type == domain.ContentSeries {
		path = "/tv/" + strconv.FormatInt(key.ExternalID, 10)
	}
	params := url.Values{
		"append_to_response": {"credits,external_ids"},
	}

	var resp detailsResponse
	if err := c.getJSON(ctx, path, params, "", &resp); err != nil {
		return domain.FullItem{}, err
	}
	return resp.full(key), nil
}

// Recommendations returns the provider's related ids for one item,
// first page only.
func (c *Client) Recommendations(ctx context.Context, key domain.ItemKey) ([]int64, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}
	path := fmt.Sprintf("/movie/%d/recommendations", key.ExternalID)
	if key.Type == domain.ContentSeries {
		path = fmt.Sprintf("/tv/%d/recommendations", key.ExternalID)
	}
	cacheKey := "recs:" + key.String() + ":" + c.language

	var resp listResponse
	if err := c.getJSON(ctx, path, url.Values{}, cacheKey, &resp); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, maxRecommendations)
	for _, r := range resp.Results {
		if r.ID == 0 {
			continue
		}
		ids = append(ids, r.ID)
		if len(ids) == maxRecommendations {
			break
		}
	}
	return ids, nil
}

// SearchPerson looks up people by name, most popular first.
func (c *Client) SearchPerson(ctx context.Context, name string) ([]domain.Person, error) {
	name = strings.TrimSpace(name)
	if !c.Enabled() || name == "" {
		return nil, nil
	}
	params := url.Values{"query": {name}}
	cacheKey := "person:" + strings.ToLower(name) + ":" + c.language

	var resp personSearchResponse
	if err := c.getJSON(ctx, "/search/person", params, cacheKey, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Person, 0, len(resp.Results))
	for _, p := range resp.Results {
		if p.ID == 0 || p.Name == "" {
			continue
		}
		out = append(out, domain.Person{ID: p.ID, Name: p.Name, Popularity: p.Popularity})
	}
	return out, nil
}

// Filmography returns everything a person appears in or directed,
// movies and series combined, deduplicated.
func (c *Client) Filmography(ctx context.Context, personID int64) ([]domain.PartialItem, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}
	var out []domain.PartialItem
	seen := make(map[domain.ItemKey]struct{})

	for _, branch := range []struct {
		path string
		ct   domain.ContentType
	}{
		{fmt.Sprintf("/person/%d/movie_credits", personID), domain.ContentMovie},
		{fmt.Sprintf("/person/%d/tv_credits", personID), domain.ContentSeries},
	} {
		cacheKey := fmt.Sprintf("credits:%s:%d:%s", branch.ct, personID, c.language)
		var resp creditsListResponse
		if err := c.getJSON(ctx, branch.path, url.Values{}, cacheKey, &resp); err != nil {
			return nil, err
		}
		for _, r := range append(resp.Cast, resp.Crew...) {
			item := r.partial(branch.ct)
			if item.Key.ExternalID == 0 || item.Title == "" {
				continue
			}
			if _, dup := seen[item.Key]; dup {
				continue
			}
			seen[item.Key] = struct{}{}
			out = append(out, item)
		}
	}
	return out, nil
}

// getJSON performs a GET with the API key and language attached,
// consulting Redis first when a cache key is given. Cached entries hold
// the raw response body.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, cacheKey string, out any) error {
	if cacheKey != "" && c.redis != nil {
		if data, err := c.redis.Get(ctx, redisCacheKey+cacheKey).Bytes(); err == nil {
			if json.Unmarshal(data, out) == nil {
				return nil
			}
		}
	}

	params.Set("api_key", c.apiKey)
	params.Set("language", c.language)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("tmdb: decode %s: %w", path, err)
	}

	if cacheKey != "" && c.redis != nil {
		_ = c.redis.Set(ctx, redisCacheKey+cacheKey, body, c.cacheTTL).Err()
	}
	return nil
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return fmt.Errorf("tmdb HTTP %d: %s: %w", code, msg, domain.ErrProviderDisabled)
	default:
		return fmt.Errorf("tmdb HTTP %d: %s: %w", code, msg, domain.ErrProviderUnavailable)
	}
}

func pageParam(page int) string {
	if page < 1 {
		page = 1
	}
	return strconv.Itoa(page)
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
