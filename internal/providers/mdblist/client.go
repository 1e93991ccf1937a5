package mdblist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moviepicker/internal/domain"
)

const (
	defaultBaseURL       = "https://api.mdblist.com"
	defaultClientTimeout = 10 * time.Second
	maxResponseBytes     = 128 * 1024
)

// Client fetches aggregated scores from the MDBList API by TMDB id.
// It backfills what OMDB could not resolve, since it needs no IMDB id.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Name() string { return "mdblist" }

func (c *Client) Enabled() bool { return c.apiKey != "" }

type mdbResponse struct {
	Ratings []struct {
		Source string   `json:"source"`
		Value  *float64 `json:"value"`
	} `json:"ratings"`
}

// Ratings looks the item up by TMDB id and content type.
func (c *Client) Ratings(ctx context.Context, item domain.FullItem) (domain.RatingBundle, error) {
	if !c.Enabled() {
		return domain.RatingBundle{}, domain.ErrProviderDisabled
	}
	if item.Key.ExternalID == 0 {
		return domain.RatingBundle{}, nil
	}

	mediaType := "movie"
	if item.Key.Type == domain.ContentSeries {
		mediaType = "show"
	}
	params := url.Values{"apikey": {c.apiKey}}
	reqURL := fmt.Sprintf("%s/tmdb/%s/%d?%s", c.baseURL, mediaType, item.Key.ExternalID, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.RatingBundle{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.RatingBundle{}, fmt.Errorf("mdblist: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.RatingBundle{}, nil
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return domain.RatingBundle{}, fmt.Errorf("mdblist HTTP %d: %w", resp.StatusCode, domain.ErrProviderDisabled)
	default:
		return domain.RatingBundle{}, fmt.Errorf("mdblist HTTP %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.RatingBundle{}, err
	}
	var payload mdbResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.RatingBundle{}, fmt.Errorf("mdblist: decode: %w", err)
	}
	return parseBundle(payload), nil
}

func parseBundle(payload mdbResponse) domain.RatingBundle {
	var bundle domain.RatingBundle
	for _, r := range payload.Ratings {
		if r.Value == nil {
			continue
		}
		switch strings.ToLower(r.Source) {
		case "imdb":
			v := *r.Value
			bundle.IMDB = &v
		case "tomatoes":
			v := int(*r.Value)
			bundle.RottenTomatoes = &v
		case "metacritic":
			v := int(*r.Value)
			bundle.Metacritic = &v
		}
	}
	return bundle
}
