package omdb

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

	"moviepicker/internal/domain"
)

const (
	defaultBaseURL       = "https://www.omdbapi.com/"
	defaultClientTimeout = 8 * time.Second
	maxResponseBytes     = 64 * 1024
)

// Client fetches IMDB, Rotten Tomatoes and Metacritic scores from the
// OMDB API by IMDB id.
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

func (c *Client) Name() string { return "omdb" }

func (c *Client) Enabled() bool { return c.apiKey != "" }

type omdbResponse struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	IMDBRating string `json:"imdbRating"`
	Metascore  string `json:"Metascore"`
	Ratings    []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
}

// Ratings looks the item up by IMDB id. Scores OMDB does not have come
// back nil; "N/A" placeholders count as missing.
func (c *Client) Ratings(ctx context.Context, item domain.FullItem) (domain.RatingBundle, error) {
	if !c.Enabled() {
		return domain.RatingBundle{}, domain.ErrProviderDisabled
	}
	if item.IMDBID == "" {
		return domain.RatingBundle{}, nil
	}

	params := url.Values{
		"apikey": {c.apiKey},
		"i":      {item.IMDBID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return domain.RatingBundle{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.RatingBundle{}, fmt.Errorf("omdb: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.RatingBundle{}, fmt.Errorf("omdb HTTP %d: %w", resp.StatusCode, domain.ErrProviderDisabled)
	default:
		return domain.RatingBundle{}, fmt.Errorf("omdb HTTP %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.RatingBundle{}, err
	}
	var payload omdbResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.RatingBundle{}, fmt.Errorf("omdb: decode: %w", err)
	}

	// OMDB reports quota exhaustion inside a 200 response.
	if payload.Response == "False" {
		if strings.Contains(strings.ToLower(payload.Error), "limit") {
			return domain.RatingBundle{}, fmt.Errorf("omdb: %s: %w", payload.Error, domain.ErrProviderDisabled)
		}
		return domain.RatingBundle{}, nil
	}

	return parseBundle(payload), nil
}

func parseBundle(payload omdbResponse) domain.RatingBundle {
	var bundle domain.RatingBundle
	if v, ok := parseFloat(payload.IMDBRating); ok {
		bundle.IMDB = &v
	}
	for _, r := range payload.Ratings {
		switch r.Source {
		case "Rotten Tomatoes":
			if v, ok := parsePercent(r.Value); ok {
				bundle.RottenTomatoes = &v
			}
		case "Metacritic":
			if v, ok := parseFraction(r.Value); ok {
				bundle.Metacritic = &v
			}
		}
	}
	if bundle.Metacritic == nil {
		if v, ok := parseInt(payload.Metascore); ok {
			bundle.Metacritic = &v
		}
	}
	return bundle
}

func parseFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func parseInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

// parsePercent reads values like "85%".
func parsePercent(raw string) (int, bool) {
	return parseInt(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
}

// parseFraction reads values like "74/100".
func parseFraction(raw string) (int, bool) {
	head, _, _ := strings.Cut(strings.TrimSpace(raw), "/")
	return parseInt(head)
}
