package mdblist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"moviepicker/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
}

func testItem(ct domain.ContentType) domain.FullItem {
	var item domain.FullItem
	item.Key = domain.ItemKey{ExternalID: 603, Type: ct}
	return item
}

func TestRatingsMovie(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tmdb/movie/603" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("apikey param: %q", got)
		}
		fmt.Fprint(w, `{"ratings":[
			{"source":"imdb","value":8.7},
			{"source":"tomatoes","value":83},
			{"source":"metacritic","value":73},
			{"source":"trakt","value":89},
			{"source":"audience","value":null}
		]}`)
	})

	bundle, err := client.Ratings(context.Background(), testItem(domain.ContentMovie))
	if err != nil {
		t.Fatalf("Ratings: %v", err)
	}
	if bundle.IMDB == nil || *bundle.IMDB != 8.7 {
		t.Errorf("imdb: %v", bundle.IMDB)
	}
	if bundle.RottenTomatoes == nil || *bundle.RottenTomatoes != 83 {
		t.Errorf("rotten tomatoes: %v", bundle.RottenTomatoes)
	}
	if bundle.Metacritic == nil || *bundle.Metacritic != 73 {
		t.Errorf("metacritic: %v", bundle.Metacritic)
	}
}

func TestRatingsSeriesPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tmdb/show/603" {
			t.Errorf("path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"ratings":[]}`)
	})

	if _, err := client.Ratings(context.Background(), testItem(domain.ContentSeries)); err != nil {
		t.Fatalf("Ratings: %v", err)
	}
}

func TestRatingsNullValuesSkipped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ratings":[{"source":"imdb","value":null},{"source":"tomatoes","value":null}]}`)
	})

	bundle, err := client.Ratings(context.Background(), testItem(domain.ContentMovie))
	if err != nil {
		t.Fatal(err)
	}
	if !bundle.IsZero() {
		t.Errorf("null values must stay nil: %+v", bundle)
	}
}

func TestRatingsNotFoundIsEmptyNotError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	bundle, err := client.Ratings(context.Background(), testItem(domain.ContentMovie))
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if !bundle.IsZero() {
		t.Errorf("bundle: %+v", bundle)
	}
}

func TestRatingsRateLimitDisables(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "blocked", code)
		})
		_, err := client.Ratings(context.Background(), testItem(domain.ContentMovie))
		if !errors.Is(err, domain.ErrProviderDisabled) {
			t.Errorf("HTTP %d: expected ErrProviderDisabled, got %v", code, err)
		}
	}
}
