package tmdb

import (
	"moviepicker/internal/domain"
)

// result is one row of a search, discover or recommendation listing.
// Movies carry title/release_date, series name/first_air_date.
type result struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title,omitempty"`
	Name          string  `json:"name,omitempty"`
	OriginalTitle string  `json:"original_title,omitempty"`
	OriginalName  string  `json:"original_name,omitempty"`
	Overview      string  `json:"overview,omitempty"`
	PosterPath    string  `json:"poster_path,omitempty"`
	VoteAverage   float64 `json:"vote_average,omitempty"`
	ReleaseDate   string  `json:"release_date,omitempty"`
	FirstAirDate  string  `json:"first_air_date,omitempty"`
}

func (r result) displayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r result) originalTitle() string {
	if r.OriginalTitle != "" {
		return r.OriginalTitle
	}
	return r.OriginalName
}

func (r result) year() int {
	date := r.ReleaseDate
	if date == "" {
		date = r.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	year := 0
	for _, c := range date[:4] {
		if c < '0' || c > '9' {
			return 0
		}
		year = year*10 + int(c-'0')
	}
	return year
}

func (r result) posterURL() string {
	if r.PosterPath == "" {
		return ""
	}
	return posterBaseURL + r.PosterPath
}

func (r result) partial(ct domain.ContentType) domain.PartialItem {
	item := domain.PartialItem{
		Key:           domain.ItemKey{ExternalID: r.ID, Type: ct},
		Title:         r.displayTitle(),
		OriginalTitle: r.originalTitle(),
		Year:          r.year(),
		Description:   r.Overview,
		PosterURL:     r.posterURL(),
	}
	if r.VoteAverage > 0 {
		v := r.VoteAverage
		item.TMDBRating = &v
	}
	return item
}

type listResponse struct {
	Results []result `json:"results"`
}

func (l listResponse) partials(ct domain.ContentType) []domain.PartialItem {
	out := make([]domain.PartialItem, 0, len(l.Results))
	for _, r := range l.Results {
		item := r.partial(ct)
		if item.Key.ExternalID == 0 || item.Title == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

type creditsListResponse struct {
	Cast []result `json:"cast"`
	Crew []result `json:"crew"`
}

type personSearchResponse struct {
	Results []struct {
		ID         int64   `json:"id"`
		Name       string  `json:"name"`
		Popularity float64 `json:"popularity"`
	} `json:"results"`
}

type castMember struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type crewMember struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Job  string `json:"job"`
}

type detailsResponse struct {
	result
	Genres []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
	CreatedBy []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"created_by"`
	Credits struct {
		Cast []castMember `json:"cast"`
		Crew []crewMember `json:"crew"`
	} `json:"credits"`
	ExternalIDs struct {
		IMDBID string `json:"imdb_id"`
	} `json:"external_ids"`
	IMDBID string `json:"imdb_id"`
}

func (d detailsResponse) full(key domain.ItemKey) domain.FullItem {
	item := domain.FullItem{
		PartialItem: d.result.partial(key.Type),
	}
	item.Key = key

	item.IMDBID = d.ExternalIDs.IMDBID
	if item.IMDBID == "" {
		item.IMDBID = d.IMDBID
	}

	for _, g := range d.Genres {
		if g.Name != "" {
			item.GenreNames = append(item.GenreNames, g.Name)
		}
	}

	item.Directors = d.directors(key.Type)

	for _, c := range d.Credits.Cast {
		if c.ID == 0 || c.Name == "" {
			continue
		}
		item.Actors = append(item.Actors, domain.CreditRef{PersonID: c.ID, Name: c.Name})
		if len(item.Actors) == maxActors {
			break
		}
	}
	return item
}

// directors picks the creative leads: crew members with the Director
// job for movies; the created_by list for series, falling back to
// Executive Producer credits when it is empty.
func (d detailsResponse) directors(ct domain.ContentType) []domain.CreditRef {
	var out []domain.CreditRef
	seen := make(map[int64]struct{})
	add := func(id int64, name string) {
		if id == 0 || name == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, domain.CreditRef{PersonID: id, Name: name})
	}

	if ct == domain.ContentSeries {
		for _, p := range d.CreatedBy {
			add(p.ID, p.Name)
		}
		if len(out) == 0 {
			for _, c := range d.Credits.Crew {
				if c.Job == "Executive Producer" {
					add(c.ID, c.Name)
				}
			}
		}
		return out
	}

	for _, c := range d.Credits.Crew {
		if c.Job == "Director" {
			add(c.ID, c.Name)
		}
	}
	return out
}
