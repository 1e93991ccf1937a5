package genres

import (
	"reflect"
	"sort"
	"testing"
)

func idsByName(t *testing.T, n *Normalizer, names ...string) []int64 {
	t.Helper()
	out := make([]int64, 0, len(names))
	for _, name := range names {
		found := false
		for _, g := range n.All() {
			if g.Name == name {
				out = append(out, g.ID)
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("seed table has no genre %q", name)
		}
	}
	return out
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		in   string
		want []int64
	}{
		{"canonical name", "drama", idsByName(t, n, "drama")},
		{"alias", "sci-fi", idsByName(t, n, "science fiction")},
		{"case and spacing", "  DRAMA ", idsByName(t, n, "drama")},
		{"comma separated", "drama, comedy", idsByName(t, n, "comedy", "drama")},
		{"compound full string", "action & adventure", idsByName(t, n, "action", "adventure")},
		{"compound inside list", "drama, sci-fi & fantasy", idsByName(t, n, "drama", "fantasy", "science fiction")},
		{"conjunction", "war and politics", idsByName(t, n, "war")},
		{"duplicate labels collapse", "drama, Drama, drama", idsByName(t, n, "drama")},
		{"unknown dropped", "drama, underwater basket weaving", idsByName(t, n, "drama")},
		{"all unknown", "underwater basket weaving", nil},
		{"empty", "", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Normalize(tc.in)
			want := append([]int64(nil), tc.want...)
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Normalize(%q) = %v, want %v", tc.in, got, want)
			}
		})
	}
}

func TestNormalizeNeverErrors(t *testing.T) {
	n := NewNormalizer()
	for _, in := range []string{",,,", " & ", " and ", "драма???", "123"} {
		if got := n.Normalize(in); len(got) != 0 {
			t.Fatalf("Normalize(%q) = %v, want empty", in, got)
		}
	}
}

func TestSeriesGenreIDs(t *testing.T) {
	n := NewNormalizer()

	// action and adventure share one series discover id.
	ids := n.NormalizeAll([]string{"action", "adventure"})
	series := n.SeriesGenreIDs(ids)
	if len(series) != 1 || series[0] != 10759 {
		t.Fatalf("SeriesGenreIDs(action,adventure) = %v, want [10759]", series)
	}

	// horror has no series equivalent at all.
	horror := n.Normalize("horror")
	if got := n.SeriesGenreIDs(horror); len(got) != 0 {
		t.Fatalf("SeriesGenreIDs(horror) = %v, want empty", got)
	}
	if got := n.MovieGenreIDs(horror); len(got) != 1 || got[0] != 27 {
		t.Fatalf("MovieGenreIDs(horror) = %v, want [27]", got)
	}
}

func TestRebuild(t *testing.T) {
	n := NewNormalizer()
	n.Rebuild([]Genre{{ID: 42, Name: "noir", Aliases: []string{"neo-noir"}, TMDBMovieID: 80}})

	if got := n.Normalize("neo-noir"); len(got) != 1 || got[0] != 42 {
		t.Fatalf("Normalize(neo-noir) after rebuild = %v, want [42]", got)
	}
	if got := n.Normalize("drama"); len(got) != 0 {
		t.Fatalf("old table should be gone, got %v", got)
	}
	if name := n.Name(42); name != "noir" {
		t.Fatalf("Name(42) = %q, want noir", name)
	}
}
