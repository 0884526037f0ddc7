package models

import "testing"

func TestNewSegmentedEntry(t *testing.T) {
	rating := "PG"
	e := Entry{
		ID:             42,
		Title:          "Example Show",
		MainCategory:   "Series",
		SubCategory:    "Drama",
		Country:        "US",
		ParentalRating: &rating,
		Rating:         NumberScalar(8.2),
		Year:           TextScalar("2019"),
		Servers:        []Server{{URL: "https://a/1"}},
		Seasons: []Season{
			{Season: 1, Episodes: make([]Episode, 10)},
			{Season: 2, Episodes: make([]Episode, 8)},
		},
	}

	s := NewSegmentedEntry(e)

	if !s.HasServers || !s.HasSeasons || s.HasRelated {
		t.Errorf("derived flags = servers:%v seasons:%v related:%v", s.HasServers, s.HasSeasons, s.HasRelated)
	}
	if s.SeasonCount != 2 {
		t.Errorf("SeasonCount = %d, want 2", s.SeasonCount)
	}
	if s.EpisodeCount != 18 {
		t.Errorf("EpisodeCount = %d, want 18", s.EpisodeCount)
	}
	if s.Title != e.Title || s.Rating != e.Rating || s.Year != e.Year {
		t.Errorf("scalar fields not carried over: %+v", s)
	}
}

func TestToFullEntryIsLossy(t *testing.T) {
	e := Entry{
		Title:   "Example Movie",
		Servers: []Server{{URL: "https://a/1"}},
		Seasons: []Season{{Season: 1, Episodes: make([]Episode, 3)}},
		Related: []Entry{{Title: "Other"}},
	}

	back := NewSegmentedEntry(e).ToFullEntry()

	if back.Title != e.Title {
		t.Errorf("Title = %q, want %q", back.Title, e.Title)
	}
	if back.Servers != nil || back.Seasons != nil || back.Related != nil {
		t.Errorf("nested collections should be empty after round trip: %+v", back)
	}
}
