package models

// SegmentedEntry is the browse-optimized projection of an Entry: every scalar
// field plus cheap derived facts about the nested collections, without the
// collections themselves. It is what list endpoints page over; detail views
// load the full Entry by id.
type SegmentedEntry struct {
	ID             int64   `json:"id,omitempty"`
	Title          string  `json:"title"`
	SubCategory    string  `json:"subCategory,omitempty"`
	MainCategory   string  `json:"mainCategory,omitempty"`
	Country        string  `json:"country,omitempty"`
	Description    string  `json:"description,omitempty"`
	Poster         string  `json:"poster,omitempty"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
	Duration       string  `json:"duration,omitempty"`
	ParentalRating *string `json:"parentalRating,omitempty"`
	Rating         Scalar  `json:"rating"`
	Year           Scalar  `json:"year"`
	HasServers     bool    `json:"hasServers"`
	HasSeasons     bool    `json:"hasSeasons"`
	HasRelated     bool    `json:"hasRelated"`
	EpisodeCount   int     `json:"episodeCount"`
	SeasonCount    int     `json:"seasonCount"`
}

// NewSegmentedEntry derives the segmented projection from a full entry.
func NewSegmentedEntry(e Entry) SegmentedEntry {
	episodes := 0
	for _, s := range e.Seasons {
		episodes += len(s.Episodes)
	}
	return SegmentedEntry{
		ID:             e.ID,
		Title:          e.Title,
		SubCategory:    e.SubCategory,
		MainCategory:   e.MainCategory,
		Country:        e.Country,
		Description:    e.Description,
		Poster:         e.Poster,
		Thumbnail:      e.Thumbnail,
		Duration:       e.Duration,
		ParentalRating: e.ParentalRating,
		Rating:         e.Rating,
		Year:           e.Year,
		HasServers:     len(e.Servers) > 0,
		HasSeasons:     len(e.Seasons) > 0,
		HasRelated:     len(e.Related) > 0,
		EpisodeCount:   episodes,
		SeasonCount:    len(e.Seasons),
	}
}

// ToFullEntry rebuilds an Entry from the projection. The nested collections
// are gone for good; callers that need them must load the full row.
func (s SegmentedEntry) ToFullEntry() Entry {
	return Entry{
		ID:             s.ID,
		Title:          s.Title,
		SubCategory:    s.SubCategory,
		MainCategory:   s.MainCategory,
		Country:        s.Country,
		Description:    s.Description,
		Poster:         s.Poster,
		Thumbnail:      s.Thumbnail,
		Duration:       s.Duration,
		ParentalRating: s.ParentalRating,
		Rating:         s.Rating,
		Year:           s.Year,
	}
}
