package models

// Entry is a single catalog item as delivered by a playlist document: a movie,
// a series, or a live channel. Nested collections are kept as-is; browse
// surfaces use SegmentedEntry instead.
type Entry struct {
	ID             int64    `json:"id,omitempty"`
	Title          string   `json:"title"`
	SubCategory    string   `json:"subCategory,omitempty"`
	MainCategory   string   `json:"mainCategory,omitempty"`
	Country        string   `json:"country,omitempty"`
	Description    string   `json:"description,omitempty"`
	Poster         string   `json:"poster,omitempty"`
	Thumbnail      string   `json:"thumbnail,omitempty"`
	Duration       string   `json:"duration,omitempty"`
	ParentalRating *string  `json:"parentalRating,omitempty"`
	Rating         Scalar   `json:"rating"`
	Year           Scalar   `json:"year"`
	Servers        []Server `json:"servers,omitempty"`
	Seasons        []Season `json:"seasons,omitempty"`
	Related        []Entry  `json:"related,omitempty"`
}

// Server is one playable source for an entry.
type Server struct {
	Name    string            `json:"name,omitempty"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	DRM     bool              `json:"drm,omitempty"`
	License string            `json:"license,omitempty"`
}

// Season groups the episodes of a series entry.
type Season struct {
	Season   int       `json:"season"`
	Poster   string    `json:"seasonPoster,omitempty"`
	Episodes []Episode `json:"episodes,omitempty"`
}

// Episode is a single episode within a season.
type Episode struct {
	Episode     int      `json:"episode"`
	Title       string   `json:"title,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Description string   `json:"description,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Servers     []Server `json:"servers,omitempty"`
}
