package models

// PlaylistIndex is the top-level catalog document: a version counter and the
// URLs of the playlist documents that make up the catalog.
type PlaylistIndex struct {
	Version   int      `json:"version"`
	Playlists []string `json:"playlists"`
}

// Playlist is one catalog shard: categories, each carrying its entries.
type Playlist struct {
	Categories []Category `json:"categories"`
}

// Category is a named group of entries within a playlist. During aggregation
// the category name is stamped onto each entry as its MainCategory.
type Category struct {
	MainCategory string  `json:"mainCategory"`
	Entries      []Entry `json:"entries"`
}
