package store

import (
	"context"

	"github.com/reelstash/reelstash/internal/models"
)

// Store defines persistence for catalog entries, their segmented projection,
// and the cache metadata row.
type Store interface {
	// ReplaceEntries atomically swaps the full entry set: delete-all, insert,
	// upsert metadata, all in one transaction. Assigned ids are written back
	// into the given slice.
	ReplaceEntries(ctx context.Context, entries []models.Entry, meta models.CacheMetadata) error
	// ClearSegmented empties the segmented table ahead of a batch rebuild.
	ClearSegmented(ctx context.Context) error
	// InsertSegmented writes one batch of segmented rows and commits it.
	InsertSegmented(ctx context.Context, batch []models.SegmentedEntry) error
	// SetMetadata upserts the metadata row outside a replace transaction.
	SetMetadata(ctx context.Context, meta models.CacheMetadata) error
	// GetMetadata returns the metadata row for key, or ErrNotFound.
	GetMetadata(ctx context.Context, key string) (*models.CacheMetadata, error)

	// ListEntries returns full entries matching the filter and the total
	// count before paging. The same predicate feeds both queries.
	ListEntries(ctx context.Context, filter EntryFilter) ([]models.Entry, int, error)
	// ListSegmented is ListEntries over the segmented projection.
	ListSegmented(ctx context.Context, filter EntryFilter) ([]models.SegmentedEntry, int, error)
	// GetEntryByID returns a single full entry, or ErrNotFound.
	GetEntryByID(ctx context.Context, id int64) (*models.Entry, error)
	// GetSegmentedByID returns a single segmented row, or ErrNotFound.
	GetSegmentedByID(ctx context.Context, id int64) (*models.SegmentedEntry, error)
	// TopRated returns up to limit rows ordered by numeric rating descending;
	// non-numeric ratings sort as 0.
	TopRated(ctx context.Context, limit int) ([]models.SegmentedEntry, error)

	// DistinctGenres returns sub-categories, cleaned and ascending.
	DistinctGenres(ctx context.Context) ([]string, error)
	// DistinctCountries returns countries, cleaned and ascending.
	DistinctCountries(ctx context.Context) ([]string, error)
	// DistinctYears returns years, cleaned ("0" excluded) and descending.
	DistinctYears(ctx context.Context) ([]string, error)

	// DeleteAllEntries wipes both tables.
	DeleteAllEntries(ctx context.Context) error
	// DeleteByCategory removes entries whose main category matches,
	// case-insensitively, from both tables.
	DeleteByCategory(ctx context.Context, category string) error
	CountEntries(ctx context.Context) (int64, error)
	CountSegmented(ctx context.Context) (int64, error)

	// StoreEmbeddings attaches vectors to segmented rows by entry id.
	StoreEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error
	// ListSegmentedWithoutEmbeddings returns rows still awaiting a vector.
	ListSegmentedWithoutEmbeddings(ctx context.Context, limit int) ([]models.SegmentedEntry, error)
	// SemanticSearch returns the nearest rows by cosine distance.
	SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]SemanticResult, error)
}

// EntryFilter holds the optional, ANDed browse dimensions. Page is zero-based;
// offset is Page*PageSize.
type EntryFilter struct {
	Category       string   // case-insensitive equality on main_category
	Genre          string   // equality on sub_category
	Country        string   // equality on country
	Year           string   // equality on year
	Search         string   // case-insensitive substring match on title
	AllowedRatings []string // parental allow-list; empty slice = no pass by rating
	IncludeUnrated bool     // let rows with NULL parental_rating through
	Page           int
	PageSize       int
}

// filtersParental reports whether the parental predicate applies at all.
// With no allow-list and no unrated opt-in there is nothing to restrict.
func (f EntryFilter) filtersParental() bool {
	return len(f.AllowedRatings) > 0 || f.IncludeUnrated
}

// SemanticResult pairs a segmented row with its similarity score (1 = identical).
type SemanticResult struct {
	Entry      models.SegmentedEntry `json:"entry"`
	Similarity float64               `json:"similarity"`
}
