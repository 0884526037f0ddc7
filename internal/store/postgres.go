package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/reelstash/reelstash/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

const entryColumns = `id, title, sub_category, main_category, country, description,
	poster, thumbnail, duration, parental_rating, rating, year, servers, seasons, related`

const segmentedColumns = `entry_id, title, sub_category, main_category, country, description,
	poster, thumbnail, duration, parental_rating, rating, year,
	has_servers, has_seasons, has_related, episode_count, season_count`

// ReplaceEntries swaps the full entry set in one transaction. Segmented rows
// go with them via the FK cascade; the rebuild writes fresh ones afterwards.
// Assigned ids are written back into the slice.
func (p *Postgres) ReplaceEntries(ctx context.Context, entries []models.Entry, meta models.CacheMetadata) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storageErr("ReplaceEntries: begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM entries`); err != nil {
		return storageErr("ReplaceEntries: delete", err)
	}

	for i := range entries {
		e := &entries[i]
		servers, seasons, related, err := marshalNested(e)
		if err != nil {
			return storageErr("ReplaceEntries: marshal", err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO entries (title, sub_category, main_category, country, description,
			   poster, thumbnail, duration, parental_rating, rating, year, servers, seasons, related)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 RETURNING id`,
			e.Title, e.SubCategory, e.MainCategory, e.Country, e.Description,
			e.Poster, e.Thumbnail, e.Duration, e.ParentalRating,
			e.Rating.String(), e.Year.String(), servers, seasons, related,
		).Scan(&e.ID)
		if err != nil {
			return storageErr(fmt.Sprintf("ReplaceEntries: insert %q", e.Title), err)
		}
	}

	if err := upsertMetadata(ctx, tx, meta); err != nil {
		return storageErr("ReplaceEntries: metadata", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("ReplaceEntries: commit", err)
	}
	return nil
}

// ClearSegmented empties the segmented table ahead of a rebuild.
func (p *Postgres) ClearSegmented(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM segmented_entries`); err != nil {
		return storageErr("ClearSegmented", err)
	}
	return nil
}

// InsertSegmented writes one batch of segmented rows. Each call commits on
// its own so callers can report progress per committed batch.
func (p *Postgres) InsertSegmented(ctx context.Context, batch []models.SegmentedEntry) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storageErr("InsertSegmented: begin", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range batch {
		_, err := tx.Exec(ctx,
			`INSERT INTO segmented_entries (entry_id, title, sub_category, main_category, country,
			   description, poster, thumbnail, duration, parental_rating, rating, year,
			   has_servers, has_seasons, has_related, episode_count, season_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			s.ID, s.Title, s.SubCategory, s.MainCategory, s.Country,
			s.Description, s.Poster, s.Thumbnail, s.Duration, s.ParentalRating,
			s.Rating.String(), s.Year.String(),
			s.HasServers, s.HasSeasons, s.HasRelated, s.EpisodeCount, s.SeasonCount,
		)
		if err != nil {
			return storageErr(fmt.Sprintf("InsertSegmented: insert %d", s.ID), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("InsertSegmented: commit", err)
	}
	return nil
}

// SetMetadata upserts the metadata row.
func (p *Postgres) SetMetadata(ctx context.Context, meta models.CacheMetadata) error {
	if err := upsertMetadata(ctx, p.pool, meta); err != nil {
		return storageErr("SetMetadata", err)
	}
	return nil
}

// pgExecer is satisfied by both pgxpool.Pool and pgx.Tx, so the metadata
// upsert can run inside or outside the replace transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertMetadata(ctx context.Context, q pgExecer, meta models.CacheMetadata) error {
	_, err := q.Exec(ctx,
		`INSERT INTO cache_metadata (key, last_updated, data_version, playlist_urls)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET
		   last_updated = EXCLUDED.last_updated,
		   data_version = EXCLUDED.data_version,
		   playlist_urls = EXCLUDED.playlist_urls`,
		meta.Key, meta.LastUpdated, meta.DataVersion, meta.PlaylistURLs,
	)
	return err
}

// GetMetadata returns the metadata row for key, or ErrNotFound.
func (p *Postgres) GetMetadata(ctx context.Context, key string) (*models.CacheMetadata, error) {
	var m models.CacheMetadata
	err := p.pool.QueryRow(ctx,
		`SELECT key, last_updated, data_version, playlist_urls FROM cache_metadata WHERE key = $1`,
		key,
	).Scan(&m.Key, &m.LastUpdated, &m.DataVersion, &m.PlaylistURLs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("GetMetadata", err)
	}
	return &m, nil
}

// ListEntries returns full entries matching the filter plus the unpaged total.
func (p *Postgres) ListEntries(ctx context.Context, filter EntryFilter) ([]models.Entry, int, error) {
	where, args := buildWhere(filter, 0)

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("ListEntries: count", err)
	}

	page, pageArgs := pageClause(filter, len(args))
	rows, err := p.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM entries`+where+page,
		append(args, pageArgs...)...)
	if err != nil {
		return nil, 0, storageErr("ListEntries: query", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, storageErr("ListEntries: scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("ListEntries: rows", err)
	}
	return entries, total, nil
}

// ListSegmented returns segmented rows matching the filter plus the unpaged total.
func (p *Postgres) ListSegmented(ctx context.Context, filter EntryFilter) ([]models.SegmentedEntry, int, error) {
	where, args := buildWhere(filter, 0)

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM segmented_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("ListSegmented: count", err)
	}

	page, pageArgs := pageClause(filter, len(args))
	rows, err := p.pool.Query(ctx,
		`SELECT `+segmentedColumns+` FROM segmented_entries`+where+page,
		append(args, pageArgs...)...)
	if err != nil {
		return nil, 0, storageErr("ListSegmented: query", err)
	}
	defer rows.Close()

	segmented, err := collectSegmented(rows)
	if err != nil {
		return nil, 0, storageErr("ListSegmented: scan", err)
	}
	return segmented, total, nil
}

// GetEntryByID returns a full entry with its nested collections.
func (p *Postgres) GetEntryByID(ctx context.Context, id int64) (*models.Entry, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = $1`, id)
	if err != nil {
		return nil, storageErr("GetEntryByID", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storageErr("GetEntryByID", err)
		}
		return nil, ErrNotFound
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, storageErr("GetEntryByID: scan", err)
	}
	return &e, nil
}

// GetSegmentedByID returns a single segmented row.
func (p *Postgres) GetSegmentedByID(ctx context.Context, id int64) (*models.SegmentedEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+segmentedColumns+` FROM segmented_entries WHERE entry_id = $1`, id)
	if err != nil {
		return nil, storageErr("GetSegmentedByID", err)
	}
	defer rows.Close()

	segmented, err := collectSegmented(rows)
	if err != nil {
		return nil, storageErr("GetSegmentedByID: scan", err)
	}
	if len(segmented) == 0 {
		return nil, ErrNotFound
	}
	return &segmented[0], nil
}

// TopRated orders by the rating coerced to a number; malformed ratings rank
// as 0 instead of being dropped.
func (p *Postgres) TopRated(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+segmentedColumns+` FROM segmented_entries
		 ORDER BY CASE WHEN rating ~ '^[0-9]+(\.[0-9]+)?$' THEN rating::numeric ELSE 0 END DESC,
		   title ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr("TopRated", err)
	}
	defer rows.Close()

	segmented, err := collectSegmented(rows)
	if err != nil {
		return nil, storageErr("TopRated: scan", err)
	}
	return segmented, nil
}

// DistinctGenres lists sub-categories ascending, junk values excluded.
func (p *Postgres) DistinctGenres(ctx context.Context) ([]string, error) {
	return p.distinct(ctx, "DistinctGenres",
		`SELECT DISTINCT sub_category FROM segmented_entries
		 WHERE sub_category IS NOT NULL AND sub_category <> '' AND LOWER(sub_category) <> 'null'
		 ORDER BY sub_category ASC`)
}

// DistinctCountries lists countries ascending, junk values excluded.
func (p *Postgres) DistinctCountries(ctx context.Context) ([]string, error) {
	return p.distinct(ctx, "DistinctCountries",
		`SELECT DISTINCT country FROM segmented_entries
		 WHERE country IS NOT NULL AND country <> '' AND LOWER(country) <> 'null'
		 ORDER BY country ASC`)
}

// DistinctYears lists years newest-first; "0" is feed junk and excluded.
func (p *Postgres) DistinctYears(ctx context.Context) ([]string, error) {
	return p.distinct(ctx, "DistinctYears",
		`SELECT DISTINCT year FROM segmented_entries
		 WHERE year IS NOT NULL AND year <> '' AND LOWER(year) <> 'null' AND year <> '0'
		 ORDER BY year DESC`)
}

func (p *Postgres) distinct(ctx context.Context, op, sql string) ([]string, error) {
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr(op+": scan", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op+": rows", err)
	}
	return values, nil
}

// DeleteAllEntries wipes both tables (segmented via cascade).
func (p *Postgres) DeleteAllEntries(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM entries`); err != nil {
		return storageErr("DeleteAllEntries", err)
	}
	return nil
}

// DeleteByCategory removes a main category, case-insensitively.
func (p *Postgres) DeleteByCategory(ctx context.Context, category string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM entries WHERE LOWER(main_category) = LOWER($1)`, category)
	if err != nil {
		return storageErr("DeleteByCategory", err)
	}
	return nil
}

func (p *Postgres) CountEntries(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, storageErr("CountEntries", err)
	}
	return n, nil
}

func (p *Postgres) CountSegmented(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM segmented_entries`).Scan(&n); err != nil {
		return 0, storageErr("CountSegmented", err)
	}
	return n, nil
}

// StoreEmbeddings attaches vectors to segmented rows by entry id.
func (p *Postgres) StoreEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return storageErr("StoreEmbeddings", fmt.Errorf("ids/embeddings length mismatch: %d vs %d", len(ids), len(embeddings)))
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return storageErr("StoreEmbeddings: begin", err)
	}
	defer tx.Rollback(ctx)

	for i, id := range ids {
		_, err := tx.Exec(ctx,
			`UPDATE segmented_entries SET embedding = $1 WHERE entry_id = $2`,
			pgvector.NewVector(embeddings[i]), id)
		if err != nil {
			return storageErr(fmt.Sprintf("StoreEmbeddings: update %d", id), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("StoreEmbeddings: commit", err)
	}
	return nil
}

// ListSegmentedWithoutEmbeddings returns rows still awaiting a vector.
func (p *Postgres) ListSegmentedWithoutEmbeddings(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+segmentedColumns+` FROM segmented_entries
		 WHERE embedding IS NULL ORDER BY entry_id LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr("ListSegmentedWithoutEmbeddings", err)
	}
	defer rows.Close()

	segmented, err := collectSegmented(rows)
	if err != nil {
		return nil, storageErr("ListSegmentedWithoutEmbeddings: scan", err)
	}
	return segmented, nil
}

// SemanticSearch returns the nearest segmented rows by cosine distance.
func (p *Postgres) SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]SemanticResult, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+segmentedColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM segmented_entries
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, storageErr("SemanticSearch", err)
	}
	defer rows.Close()

	var results []SemanticResult
	for rows.Next() {
		var (
			s            models.SegmentedEntry
			rating, year string
			similarity   float64
		)
		err := rows.Scan(&s.ID, &s.Title, &s.SubCategory, &s.MainCategory, &s.Country,
			&s.Description, &s.Poster, &s.Thumbnail, &s.Duration, &s.ParentalRating,
			&rating, &year, &s.HasServers, &s.HasSeasons, &s.HasRelated,
			&s.EpisodeCount, &s.SeasonCount, &similarity)
		if err != nil {
			return nil, storageErr("SemanticSearch: scan", err)
		}
		s.Rating = models.ParseScalar(rating)
		s.Year = models.ParseScalar(year)
		results = append(results, SemanticResult{Entry: s, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("SemanticSearch: rows", err)
	}
	return results, nil
}

// --- scan helpers ---

func marshalNested(e *models.Entry) (servers, seasons, related []byte, err error) {
	if servers, err = json.Marshal(e.Servers); err != nil {
		return nil, nil, nil, fmt.Errorf("servers: %w", err)
	}
	if seasons, err = json.Marshal(e.Seasons); err != nil {
		return nil, nil, nil, fmt.Errorf("seasons: %w", err)
	}
	if related, err = json.Marshal(e.Related); err != nil {
		return nil, nil, nil, fmt.Errorf("related: %w", err)
	}
	return servers, seasons, related, nil
}

func scanEntry(rows pgx.Rows) (models.Entry, error) {
	var (
		e                         models.Entry
		rating, year              string
		servers, seasons, related []byte
	)
	err := rows.Scan(&e.ID, &e.Title, &e.SubCategory, &e.MainCategory, &e.Country,
		&e.Description, &e.Poster, &e.Thumbnail, &e.Duration, &e.ParentalRating,
		&rating, &year, &servers, &seasons, &related)
	if err != nil {
		return models.Entry{}, err
	}
	e.Rating = models.ParseScalar(rating)
	e.Year = models.ParseScalar(year)
	if len(servers) > 0 {
		if err := json.Unmarshal(servers, &e.Servers); err != nil {
			return models.Entry{}, fmt.Errorf("servers: %w", err)
		}
	}
	if len(seasons) > 0 {
		if err := json.Unmarshal(seasons, &e.Seasons); err != nil {
			return models.Entry{}, fmt.Errorf("seasons: %w", err)
		}
	}
	if len(related) > 0 {
		if err := json.Unmarshal(related, &e.Related); err != nil {
			return models.Entry{}, fmt.Errorf("related: %w", err)
		}
	}
	return e, nil
}

func collectSegmented(rows pgx.Rows) ([]models.SegmentedEntry, error) {
	var segmented []models.SegmentedEntry
	for rows.Next() {
		var (
			s            models.SegmentedEntry
			rating, year string
		)
		err := rows.Scan(&s.ID, &s.Title, &s.SubCategory, &s.MainCategory, &s.Country,
			&s.Description, &s.Poster, &s.Thumbnail, &s.Duration, &s.ParentalRating,
			&rating, &year, &s.HasServers, &s.HasSeasons, &s.HasRelated,
			&s.EpisodeCount, &s.SeasonCount)
		if err != nil {
			return nil, err
		}
		s.Rating = models.ParseScalar(rating)
		s.Year = models.ParseScalar(year)
		segmented = append(segmented, s)
	}
	return segmented, rows.Err()
}
