package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/reelstash/reelstash/internal/models"
	"github.com/reelstash/reelstash/internal/store"
)

// fakeStore is an in-memory store.Store for engine tests.
type fakeStore struct {
	mu           sync.Mutex
	entries      []models.Entry
	segmented    []models.SegmentedEntry
	meta         *models.CacheMetadata
	replaceCalls int
	clearCalls   int
	batches      [][]models.SegmentedEntry
	failReplace  error
}

func (f *fakeStore) ReplaceEntries(ctx context.Context, entries []models.Entry, meta models.CacheMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++
	if f.failReplace != nil {
		return f.failReplace
	}
	for i := range entries {
		entries[i].ID = int64(i + 1)
	}
	f.entries = append([]models.Entry(nil), entries...)
	m := meta
	f.meta = &m
	return nil
}

func (f *fakeStore) ClearSegmented(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	f.segmented = nil
	return nil
}

func (f *fakeStore) InsertSegmented(ctx context.Context, batch []models.SegmentedEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	f.segmented = append(f.segmented, batch...)
	return nil
}

func (f *fakeStore) SetMetadata(ctx context.Context, meta models.CacheMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := meta
	f.meta = &m
	return nil
}

func (f *fakeStore) GetMetadata(ctx context.Context, key string) (*models.CacheMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta == nil {
		return nil, store.ErrNotFound
	}
	m := *f.meta
	return &m, nil
}

func (f *fakeStore) ListEntries(ctx context.Context, filter store.EntryFilter) ([]models.Entry, int, error) {
	return f.entries, len(f.entries), nil
}

func (f *fakeStore) ListSegmented(ctx context.Context, filter store.EntryFilter) ([]models.SegmentedEntry, int, error) {
	return f.segmented, len(f.segmented), nil
}

func (f *fakeStore) GetEntryByID(ctx context.Context, id int64) (*models.Entry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetSegmentedByID(ctx context.Context, id int64) (*models.SegmentedEntry, error) {
	for _, s := range f.segmented {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) TopRated(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	return f.segmented, nil
}

func (f *fakeStore) DistinctGenres(ctx context.Context) ([]string, error)    { return nil, nil }
func (f *fakeStore) DistinctCountries(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) DistinctYears(ctx context.Context) ([]string, error)     { return nil, nil }
func (f *fakeStore) DeleteAllEntries(ctx context.Context) error              { return nil }
func (f *fakeStore) DeleteByCategory(ctx context.Context, c string) error    { return nil }

func (f *fakeStore) CountEntries(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries)), nil
}

func (f *fakeStore) CountSegmented(ctx context.Context) (int64, error) {
	return int64(len(f.segmented)), nil
}

func (f *fakeStore) StoreEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	return nil
}

func (f *fakeStore) ListSegmentedWithoutEmbeddings(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	return nil, nil
}

func (f *fakeStore) SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]store.SemanticResult, error) {
	return nil, nil
}

// fakeFetcher serves canned index and playlist documents.
type fakeFetcher struct {
	index       *models.PlaylistIndex
	indexErr    error
	playlists   map[string]*models.Playlist
	playlistErr map[string]error
}

func (f *fakeFetcher) Index(ctx context.Context, url string) (*models.PlaylistIndex, error) {
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return f.index, nil
}

func (f *fakeFetcher) Playlist(ctx context.Context, url string) (*models.Playlist, error) {
	if err := f.playlistErr[url]; err != nil {
		return nil, err
	}
	pl, ok := f.playlists[url]
	if !ok {
		return nil, fmt.Errorf("no playlist %s", url)
	}
	return pl, nil
}

func entry(title string) models.Entry { return models.Entry{Title: title} }

func TestRefreshAggregatesStampsAndDedups(t *testing.T) {
	st := &fakeStore{}
	ff := &fakeFetcher{
		index: &models.PlaylistIndex{Version: 2, Playlists: []string{"p1"}},
		playlists: map[string]*models.Playlist{
			"p1": {Categories: []models.Category{
				{MainCategory: "Movies", Entries: []models.Entry{
					entry("Alpha"), entry(""), entry("Beta"),
				}},
				{MainCategory: "Series", Entries: []models.Entry{
					{Title: "Alpha", Description: "duplicate, later"},
					entry("Gamma"),
				}},
			}},
		},
	}

	c := New(st, ff, Options{IndexURL: "idx"})
	res, err := c.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Skipped {
		t.Fatal("refresh skipped")
	}
	if res.Entries != 3 {
		t.Fatalf("entries = %d, want 3 (titleless dropped, duplicate collapsed)", res.Entries)
	}

	byTitle := map[string]models.Entry{}
	for _, e := range st.entries {
		byTitle[e.Title] = e
	}
	if _, ok := byTitle[""]; ok {
		t.Error("titleless entry survived")
	}
	if got := byTitle["Alpha"].MainCategory; got != "Movies" {
		t.Errorf("Alpha category = %q, want first-seen Movies", got)
	}
	if got := byTitle["Alpha"].Description; got != "" {
		t.Errorf("duplicate overwrote first-seen entry: %q", got)
	}
	if got := byTitle["Gamma"].MainCategory; got != "Series" {
		t.Errorf("Gamma category = %q", got)
	}
	if st.meta == nil || st.meta.DataVersion != "2" {
		t.Errorf("metadata = %+v, want version 2", st.meta)
	}
	if len(st.segmented) != 3 {
		t.Errorf("segmented rows = %d, want 3", len(st.segmented))
	}
}

func TestRefreshSkipsWhenLocalIsCurrent(t *testing.T) {
	st := &fakeStore{
		entries: []models.Entry{{ID: 1, Title: "Kept"}},
		meta: &models.CacheMetadata{
			Key: models.CacheKey, DataVersion: "5", LastUpdated: time.Now(),
		},
	}
	ff := &fakeFetcher{index: &models.PlaylistIndex{Version: 5, Playlists: []string{"p1"}}}

	c := New(st, ff, Options{IndexURL: "idx"})
	res, err := c.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !res.Skipped {
		t.Fatal("want skipped refresh")
	}
	if st.replaceCalls != 0 {
		t.Errorf("store was rewritten on a current version")
	}
}

func TestRefreshForceBypassesVersionCheck(t *testing.T) {
	st := &fakeStore{
		entries: []models.Entry{{ID: 1, Title: "Old"}},
		meta: &models.CacheMetadata{
			Key: models.CacheKey, DataVersion: "5", LastUpdated: time.Now(),
		},
	}
	ff := &fakeFetcher{
		index: &models.PlaylistIndex{Version: 5, Playlists: []string{"p1"}},
		playlists: map[string]*models.Playlist{
			"p1": {Categories: []models.Category{{MainCategory: "Movies", Entries: []models.Entry{entry("New")}}}},
		},
	}

	c := New(st, ff, Options{IndexURL: "idx"})
	res, err := c.Refresh(context.Background(), true)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Skipped || st.replaceCalls != 1 {
		t.Errorf("forced refresh did not rewrite: skipped=%v calls=%d", res.Skipped, st.replaceCalls)
	}
}

func TestRefreshStaleCacheRefetchesSameVersion(t *testing.T) {
	st := &fakeStore{
		entries: []models.Entry{{ID: 1, Title: "Old"}},
		meta: &models.CacheMetadata{
			Key: models.CacheKey, DataVersion: "5",
			LastUpdated: time.Now().Add(-48 * time.Hour),
		},
	}
	ff := &fakeFetcher{
		index: &models.PlaylistIndex{Version: 5, Playlists: []string{"p1"}},
		playlists: map[string]*models.Playlist{
			"p1": {Categories: []models.Category{{MainCategory: "Movies", Entries: []models.Entry{entry("Fresh")}}}},
		},
	}

	c := New(st, ff, Options{IndexURL: "idx", CacheTTL: 24 * time.Hour})
	res, err := c.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Skipped {
		t.Error("stale cache must refetch even at the same version")
	}
}

func TestRefreshAllPlaylistsFailedLeavesStoreUntouched(t *testing.T) {
	st := &fakeStore{}
	ff := &fakeFetcher{
		index: &models.PlaylistIndex{Version: 1, Playlists: []string{"p1", "p2"}},
		playlistErr: map[string]error{
			"p1": errors.New("boom"),
			"p2": errors.New("boom"),
		},
	}

	c := New(st, ff, Options{IndexURL: "idx"})
	_, err := c.Refresh(context.Background(), false)
	if !errors.Is(err, ErrAllPlaylistsFailed) {
		t.Fatalf("err = %v, want ErrAllPlaylistsFailed", err)
	}
	if st.replaceCalls != 0 {
		t.Error("store touched after total fetch failure")
	}
}

func TestRefreshToleratesPartialFailure(t *testing.T) {
	st := &fakeStore{}
	ff := &fakeFetcher{
		index: &models.PlaylistIndex{Version: 1, Playlists: []string{"ok", "bad"}},
		playlists: map[string]*models.Playlist{
			"ok": {Categories: []models.Category{{MainCategory: "Movies", Entries: []models.Entry{entry("Alpha")}}}},
		},
		playlistErr: map[string]error{"bad": errors.New("boom")},
	}

	c := New(st, ff, Options{IndexURL: "idx"})
	res, err := c.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Entries != 1 {
		t.Errorf("entries = %d, want 1", res.Entries)
	}
	if len(res.PlaylistErrors) != 1 {
		t.Errorf("playlist errors = %v, want one recorded", res.PlaylistErrors)
	}
}

func TestRefreshConcurrentRejected(t *testing.T) {
	c := New(&fakeStore{}, &fakeFetcher{}, Options{IndexURL: "idx"})
	c.busy.Store(true)
	_, err := c.Refresh(context.Background(), false)
	if !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("err = %v, want ErrRefreshInProgress", err)
	}
}

func TestRefreshReportsBatchProgress(t *testing.T) {
	entries := []models.Entry{entry("A"), entry("B"), entry("C"), entry("D"), entry("E")}
	st := &fakeStore{}
	ff := &fakeFetcher{
		index: &models.PlaylistIndex{Version: 1, Playlists: []string{"p1"}},
		playlists: map[string]*models.Playlist{
			"p1": {Categories: []models.Category{{MainCategory: "Movies", Entries: entries}}},
		},
	}

	var progress []Progress
	c := New(st, ff, Options{
		IndexURL:  "idx",
		BatchSize: 2,
		OnProgress: func(p Progress) {
			progress = append(progress, p)
		},
	})
	if _, err := c.Refresh(context.Background(), false); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	want := []Progress{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
	if len(st.batches) != 3 {
		t.Errorf("committed batches = %d, want 3", len(st.batches))
	}
}

func TestHasValidCache(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		st   *fakeStore
		want bool
	}{
		{"no metadata", &fakeStore{}, false},
		{"stale", &fakeStore{
			entries: []models.Entry{entry("A")},
			meta:    &models.CacheMetadata{LastUpdated: now.Add(-25 * time.Hour)},
		}, false},
		{"empty store", &fakeStore{
			meta: &models.CacheMetadata{LastUpdated: now},
		}, false},
		{"valid", &fakeStore{
			entries: []models.Entry{entry("A")},
			meta:    &models.CacheMetadata{LastUpdated: now.Add(-time.Hour)},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.st, &fakeFetcher{}, Options{IndexURL: "idx"})
			got, err := c.HasValidCache(context.Background())
			if err != nil {
				t.Fatalf("HasValidCache: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasValidCache = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckForUpdates(t *testing.T) {
	tests := []struct {
		name      string
		localVer  string
		hasMeta   bool
		remoteVer int
		want      bool
		wantLocal int
	}{
		{"update available", "3", true, 5, true, 3},
		{"up to date", "5", true, 5, false, 5},
		{"remote older", "6", true, 5, false, 6},
		{"no metadata", "", false, 1, true, 0},
		{"unparseable local version", "garbage", true, 1, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			if tt.hasMeta {
				st.meta = &models.CacheMetadata{DataVersion: tt.localVer, LastUpdated: time.Now()}
			}
			ff := &fakeFetcher{index: &models.PlaylistIndex{Version: tt.remoteVer}}
			c := New(st, ff, Options{IndexURL: "idx"})

			status, err := c.CheckForUpdates(context.Background())
			if err != nil {
				t.Fatalf("CheckForUpdates: %v", err)
			}
			if status.UpdateAvailable != tt.want {
				t.Errorf("UpdateAvailable = %v, want %v", status.UpdateAvailable, tt.want)
			}
			if status.LocalVersion != tt.wantLocal {
				t.Errorf("LocalVersion = %d, want %d", status.LocalVersion, tt.wantLocal)
			}
			if status.RemoteVersion != tt.remoteVer {
				t.Errorf("RemoteVersion = %d, want %d", status.RemoteVersion, tt.remoteVer)
			}
		})
	}
}

func TestRefreshWithoutIndexURL(t *testing.T) {
	c := New(&fakeStore{}, &fakeFetcher{}, Options{})
	if _, err := c.Refresh(context.Background(), false); !errors.Is(err, ErrNoIndexURL) {
		t.Fatalf("err = %v, want ErrNoIndexURL", err)
	}
	if _, err := c.CheckForUpdates(context.Background()); !errors.Is(err, ErrNoIndexURL) {
		t.Fatalf("err = %v, want ErrNoIndexURL", err)
	}
}
