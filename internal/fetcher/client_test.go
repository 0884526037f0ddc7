package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIndex(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version": 3, "playlists": ["https://cdn/p1.json", "https://cdn/p2.json"]}`))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("test-agent"))
	idx, err := c.Index(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx.Version != 3 {
		t.Errorf("Version = %d, want 3", idx.Version)
	}
	if len(idx.Playlists) != 2 {
		t.Errorf("Playlists = %v, want 2 urls", idx.Playlists)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"categories": [
				{"mainCategory": "Movies", "entries": [
					{"title": "Example Movie", "year": 2019, "rating": "7.5"}
				]}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient()
	pl, err := c.Playlist(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	if len(pl.Categories) != 1 || pl.Categories[0].MainCategory != "Movies" {
		t.Fatalf("categories = %+v", pl.Categories)
	}
	e := pl.Categories[0].Entries[0]
	if e.Title != "Example Movie" || e.Year.Int() != 2019 || e.Rating.Float64() != 7.5 {
		t.Errorf("entry = %+v", e)
	}
}

func TestNonOKStatusIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Index(context.Background(), srv.URL)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("want *NetworkError, got %T: %v", err, err)
	}
	if netErr.URL != srv.URL {
		t.Errorf("URL = %q, want %q", netErr.URL, srv.URL)
	}
}

func TestBadJSONIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Playlist(context.Background(), srv.URL)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("want *NetworkError, got %T: %v", err, err)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient()
	if _, err := c.Index(ctx, "http://127.0.0.1:0/index.json"); err == nil {
		t.Fatal("want error from cancelled context")
	}
}
