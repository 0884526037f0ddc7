package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/reelstash/reelstash/internal/models"
)

// embStore extends fakeStore with a pending-embeddings queue.
type embStore struct {
	fakeStore
	mu      sync.Mutex
	pending []models.SegmentedEntry
	stored  map[int64][]float32
}

func (s *embStore) ListSegmentedWithoutEmbeddings(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *embStore) StoreEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = map[int64][]float32{}
	}
	for i, id := range ids {
		s.stored[id] = embeddings[i]
	}
	// Drop embedded rows from the pending queue.
	var remain []models.SegmentedEntry
	for _, p := range s.pending {
		if _, ok := s.stored[p.ID]; !ok {
			remain = append(remain, p)
		}
	}
	s.pending = remain
	return nil
}

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, texts)
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i]))}
	}
	return vecs, nil
}

func TestEmbedMissing(t *testing.T) {
	st := &embStore{
		pending: []models.SegmentedEntry{
			{ID: 1, Title: "Alpha", Description: "first"},
			{ID: 2, Title: "Beta"},
		},
	}
	emb := &fakeEmbedder{}
	c := New(st, &fakeFetcher{}, Options{IndexURL: "idx", Embedder: emb})

	n, err := c.EmbedMissing(context.Background())
	if err != nil {
		t.Fatalf("EmbedMissing: %v", err)
	}
	if n != 2 {
		t.Errorf("embedded = %d, want 2", n)
	}
	if len(st.stored) != 2 {
		t.Errorf("stored vectors = %d, want 2", len(st.stored))
	}
	if got := emb.calls[0][0]; got != "Alpha. first" {
		t.Errorf("embedding text = %q", got)
	}
	if got := emb.calls[0][1]; got != "Beta" {
		t.Errorf("embedding text without description = %q", got)
	}
}

func TestEmbedMissingDisabled(t *testing.T) {
	c := New(&fakeStore{}, &fakeFetcher{}, Options{IndexURL: "idx"})
	if _, err := c.EmbedMissing(context.Background()); !errors.Is(err, ErrEmbeddingsDisabled) {
		t.Fatalf("err = %v, want ErrEmbeddingsDisabled", err)
	}
	if _, err := c.SemanticSearch(context.Background(), "q", 5); !errors.Is(err, ErrEmbeddingsDisabled) {
		t.Fatalf("err = %v, want ErrEmbeddingsDisabled", err)
	}
}
