package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tieubaoca/edu-assistant/types"
)

// fakeEmbedder returns the vector registered for a text, or a default one.
type fakeEmbedder struct {
	mu       sync.Mutex
	dims     int
	vectors  map[string][]float32
	failOn   map[string]bool
	failAll  bool
	requests []string
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{
		dims:    dims,
		vectors: make(map[string][]float32),
		failOn:  make(map[string]bool),
	}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, text)
	if f.failAll || f.failOn[text] {
		return nil, types.ErrEmbeddingFailed
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, f.dims)
	v[0] = 1
	return v, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

// fakeExtractor returns fixed pages.
type fakeExtractor struct {
	pages []string
	err   error
}

func (f *fakeExtractor) Extract(context.Context, string, []byte) ([]string, error) {
	return f.pages, f.err
}

// fakeArchiver records archived uploads.
type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) Archive(_ context.Context, userID, filename string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "uploads/user_" + userID + "/" + filename
	f.keys = append(f.keys, key)
	return key, nil
}

var errBoom = errors.New("boom")

func mustSession(userID string) Session {
	s, err := NewSession(userID)
	if err != nil {
		panic(err)
	}
	return s
}
