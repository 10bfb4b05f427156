package service

import (
	"strings"

	"github.com/tieubaoca/edu-assistant/config"
)

// Chunker splits text into fixed-size overlapping windows. Sizes are
// measured in characters (runes).
type Chunker struct {
	size    int
	overlap int
}

type ChunkerOption func(*Chunker)

func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		size:    config.DefaultChunkSize,
		overlap: config.DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size - 1
	}
	return c
}

// Step is the distance between the starts of consecutive windows.
func (c *Chunker) Step() int {
	return c.size - c.overlap
}

// Split returns the windows of text in order. Every character of text is
// contained in at least one window. Whitespace-only windows are dropped.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); start += c.Step() {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// SplitPages splits each page separately and concatenates the results in
// page order.
func (c *Chunker) SplitPages(pages []string) []string {
	var chunks []string
	for _, page := range pages {
		chunks = append(chunks, c.Split(page)...)
	}
	return chunks
}
