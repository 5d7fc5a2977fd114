package document

import (
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 80
)

// NewSplitter returns a recursive character splitter measuring length in
// characters.
func NewSplitter(chunkSize, chunkOverlap int) (textsplitter.TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}

	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	), nil
}

// Split chunks every document, copying its metadata onto each chunk.
func Split(s textsplitter.TextSplitter, docs []schema.Document) ([]schema.Document, error) {
	chunks, err := textsplitter.SplitDocuments(s, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}
	return chunks, nil
}
