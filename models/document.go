package models

import "fmt"

// Page is one extracted page of a source document. Numbers are 0-based;
// plain-text sources are a single page 0.
type Page struct {
	Number int
	Text   string
}

// Document is a loaded source file.
type Document struct {
	Name  string
	Path  string
	Pages []Page
}

// Chunk is a contiguous slice of a document page.
type Chunk struct {
	Text          string
	Source        string
	Page          int
	SequenceIndex int
}

// Payload is what the vector index stores next to each vector.
type Payload struct {
	Text    string `json:"text"`
	Page    int    `json:"page"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
}

// Point is an embedded chunk keyed by a collection-unique identifier.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// SearchResult is a single hit of a similarity query.
type SearchResult struct {
	Text     string         `json:"text"`
	Page     int            `json:"page"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PageRef renders the page reference used in answer sources.
func (r SearchResult) PageRef() string {
	return PageRef(r.Page)
}

// PageRef formats a page number as it appears in answer sources.
func PageRef(page int) string {
	return fmt.Sprintf("page_%d", page)
}

// PayloadMap flattens a payload into the generic metadata shape returned by
// the index backends.
func (p Payload) PayloadMap() map[string]any {
	return map[string]any{
		"text":     p.Text,
		"page":     p.Page,
		"source":   p.Source,
		"chunk_id": p.ChunkID,
	}
}
