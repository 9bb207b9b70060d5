package models

import "time"

// Document is a single corpus file.
type Document struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Chunk is a paragraph of a Document and the unit stored in the vector store.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// ContextItem is a retrieved chunk handed to the language model.
type ContextItem struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Metadata returns the item's metadata as stored alongside the chunk.
func (c ContextItem) Metadata() map[string]string {
	return map[string]string{"source": c.Source}
}

// Candidate is a ContextItem under consideration during a single retrieval.
// Rank is the position in the store's similarity order and breaks ties on Score.
type Candidate struct {
	Item  ContextItem
	Rank  int
	Score int
}

// Answer is the synthesized reply together with the cited sources.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}
