package search

// Result is a single note hit returned to the caller.
type Result struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Snippet       string `json:"snippet"`
	OwnerUsername string `json:"ownerUsername"`
}

// Query describes a search request. Owners is the caller's visible-owner
// set; the search layer only ever narrows to it, never widens it.
type Query struct {
	Text   string
	Owners []string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over notes.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Tags          []string `json:"tags"`
	OwnerUsername string   `json:"ownerUsername"`
}
