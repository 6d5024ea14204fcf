package search

import (
	"context"
	"encoding/json"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote indexes a note (fire-and-forget to Meilisearch).
func (s *Service) IndexNote(record NoteRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNote(record); err != nil {
			log.Printf("search: index note %s: %v", record.ID, err)
		}
	}()
}

// DeleteNote removes a note from the search index (fire-and-forget).
func (s *Service) DeleteNote(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNote(id); err != nil {
			log.Printf("search: delete note %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes every note from PostgreSQL into Meilisearch.
// Called during bootstrap when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexNotes(records); err != nil {
		log.Printf("search: reindex notes: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

func decodeTags(raw []byte) []string {
	var tags []string
	if len(raw) == 0 {
		return tags
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
