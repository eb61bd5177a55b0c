package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to the
// room store scan.
type Service struct {
	meili    *Meili
	fallback *Fallback
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise scans the room store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to room scan: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []BoardRecord{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexBoard indexes a board (fire-and-forget to Meilisearch).
func (s *Service) IndexBoard(record BoardRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexBoard(record); err != nil {
			log.Printf("search: index board %s: %v", record.RoomID, err)
		}
	}()
}

// DeleteBoard removes a board from the index (fire-and-forget).
func (s *Service) DeleteBoard(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteBoard(id); err != nil {
			log.Printf("search: delete board %s: %v", id, err)
		}
	}()
}

// ReindexScope pushes one tenant's boards from the room store into
// Meilisearch. Called opportunistically after startup.
func (s *Service) ReindexScope(ctx context.Context, scope string) {
	if s.meili == nil || !s.meili.Healthy() || s.fallback == nil {
		return
	}
	records, _, err := s.fallback.Search(ctx, Query{Scope: scope, IncludeArchived: true, Limit: 1000})
	if err != nil {
		log.Printf("search: reindex scope %s: %v", scope, err)
		return
	}
	if err := s.meili.IndexBoards(records); err != nil {
		log.Printf("search: reindex scope %s: %v", scope, err)
	}
}

func nonNil(r []BoardRecord) []BoardRecord {
	if r == nil {
		return []BoardRecord{}
	}
	return r
}
