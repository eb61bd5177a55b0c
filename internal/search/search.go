// Package search provides board title search: Meilisearch when configured,
// with a room-store prefix scan as the fallback.
package search

import "strings"

// BoardRecord is the data indexed per board. ID is the room id made safe
// for the index's primary key character set; RoomID keeps the real id.
type BoardRecord struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	Scope     string `json:"scope"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	CreatedBy string `json:"createdBy"`
	Archived  bool   `json:"archived"`
}

// RecordID converts a room id into a valid index document id. Meilisearch
// primary keys only allow [A-Za-z0-9_-], which excludes the scope
// separator.
func RecordID(roomID string) string {
	return strings.ReplaceAll(roomID, ":", "__")
}

// Query describes a board search. Scope is mandatory: results never cross
// the requester's tenant scope.
type Query struct {
	Text            string
	Scope           string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []BoardRecord `json:"results"`
	Total   int           `json:"total"`
	Query   string        `json:"query"`
}
