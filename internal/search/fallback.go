package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cycles/api/internal/rooms"
)

// RoomLister is the slice of the room store client the fallback scans.
type RoomLister interface {
	ListRooms(ctx context.Context, prefix string) ([]rooms.Room, error)
}

// Fallback answers searches by scanning the tenant's prefix in the room
// store and substring-matching titles and slugs. Linear in the tenant's
// board count, which is fine at the board counts a single tenant holds.
type Fallback struct {
	store RoomLister
}

func NewFallback(store RoomLister) *Fallback {
	return &Fallback{store: store}
}

func (f *Fallback) Search(ctx context.Context, q Query) ([]BoardRecord, int, error) {
	roomList, err := f.store.ListRooms(ctx, q.Scope+":")
	if err != nil {
		return nil, 0, fmt.Errorf("fallback scan: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(q.Text))
	var matched []BoardRecord
	for _, room := range roomList {
		archived := room.Metadata["archived"] == "true"
		if archived && !q.IncludeArchived {
			continue
		}
		_, slug, _ := strings.Cut(room.ID, ":")
		title := room.Metadata["title"]
		if needle != "" &&
			!strings.Contains(strings.ToLower(title), needle) &&
			!strings.Contains(strings.ToLower(slug), needle) {
			continue
		}
		matched = append(matched, BoardRecord{
			ID:        RecordID(room.ID),
			RoomID:    room.ID,
			Scope:     q.Scope,
			Slug:      slug,
			Title:     title,
			CreatedBy: room.Metadata["createdBy"],
			Archived:  archived,
		})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Slug < matched[j].Slug })

	// Bounds from the query are clamped here as well as at the HTTP layer;
	// a negative value must never reach the slice expression.
	total := len(matched)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
