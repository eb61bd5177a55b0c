// Package audit keeps a durable trail of board lifecycle events. The room
// store holds only current state; this log is the one place a partially
// created board (record written, seed failed) is detectable after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type EventType string

const (
	BoardCreated          EventType = "board_created"
	BoardPartiallyCreated EventType = "board_partially_created"
	BoardRenamed          EventType = "board_renamed"
	BoardMigrated         EventType = "board_migrated"
	BoardArchived         EventType = "board_archived"
	BoardUnarchived       EventType = "board_unarchived"
)

type Entry struct {
	ID        int64     `json:"id"`
	Event     EventType `json:"event"`
	RoomID    string    `json:"roomId"`
	NewRoomID string    `json:"newRoomId,omitempty"`
	ActorID   string    `json:"actorId"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Log struct {
	db *sql.DB
}

func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

func (l *Log) Record(ctx context.Context, entry Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO board_events (event, room_id, new_room_id, actor_id, detail)
		VALUES ($1, $2, $3, $4, $5)
	`, string(entry.Event), entry.RoomID, entry.NewRoomID, entry.ActorID, entry.Detail)
	if err != nil {
		return fmt.Errorf("record board event: %w", err)
	}
	return nil
}

// ListByRoom returns a room's lifecycle history, newest first.
func (l *Log) ListByRoom(ctx context.Context, roomID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, event, room_id, new_room_id, actor_id, detail, created_at
		FROM board_events
		WHERE room_id = $1 OR new_room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list board events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListUnseeded returns partially created boards that have no later
// successful creation event. It exists for an external reconciliation job;
// this service never repairs the window itself.
func (l *Log) ListUnseeded(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT p.id, p.event, p.room_id, p.new_room_id, p.actor_id, p.detail, p.created_at
		FROM board_events p
		WHERE p.event = 'board_partially_created'
			AND p.created_at >= $1
			AND NOT EXISTS (
				SELECT 1 FROM board_events c
				WHERE c.room_id = p.room_id
					AND c.event = 'board_created'
					AND c.created_at > p.created_at
			)
		ORDER BY p.created_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list unseeded boards: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var event string
		if err := rows.Scan(&entry.ID, &event, &entry.RoomID, &entry.NewRoomID, &entry.ActorID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board event: %w", err)
		}
		entry.Event = EventType(event)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (l *Log) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
