// Command reconcile repairs boards whose record was created but whose
// storage seed failed. It reads the partial-creation trail from the audit
// log, seeds each board that still exists, and records the completed
// creation. Run it periodically; the API never repairs the window itself.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"cycles/api/internal/audit"
	"cycles/api/internal/board"
	"cycles/api/internal/config"
	"cycles/api/internal/rooms"
)

func main() {
	since := flag.Duration("since", 24*time.Hour, "how far back to look for partial creations")
	dryRun := flag.Bool("dry-run", false, "list partial creations without seeding")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required: the partial-creation trail lives in the audit log")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := audit.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	auditLog := audit.NewLog(db)
	roomStore := rooms.NewClient(cfg.RoomsURL, cfg.RoomsAPIKey)

	entries, err := auditLog.ListUnseeded(ctx, time.Now().Add(-*since))
	if err != nil {
		log.Fatalf("list unseeded boards: %v", err)
	}
	if len(entries) == 0 {
		log.Printf("no unseeded boards in the last %s", *since)
		return
	}

	repaired, skipped := 0, 0
	for _, entry := range entries {
		if *dryRun {
			log.Printf("unseeded: %s (actor %s, at %s)", entry.RoomID, entry.ActorID, entry.CreatedAt.Format(time.RFC3339))
			continue
		}

		// The room may have been deleted upstream since the failure.
		if _, err := roomStore.GetRoom(ctx, entry.RoomID); err != nil {
			if errors.Is(err, rooms.ErrNotFound) {
				log.Printf("skip %s: room no longer exists", entry.RoomID)
				skipped++
				continue
			}
			log.Printf("skip %s: lookup failed: %v", entry.RoomID, err)
			skipped++
			continue
		}

		if err := roomStore.InitializeStorage(ctx, entry.RoomID, board.NewSeedDocument()); err != nil {
			log.Printf("seed %s: %v", entry.RoomID, err)
			skipped++
			continue
		}
		record := audit.Entry{
			Event:   audit.BoardCreated,
			RoomID:  entry.RoomID,
			ActorID: entry.ActorID,
			Detail:  "reconciled",
		}
		if err := auditLog.Record(ctx, record); err != nil {
			log.Printf("record %s: %v", entry.RoomID, err)
		}
		repaired++
	}

	if *dryRun {
		log.Printf("%d unseeded board(s) found", len(entries))
		return
	}
	log.Printf("repaired %d, skipped %d of %d unseeded board(s)", repaired, skipped, len(entries))
}
