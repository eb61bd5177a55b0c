// Package board is the lifecycle layer between authenticated requests and
// the external real-time room store: identifier composition, scope
// authorization, idempotent creation with document seeding, rename and
// relocation, and listing aggregation.
package board

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cycles/api/internal/audit"
	"cycles/api/internal/identity"
	"cycles/api/internal/rooms"
	"cycles/api/internal/search"
)

// RoomStore is the slice of the room store client the board layer uses.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (rooms.Room, error)
	CreateRoom(ctx context.Context, roomID string, metadata rooms.Metadata, defaultAccesses []string) error
	UpdateRoom(ctx context.Context, roomID string, metadata rooms.Metadata) error
	UpdateRoomID(ctx context.Context, currentID, newID string) error
	InitializeStorage(ctx context.Context, roomID string, root rooms.StorageNode) error
	ListRooms(ctx context.Context, prefix string) ([]rooms.Room, error)
}

// ProfileResolver resolves creator identity references to display profiles.
type ProfileResolver interface {
	GetUser(ctx context.Context, userID string) (identity.Profile, error)
}

// AuditRecorder records lifecycle events. Failures are logged, never fatal
// to the operation that triggered them.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// AuditReader reads a board's lifecycle history back out of the audit log.
// The recorder may optionally implement it.
type AuditReader interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]audit.Entry, error)
}

type Service struct {
	store    RoomStore
	profiles ProfileResolver
	audit    AuditRecorder    // optional
	search   *search.Service  // optional
}

func New(store RoomStore, profiles ProfileResolver, auditLog AuditRecorder, searchSvc *search.Service) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		audit:    auditLog,
		search:   searchSvc,
	}
}

// Board is the metadata view of a room this layer exposes.
type Board struct {
	RoomID    string `json:"roomId"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	CreatedOn string `json:"createdOn"`
	CreatedBy string `json:"createdBy"`
	Archived  bool   `json:"archived"`
}

// CreateResult reports where a creation request landed. Created is false
// when the slug already denoted a board and the request was a no-op.
type CreateResult struct {
	RoomID  string
	Path    string
	Created bool
}

// Create makes a new board under the requester's scope, idempotently. The
// record write and the storage seed are two independent store calls with no
// shared transaction; a seed failure after a successful record write is
// surfaced as *PartialCreateError.
func (s *Service) Create(ctx context.Context, id Identity, slug, title string) (CreateResult, error) {
	if !id.Authenticated() {
		return CreateResult{}, ErrNotAuthenticated
	}
	if title == "" {
		title = DefaultTitle
	}

	roomID, err := ComposeRoomID(id.Scope(), slug)
	if err != nil {
		return CreateResult{}, err
	}
	path := "/" + id.PathSlug() + "/boards/" + slug

	if s.roomExists(ctx, roomID) {
		return CreateResult{RoomID: roomID, Path: path}, nil
	}

	metadata := rooms.Metadata{
		"title":     title,
		"createdOn": time.Now().UTC().Format(time.RFC3339),
		"createdBy": id.UserID,
	}
	if err := s.store.CreateRoom(ctx, roomID, metadata, []string{"room:write"}); err != nil {
		return CreateResult{}, &BackendError{Op: "create", Err: err}
	}

	if err := s.store.InitializeStorage(ctx, roomID, NewSeedDocument()); err != nil {
		s.record(ctx, audit.Entry{Event: audit.BoardPartiallyCreated, RoomID: roomID, ActorID: id.UserID, Detail: err.Error()})
		return CreateResult{}, &PartialCreateError{RoomID: roomID, Err: err}
	}

	s.record(ctx, audit.Entry{Event: audit.BoardCreated, RoomID: roomID, ActorID: id.UserID, Detail: title})
	s.index(roomID, metadata)

	return CreateResult{RoomID: roomID, Path: path, Created: true}, nil
}

// UpdateInput carries a rename/relocate request. OrgID is the target scope
// component; empty means the requester's current scope.
type UpdateInput struct {
	RoomID string
	Title  string
	Slug   string
	OrgID  string
}

// Update renames a board and/or migrates it to a new identifier. Both the
// metadata update and the migration are skipped when their inputs are
// unchanged, since neither is a cheap no-op on the store. Returns the
// tenant's listing path.
func (s *Service) Update(ctx context.Context, id Identity, in UpdateInput) (string, error) {
	if !id.Authenticated() {
		return "", ErrNotAuthenticated
	}
	if err := s.authorize(id, in.RoomID); err != nil {
		return "", err
	}

	room, err := s.store.GetRoom(ctx, in.RoomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", &BackendError{Op: "get", Err: err}
	}

	metadata := room.Metadata
	changed := false
	if in.Title != room.Metadata["title"] {
		changed = true
		// Full-metadata overwrite: the store replaces the whole object.
		metadata = rooms.Metadata{
			"createdBy": id.UserID,
			"createdOn": time.Now().UTC().Format(time.RFC3339),
		}
		for key, value := range room.Metadata {
			metadata[key] = value
		}
		metadata["title"] = in.Title
		if err := s.store.UpdateRoom(ctx, in.RoomID, metadata); err != nil {
			return "", &BackendError{Op: "update", Err: err}
		}
		s.record(ctx, audit.Entry{Event: audit.BoardRenamed, RoomID: in.RoomID, ActorID: id.UserID, Detail: in.Title})
	}

	scope := in.OrgID
	if scope == "" {
		scope = id.Scope()
	}
	newRoomID, err := ComposeRoomID(scope, in.Slug)
	if err != nil {
		return "", err
	}
	if newRoomID != in.RoomID {
		changed = true
		if err := s.store.UpdateRoomID(ctx, in.RoomID, newRoomID); err != nil {
			return "", &BackendError{Op: "migrate", Err: err}
		}
		s.record(ctx, audit.Entry{Event: audit.BoardMigrated, RoomID: in.RoomID, NewRoomID: newRoomID, ActorID: id.UserID})
		s.deindex(in.RoomID)
	}
	if changed {
		s.index(newRoomID, metadata)
	}

	return "/" + id.PathSlug() + "/boards", nil
}

// SetArchived toggles the archived metadata flag. Archival is a flag, not
// removal; no delete operation exists in this layer.
func (s *Service) SetArchived(ctx context.Context, id Identity, roomID string, archived bool) error {
	if !id.Authenticated() {
		return ErrNotAuthenticated
	}
	if err := s.authorize(id, roomID); err != nil {
		return err
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return ErrNotFound
		}
		return &BackendError{Op: "get", Err: err}
	}
	if archivedFlag(room.Metadata) == archived {
		return nil
	}

	metadata := rooms.Metadata{}
	for key, value := range room.Metadata {
		metadata[key] = value
	}
	if archived {
		metadata["archived"] = "true"
	} else {
		delete(metadata, "archived")
	}
	if err := s.store.UpdateRoom(ctx, roomID, metadata); err != nil {
		return &BackendError{Op: "update", Err: err}
	}

	event := audit.BoardArchived
	if !archived {
		event = audit.BoardUnarchived
	}
	s.record(ctx, audit.Entry{Event: event, RoomID: roomID, ActorID: id.UserID})
	s.index(roomID, metadata)
	return nil
}

// Get fetches one board by its raw slug path segment. The segment is URL
// decoded here, exactly once, and only after that used for the store
// lookup; any lookup failure reads as not found so the response does not
// leak whether the board exists.
func (s *Service) Get(ctx context.Context, id Identity, rawSlug string) (Board, error) {
	if !id.Authenticated() {
		return Board{}, ErrNotAuthenticated
	}

	slug, err := url.PathUnescape(rawSlug)
	if err != nil {
		return Board{}, ErrNotFound
	}

	roomID := id.Scope() + ":" + slug
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return Board{}, ErrNotFound
	}
	return toBoard(room), nil
}

// History returns a board's lifecycle events, newest first. The board is
// addressed by slug under the requester's own scope.
func (s *Service) History(ctx context.Context, id Identity, slug string, limit int) ([]audit.Entry, error) {
	if !id.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	reader, ok := s.audit.(AuditReader)
	if !ok {
		return nil, ErrAuditUnavailable
	}

	roomID, err := ComposeRoomID(id.Scope(), slug)
	if err != nil {
		return nil, err
	}
	entries, err := reader.ListByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, &BackendError{Op: "history", Err: err}
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}

// Listing is the shaped listing response: boards partitioned by lifecycle
// state plus one resolved profile per distinct creator.
type Listing struct {
	Active   []Board                     `json:"active"`
	Archived []Board                     `json:"archived"`
	Creators map[string]identity.Profile `json:"creators"`
}

// profileResolveConcurrency bounds the parallel identity lookups a single
// listing request may issue.
const profileResolveConcurrency = 8

// List returns every board under the requester's scope, partitioned by the
// archived flag, with creator profiles resolved in one deduplicated batch.
func (s *Service) List(ctx context.Context, id Identity) (Listing, error) {
	if !id.Authenticated() {
		return Listing{}, ErrNotAuthenticated
	}

	roomList, err := s.store.ListRooms(ctx, id.Scope()+":")
	if err != nil {
		return Listing{}, &BackendError{Op: "list", Err: err}
	}

	listing := Listing{
		Active:   []Board{},
		Archived: []Board{},
		Creators: map[string]identity.Profile{},
	}
	creatorSet := map[string]struct{}{}
	for _, room := range roomList {
		item := toBoard(room)
		if item.Archived {
			listing.Archived = append(listing.Archived, item)
		} else {
			listing.Active = append(listing.Active, item)
		}
		if item.CreatedBy != "" {
			creatorSet[item.CreatedBy] = struct{}{}
		}
	}

	// One lookup per distinct creator, concurrently. A failed lookup leaves
	// that creator absent rather than failing the listing; results merge by
	// identity key, not completion order.
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(profileResolveConcurrency)
	for creator := range creatorSet {
		creator := creator
		group.Go(func() error {
			profile, err := s.profiles.GetUser(groupCtx, creator)
			if err != nil {
				if !errors.Is(err, identity.ErrNotFound) {
					log.Printf("board: resolve creator %s: %v", creator, err)
				}
				return nil
			}
			mu.Lock()
			listing.Creators[creator] = profile
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return listing, nil
}

// authorize is the scope guard: the target identifier must carry the
// requester's own scope prefix. A missing identifier fails here, before any
// store call.
func (s *Service) authorize(id Identity, roomID string) error {
	if roomID == "" {
		return ErrUnauthorized
	}
	scope, slug := SplitRoomID(roomID)
	if slug == "" || scope != id.Scope() {
		return ErrUnauthorized
	}
	return nil
}

// roomExists gates creation. Any lookup failure, not-found or transport,
// uniformly reads as absent; a transient outage therefore lets creation
// proceed against a board that may exist. Accepted risk, logged.
func (s *Service) roomExists(ctx context.Context, roomID string) bool {
	_, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, rooms.ErrNotFound) {
			log.Printf("board: existence check %s failed, treating as absent: %v", roomID, err)
		}
		return false
	}
	return true
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		log.Printf("board: audit %s %s: %v", entry.Event, entry.RoomID, err)
	}
}

func (s *Service) index(roomID string, metadata rooms.Metadata) {
	if s.search == nil {
		return
	}
	scope, slug := SplitRoomID(roomID)
	s.search.IndexBoard(search.BoardRecord{
		ID:        search.RecordID(roomID),
		RoomID:    roomID,
		Scope:     scope,
		Slug:      slug,
		Title:     metadata["title"],
		CreatedBy: metadata["createdBy"],
		Archived:  metadata["archived"] == "true",
	})
}

func (s *Service) deindex(roomID string) {
	if s.search == nil {
		return
	}
	s.search.DeleteBoard(search.RecordID(roomID))
}

func toBoard(room rooms.Room) Board {
	_, slug := SplitRoomID(room.ID)
	return Board{
		RoomID:    room.ID,
		Slug:      slug,
		Title:     room.Metadata["title"],
		CreatedOn: room.Metadata["createdOn"],
		CreatedBy: room.Metadata["createdBy"],
		Archived:  archivedFlag(room.Metadata),
	}
}

func archivedFlag(metadata rooms.Metadata) bool {
	return metadata["archived"] == "true"
}
