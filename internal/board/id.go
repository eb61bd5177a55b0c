package board

import (
	"regexp"
	"strings"
)

// Identity is the requester's claims triple, passed explicitly into every
// operation rather than read from ambient request state.
type Identity struct {
	UserID  string
	OrgID   string
	OrgSlug string
}

// Authenticated reports whether the request carries a user identity.
func (id Identity) Authenticated() bool { return id.UserID != "" }

// Scope is the tenant namespace root the requester may address: the
// organization id when present, otherwise the user id.
func (id Identity) Scope() string {
	if id.OrgID != "" {
		return id.OrgID
	}
	return id.UserID
}

// PathSlug is the tenant segment of navigation paths: the organization's
// display slug, or "me" for personal scope.
func (id Identity) PathSlug() string {
	if id.OrgSlug != "" {
		return id.OrgSlug
	}
	return "me"
}

// Slugs are restricted to this class so a user-chosen slug can never carry
// path separators, dot sequences, percent-encoding remnants or a
// protocol-relative prefix into a room id or a navigation path. Validation
// always runs on the raw slug; URL decoding happens exactly once, at the
// point a board is looked up, never before validation.
var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSlug rejects empty slugs and any slug with a character outside
// [A-Za-z0-9_-].
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return ErrInvalidSlug
	}
	return nil
}

// ComposeRoomID builds the composite room identifier <scope>:<slug> after
// validating the slug.
func ComposeRoomID(scope, slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}
	return scope + ":" + slug, nil
}

// SplitRoomID recovers the scope and slug of a composed room identifier.
// The slug may itself contain no colon, so the first colon is the split
// point.
func SplitRoomID(roomID string) (scope, slug string) {
	scope, slug, _ = strings.Cut(roomID, ":")
	return scope, slug
}
