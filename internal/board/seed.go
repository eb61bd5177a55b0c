package board

import (
	"cycles/api/internal/rooms"
	"cycles/api/internal/util"
)

const (
	// DefaultTitle is used when a creation request carries no title.
	DefaultTitle = "New board"

	seedScopeTitle = "First scope"
	seedScopeColor = "color-2"
	seedPitchTitle = "First pitch"
)

// NewSeedDocument builds the fixed initial storage tree written once when a
// board is created: an empty task list, a single core scope, a single pitch
// linked to that scope, and the board info object. The generated ids are
// opaque tokens whose only purpose is the scope-to-pitch cross reference.
func NewSeedDocument() rooms.StorageNode {
	pitchID := util.NewToken()
	scopeID := util.NewToken()

	return rooms.LiveObject(map[string]any{
		"tasks": rooms.LiveList(),
		"scopes": rooms.LiveList(
			rooms.LiveObject(map[string]any{
				"id":      scopeID,
				"pitchId": pitchID,
				"title":   seedScopeTitle,
				"color":   seedScopeColor,
				"core":    true,
			}),
		),
		"pitches": rooms.LiveList(
			rooms.LiveObject(map[string]any{
				"id":    pitchID,
				"title": seedPitchTitle,
			}),
		),
		"info": rooms.LiveObject(map[string]any{
			"name": DefaultTitle,
		}),
	})
}
