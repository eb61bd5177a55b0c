package util

import (
	"crypto/rand"
	"encoding/base64"
)

// NewToken returns an opaque 21-character URL-safe token. Tokens carry no
// meaning beyond cross-referencing the records they are stamped on.
func NewToken() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)[:21]
}
