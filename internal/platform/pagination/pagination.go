package pagination

import "errors"

const (
	// DefaultPageSize is the page size applied when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps pageSize so a single request cannot drain a
	// collection.
	DefaultMaxPageSize = 100
)

// ErrInvalidPageToken is returned when a page token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// Cursor is the opaque Firestore cursor carried inside a page token.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}
