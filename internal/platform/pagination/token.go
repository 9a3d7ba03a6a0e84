package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// maxTokenLength bounds inbound tokens before any decoding happens, so a
// hostile query parameter cannot force a large allocation.
const maxTokenLength = 4096

// EncodeToken packs the cursor into an opaque URL-safe page token. An empty
// cursor encodes to the empty string, meaning "first page".
func EncodeToken(cursor Cursor) (string, error) {
	if len(cursor.StartAfter) == 0 && len(cursor.StartAt) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken reverses EncodeToken. Anything that did not come out of
// EncodeToken maps to ErrInvalidPageToken rather than a decoding detail the
// client could not act on.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	if len(token) > maxTokenLength {
		return Cursor{}, fmt.Errorf("%w: token exceeds %d bytes", ErrInvalidPageToken, maxTokenLength)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
