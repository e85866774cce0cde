// Package pagination implements opaque keyset cursors for event feeds.
//
// Listings are ordered newest first on the (created_at, id) pair. A cursor
// pins a position in that ordering as a base64url token over
// "unixnano:id", so pages stay stable while new events keep arriving at
// the head of the feed. Tokens carry no server state.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned by Decode for tokens this package did not
// produce.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Cursor is a decoded feed position.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Token serializes the cursor into its opaque wire form.
func (c Cursor) Token() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor token. An empty token decodes to nil, meaning
// "start from the newest event".
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanosPart, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Page trims a result set that was fetched with one extra row beyond the
// requested limit. The extra row only signals that more exist; it is cut
// from the returned slice. When a next page exists, the token of the last
// returned row is produced via key, which extracts its ordering pair.
func Page[T any](rows []T, limit int, key func(T) (time.Time, string)) (page []T, next string, more bool) {
	if len(rows) <= limit {
		return rows, "", false
	}
	page = rows[:limit]
	createdAt, id := key(page[len(page)-1])
	return page, Cursor{CreatedAt: createdAt, ID: id}.Token(), true
}
