// Package pagination provides cursor-based pagination over in-memory result
// sets. The cursor pins the ID of the last item the client saw; the next page
// resumes after that ID in the caller's current ordering.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Encode returns an opaque cursor string for the given item ID.
func Encode(id string) string {
	return base64.URLEncoding.EncodeToString([]byte("v1|" + id))
}

// Decode parses an opaque cursor string into the item ID it pins.
// Returns "" for empty input.
func Decode(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("invalid cursor")
	}
	version, id, ok := strings.Cut(string(raw), "|")
	if !ok || version != "v1" || id == "" {
		return "", fmt.Errorf("invalid cursor")
	}
	return id, nil
}

// Page slices one page out of an already filtered and sorted result set.
// afterID is the decoded cursor ("" starts from the top); if the pinned item
// is no longer present — the session was cleared or re-filtered — the page
// restarts from the top rather than failing. Returns the page, the next
// cursor, and whether more items remain.
func Page[T any](items []T, limit int, afterID string, extractID func(T) string) ([]T, string, bool) {
	if limit <= 0 {
		limit = len(items)
	}

	start := 0
	if afterID != "" {
		for i, item := range items {
			if extractID(item) == afterID {
				start = i + 1
				break
			}
		}
	}

	if start >= len(items) {
		return []T{}, "", false
	}
	end := start + limit
	if end >= len(items) {
		return items[start:], "", false
	}
	page := items[start:end]
	return page, Encode(extractID(page[len(page)-1])), true
}
