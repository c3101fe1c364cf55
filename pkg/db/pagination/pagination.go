package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid page token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10" validate:"gte=1,lte=250"`
}

type PageInfo struct {
	NextPageToken     string `json:"next_page_token"`
	PreviousPageToken string `json:"previous_page_token,omitempty"`
	HasMore           bool   `json:"has_more"`
}

// Position is the (created_at, id) pair of the last row a client saw.
// Listings are ordered newest first so the next page starts strictly after it.
type Position struct {
	ID        int64
	CreatedAt time.Time
}

type wireCursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// Token renders p as an opaque URL-safe page token.
func (p Position) Token() string {
	b, _ := json.Marshal(wireCursor{
		ID:        strconv.FormatInt(p.ID, 10),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	return base64.RawURLEncoding.EncodeToString(b)
}

// ParseToken reverses Position.Token. Any malformed input yields ErrInvalidToken.
func ParseToken(token string) (Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Position{}, ErrInvalidToken
	}
	var c wireCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Position{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil || id <= 0 {
		return Position{}, ErrInvalidToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return Position{}, ErrInvalidToken
	}
	return Position{ID: id, CreatedAt: createdAt}, nil
}

// Page cuts rows fetched with a size+1 limit down to size and reports whether
// the extra row was present.
func Page[T any](rows []*T, size int, position func(*T) Position) ([]*T, PageInfo) {
	var info PageInfo
	if size > 0 && len(rows) > size {
		rows = rows[:size]
		info.HasMore = true
	}
	if info.HasMore {
		info.NextPageToken = position(rows[len(rows)-1]).Token()
	}
	return rows, info
}
