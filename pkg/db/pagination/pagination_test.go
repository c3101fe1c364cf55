package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	pos, err := ParseToken(Position{ID: 42, CreatedAt: at}.Token())
	require.NoError(t, err)
	assert.Equal(t, int64(42), pos.ID)
	assert.True(t, pos.CreatedAt.Equal(at))
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "!!!", "bm90LWpzb24", Position{ID: 0, CreatedAt: time.Now()}.Token()} {
		_, err := ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestPageTrimsExtraRow(t *testing.T) {
	type row struct{ id int64 }
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	position := func(r *row) Position { return Position{ID: r.id, CreatedAt: at} }
	rows := []*row{{id: 3}, {id: 2}, {id: 1}}

	kept, info := Page(rows, 2, position)
	require.Len(t, kept, 2)
	assert.True(t, info.HasMore)
	next, err := ParseToken(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID)

	kept, info = Page(rows[:1], 2, position)
	assert.Len(t, kept, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
