package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type row struct {
	id      uuid.UUID
	created time.Time
}

func (r row) CursorKey() Cursor { return Cursor{CreatedAt: r.created, ID: r.id} }

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 10, NormalizeLimit(10))
	require.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	for _, bad := range []string{"not-base64!!", EncodeCursor(Cursor{}), "bm90LWpzb24"} {
		_, err = ParseCursor(bad)
		require.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestBuildPage(t *testing.T) {
	base := time.Now().UTC()
	rows := []row{
		{id: uuid.New(), created: base},
		{id: uuid.New(), created: base.Add(-time.Minute)},
		{id: uuid.New(), created: base.Add(-2 * time.Minute)},
	}

	page := BuildPage(rows, 2)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	cursor, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, rows[1].id, cursor.ID)

	last := BuildPage(rows[:1], 2)
	require.Len(t, last.Items, 1)
	require.Empty(t, last.NextCursor)

	none := BuildPage[row](nil, 2)
	require.NotNil(t, none.Items)
}
