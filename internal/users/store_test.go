package users

import (
	"context"
	"testing"
	"time"

	"github.com/graffic/quotebot/internal/quotes"
	"github.com/graffic/quotebot/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *testutils.TestDB) {
	t.Helper()
	db := testutils.NewTestDB(t, &Settings{}, &User{}, &Chat{})
	return NewStore(db.DB, db.Writer), db
}

func intPtr(v int) *int { return &v }

func TestTouch_CreatesThenRefreshes(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	_, err := store.Touch(ctx, Profile{ID: 1, FirstName: "Ann", Username: "ann"})
	require.NoError(t, err)

	later := first.Add(time.Hour)
	store.now = func() time.Time { return later }
	_, err = store.Touch(ctx, Profile{ID: 1, FirstName: "Anna", LastName: "K", LanguageCode: "en"})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.DB.Model(&User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	u, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Anna", u.FirstName)
	assert.Equal(t, "K", u.LastName)
	assert.Equal(t, "", u.Username)
	assert.Equal(t, "en", u.LanguageCode)
	assert.True(t, u.LastActivity.Equal(later))
	assert.Nil(t, u.Settings)
	assert.Equal(t, "Anna K", u.DisplayName())
}

func TestTouchChat(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.TouchChat(ctx, ChatProfile{ID: -100, Type: "group", Title: "old"})
	require.NoError(t, err)
	_, err = store.TouchChat(ctx, ChatProfile{ID: -100, Type: "supergroup", Title: "new"})
	require.NoError(t, err)
	_, err = store.TouchChat(ctx, ChatProfile{ID: 5, Type: "private"})
	require.NoError(t, err)

	chats, total, err := store.PageChats(ctx, 1, 10, "group", "supergroup")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, chats, 1)
	assert.Equal(t, "new", chats[0].Title)
	assert.Equal(t, "supergroup", chats[0].Type)

	_, total, err = store.PageChats(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestGet_Unknown(t *testing.T) {
	store, _ := newStore(t)

	u, err := store.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, u)

	f, err := store.Filters(context.Background(), 404)
	require.NoError(t, err)
	assert.True(t, f.IsZero())
}

func TestSetYears(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()
	_, err := store.Touch(ctx, Profile{ID: 1, FirstName: "Ann"})
	require.NoError(t, err)

	// Clearing years without settings does not create a settings row.
	changed, err := store.SetYears(ctx, 1, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	var count int64
	require.NoError(t, db.DB.Model(&Settings{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	changed, err = store.SetYears(ctx, 1, []int{2021, 2019, 2021})
	require.NoError(t, err)
	assert.True(t, changed)

	f, err := store.Filters(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, quotes.Filter{Years: []int{2019, 2021}}, f)

	changed, err = store.SetYears(ctx, 1, []int{2019, 2021})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = store.SetYears(ctx, 1, []int{})
	require.NoError(t, err)
	assert.True(t, changed)
	f, err = store.Filters(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, f.Years)

	require.NoError(t, db.DB.Model(&Settings{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetMaxTextLength(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	_, err := store.Touch(ctx, Profile{ID: 1, FirstName: "Ann"})
	require.NoError(t, err)

	changed, err := store.SetMaxTextLength(ctx, 1, intPtr(300))
	require.NoError(t, err)
	assert.True(t, changed)

	f, err := store.Filters(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 300, f.MaxTextLength)

	changed, err = store.SetMaxTextLength(ctx, 1, intPtr(300))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = store.SetMaxTextLength(ctx, 1, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	f, err = store.Filters(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, f.MaxTextLength)
}

func TestSetFilters_UnknownUser(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.SetYears(context.Background(), 9, []int{2020})
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = store.SetMaxTextLength(context.Background(), 9, intPtr(1))
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestPage(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		_, err := store.Touch(ctx, Profile{ID: i, FirstName: "u"})
		require.NoError(t, err)
	}

	page, total, err := store.Page(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].ID)
	assert.Equal(t, int64(2), page[1].ID)
}
