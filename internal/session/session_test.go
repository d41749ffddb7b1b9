package session

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/cache"
)

func newStore() (*CacheStore, cache.Client) {
	c := cache.NewMemory("test")
	return NewCacheStore(c, time.Hour), c
}

func TestStart(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	sess, err := s.Start(ctx, "")
	require.NoError(t, err)
	assert.True(t, sess.New)
	assert.NotEmpty(t, sess.ID)

	again, err := s.Start(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, again.New)
	assert.Equal(t, sess.ID, again.ID)

	unknown, err := s.Start(ctx, "forged")
	require.NoError(t, err)
	assert.True(t, unknown.New)
	assert.NotEqual(t, "forged", unknown.ID, "nunca se adopta un id elegido por el cliente")
}

func TestSetGetUnset(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	sess, err := s.Start(ctx, "")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, sess.ID, KeyUserID, "u1"))
	v, ok, err := s.Get(ctx, sess.ID, KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)

	require.NoError(t, s.Unset(ctx, sess.ID, KeyUserID))
	_, ok, err = s.Get(ctx, sess.ID, KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Set(ctx, "nope", KeyUserID, "u1"), ErrNotFound)
	_, ok, err = s.Get(ctx, "", KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegenerateID(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	sess, err := s.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, sess.ID, "theme", "dark"))

	nid, err := s.RegenerateID(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, nid)

	v, ok, err := s.Get(ctx, nid, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	_, ok, err = s.Get(ctx, sess.ID, "theme")
	require.NoError(t, err)
	assert.False(t, ok, "el id viejo queda invalidado")

	fresh, err := s.RegenerateID(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh)
}

func TestDestroy(t *testing.T) {
	s, c := newStore()
	ctx := context.Background()
	sess, err := s.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, sess.ID, KeyUserID, "u1"))

	require.NoError(t, s.Destroy(ctx, sess.ID))
	require.NoError(t, s.Destroy(ctx, ""))
	ok, err := c.Exists(ctx, cacheKey(sess.ID))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptPayload(t *testing.T) {
	s, c := newStore()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, cacheKey("abc"), "{not json", time.Minute))

	_, ok, err := s.Get(ctx, "abc", KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCookiePolicy(t *testing.T) {
	p := CookiePolicy{Domain: "movies.example.com", SameSite: "strict"}

	c := p.Build("cinelog_session", "v", true, time.Hour)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "movies.example.com", c.Domain)

	d := p.Deletion("cinelog_session", false)
	assert.Equal(t, -1, d.MaxAge)
	assert.Empty(t, d.Value)
	assert.False(t, d.Secure)

	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite(""))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite("bogus"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite(" None "))
}
