package rate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMemory(t *testing.T) (*MemoryWindow, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	m := NewMemoryWindow()
	m.Clock = clk.Now
	return m, clk
}

func TestIsAllowed_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory(t)
	l := NewLimiter(m)

	for i := 0; i < 5; i++ {
		ok, err := l.IsAllowed(ctx, "password_change_user_42", 5, 300*time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "intento %d", i+1)
	}
	ok, err := l.IsAllowed(ctx, "password_change_user_42", 5, 300*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(300 * time.Second)
	ok, err = l.IsAllowed(ctx, "password_change_user_42", 5, 300*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAllowed_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemory(t)
	l := NewLimiter(m)

	ok, _ := l.IsAllowed(ctx, "login_ip_1.2.3.4", 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.IsAllowed(ctx, "login_ip_1.2.3.4", 1, time.Minute)
	assert.False(t, ok)
	ok, _ = l.IsAllowed(ctx, "login_ip_5.6.7.8", 1, time.Minute)
	assert.True(t, ok)
}

func TestBlockedAttemptsDoNotExtendWindow(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory(t)
	l := NewLimiter(m)

	ok, _ := l.IsAllowed(ctx, "k", 1, time.Minute)
	require.True(t, ok)

	clk.Advance(50 * time.Second)
	ok, _ = l.IsAllowed(ctx, "k", 1, time.Minute)
	require.False(t, ok)

	clk.Advance(10 * time.Second)
	ok, _ = l.IsAllowed(ctx, "k", 1, time.Minute)
	assert.True(t, ok)
}

func TestTimeUntilReset(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory(t)
	l := NewLimiter(m)

	d, err := l.TimeUntilReset(ctx, "empty", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, d)

	_, _ = l.IsAllowed(ctx, "k", 3, time.Minute)
	clk.Advance(20 * time.Second)
	_, _ = l.IsAllowed(ctx, "k", 3, time.Minute)

	d, err = l.TimeUntilReset(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, d)
}

func TestCheck_RetryAfterWhenBlocked(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory(t)
	l := NewLimiter(m)
	lim := Limit{Max: 2, Window: time.Minute}

	assert.True(t, l.Check(ctx, "login_ip", "login_ip_9.9.9.9", lim).Allowed)
	clk.Advance(15 * time.Second)
	assert.True(t, l.Check(ctx, "login_ip", "login_ip_9.9.9.9", lim).Allowed)

	res := l.Check(ctx, "login_ip", "login_ip_9.9.9.9", lim)
	assert.False(t, res.Allowed)
	assert.Equal(t, 45*time.Second, res.RetryAfter)
	assert.Equal(t, 45, CeilSeconds(res.RetryAfter))
}

type failingBackend struct{}

func (failingBackend) Take(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("connection refused")
}

func (failingBackend) TimeUntilReset(context.Context, string, time.Duration) (time.Duration, error) {
	return 0, errors.New("connection refused")
}

func TestCheck_FailOpen(t *testing.T) {
	l := NewLimiter(failingBackend{})
	res := l.Check(context.Background(), "login_ip", "login_ip_1.1.1.1", Limit{Max: 1, Window: time.Minute})
	assert.True(t, res.Allowed)

	_, err := l.IsAllowed(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}

func TestCheck_DisabledLimit(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Check(context.Background(), "x", "k", Limit{Max: 1, Window: time.Minute}).Allowed)

	l = NewLimiter(NewMemoryWindow())
	assert.True(t, l.Check(context.Background(), "x", "k", Limit{}).Allowed)
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 0, CeilSeconds(0))
	assert.Equal(t, 1, CeilSeconds(10*time.Millisecond))
	assert.Equal(t, 2, CeilSeconds(2*time.Second))
	assert.Equal(t, 3, CeilSeconds(2*time.Second+time.Nanosecond))
}

// Requiere un Redis real: CINELOG_TEST_REDIS_ADDR=localhost:6379
func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("CINELOG_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CINELOG_TEST_REDIS_ADDR no seteado")
	}
	ctx := context.Background()
	client := rdb.NewClient(&rdb.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	w := NewRedisWindow(client, "rl:test:")
	key := "user_" + time.Now().Format("150405.000000000")
	t.Cleanup(func() { client.Del(ctx, w.key(key)) })

	l := NewLimiter(w)
	for i := 0; i < 3; i++ {
		ok, err := l.IsAllowed(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.IsAllowed(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := l.TimeUntilReset(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, time.Minute)
}
