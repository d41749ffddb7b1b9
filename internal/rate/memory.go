package rate

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryWindow guarda las ventanas en proceso. Cada clave expira de go-cache tras
// una ventana sin intentos. Sirve para un solo proceso; en despliegues con varias
// réplicas usar RedisWindow.
type MemoryWindow struct {
	// Clock permite simular el paso del tiempo en tests. Default: time.Now.
	Clock func() time.Time

	mu sync.Mutex
	c  *gocache.Cache
}

type windowEntry struct {
	mu   sync.Mutex
	hits []time.Time
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{
		Clock: time.Now,
		c:     gocache.New(10*time.Minute, time.Minute),
	}
}

func (m *MemoryWindow) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

// entry obtiene o crea la ventana de key y renueva su TTL.
func (m *MemoryWindow) entry(key string, ttl time.Duration) *windowEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.c.Get(key); ok {
		e := v.(*windowEntry)
		m.c.Set(key, e, ttl)
		return e
	}
	e := &windowEntry{}
	m.c.Set(key, e, ttl)
	return e
}

// prune descarta timestamps con t <= now-window. Requiere e.mu tomado.
func (e *windowEntry) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(e.hits) && !e.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.hits = append(e.hits[:0], e.hits[i:]...)
	}
}

func (m *MemoryWindow) Take(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	now := m.now()
	e := m.entry(key, window)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune(now, window)
	res := Result{}
	if len(e.hits) < max {
		e.hits = append(e.hits, now)
		res.Allowed = true
	}
	res.CurrentHits = int64(len(e.hits))
	res.Remaining = int64(max) - res.CurrentHits
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed && len(e.hits) > 0 {
		res.RetryAfter = e.hits[0].Add(window).Sub(now)
	}
	return res, nil
}

func (m *MemoryWindow) TimeUntilReset(_ context.Context, key string, window time.Duration) (time.Duration, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return 0, nil
	}
	e := v.(*windowEntry)
	now := m.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now, window)
	if len(e.hits) == 0 {
		return 0, nil
	}
	return e.hits[0].Add(window).Sub(now), nil
}
