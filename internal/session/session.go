// Package session implementa sesiones server-side sobre cache.Client.
//
// El cliente solo conoce el id opaco (cookie). En el cache la key es
// "sid:" + sha256(id) y el valor un JSON con los valores de la sesión; el único
// valor que usa el núcleo de auth es el user id (más el secreto TOTP pendiente
// durante el enrolamiento, sellado).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/dropDatabas3/cinelog/internal/cache"
	tokens "github.com/dropDatabas3/cinelog/internal/security/token"
)

const (
	KeyUserID      = "user_id"
	KeyTokenHash   = "token_hash"
	KeyPendingTOTP = "pending_totp"

	DefaultTTL = 24 * time.Hour
	idBytes    = 32
	keyPrefix  = "sid:"
)

// ErrNotFound indica que la sesión no existe o expiró.
var ErrNotFound = errors.New("session: not found")

// Session es una copia de la sesión al momento de leerla.
type Session struct {
	ID     string
	Values map[string]string
	// New es true si Start tuvo que crearla.
	New bool
}

// Store es el almacén de sesiones que consume auth.
type Store interface {
	// Start retoma la sesión id o crea una nueva si id está vacío o no existe.
	Start(ctx context.Context, id string) (*Session, error)
	Get(ctx context.Context, id, key string) (string, bool, error)
	Set(ctx context.Context, id, key, value string) error
	Unset(ctx context.Context, id, key string) error
	Destroy(ctx context.Context, id string) error
	// RegenerateID mueve los valores a un id nuevo e invalida el anterior.
	RegenerateID(ctx context.Context, id string) (string, error)
}

type payload struct {
	Values  map[string]string `json:"values"`
	Created time.Time         `json:"created"`
}

// CacheStore implementa Store sobre un cache.Client (memory o redis).
type CacheStore struct {
	cache cache.Client
	TTL   time.Duration
	Clock func() time.Time
}

var _ Store = (*CacheStore)(nil)

func NewCacheStore(c cache.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CacheStore{cache: c, TTL: ttl, Clock: time.Now}
}

func cacheKey(id string) string {
	return keyPrefix + tokens.SHA256Base64URL(id)
}

func (s *CacheStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *CacheStore) load(ctx context.Context, id string) (*payload, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := s.cache.Get(ctx, cacheKey(id))
	if cache.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// payload corrupto: se trata como inexistente
		_ = s.cache.Delete(ctx, cacheKey(id))
		return nil, ErrNotFound
	}
	if p.Values == nil {
		p.Values = map[string]string{}
	}
	return &p, nil
}

func (s *CacheStore) save(ctx context.Context, id string, p *payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.cache.Set(ctx, cacheKey(id), string(b), s.TTL); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (s *CacheStore) create(ctx context.Context, values map[string]string) (string, error) {
	id, err := tokens.GenerateOpaqueToken(idBytes)
	if err != nil {
		return "", fmt.Errorf("session: id: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	if err := s.save(ctx, id, &payload{Values: values, Created: s.now()}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *CacheStore) Start(ctx context.Context, id string) (*Session, error) {
	p, err := s.load(ctx, id)
	switch {
	case err == nil:
		return &Session{ID: id, Values: p.Values}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	nid, err := s.create(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Session{ID: nid, Values: map[string]string{}, New: true}, nil
}

func (s *CacheStore) Get(ctx context.Context, id, key string) (string, bool, error) {
	p, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, ok := p.Values[key]
	return v, ok, nil
}

// Set escribe sobre una sesión existente; ErrNotFound si no existe.
func (s *CacheStore) Set(ctx context.Context, id, key, value string) error {
	p, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	p.Values[key] = value
	return s.save(ctx, id, p)
}

func (s *CacheStore) Unset(ctx context.Context, id, key string) error {
	p, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, ok := p.Values[key]; !ok {
		return nil
	}
	delete(p.Values, key)
	return s.save(ctx, id, p)
}

func (s *CacheStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

// RegenerateID con un id vacío o desconocido equivale a crear una sesión nueva.
func (s *CacheStore) RegenerateID(ctx context.Context, id string) (string, error) {
	var values map[string]string
	p, err := s.load(ctx, id)
	switch {
	case err == nil:
		values = maps.Clone(p.Values)
	case !errors.Is(err, ErrNotFound):
		return "", err
	}
	nid, err := s.create(ctx, values)
	if err != nil {
		return "", err
	}
	if err := s.Destroy(ctx, id); err != nil {
		return "", err
	}
	return nid, nil
}
