package session

import (
	"net/http"
	"strings"
	"time"
)

// CookiePolicy centraliza los flags de las cookies que emite el núcleo de auth
// (sesión, bearer y trusted device) para que la cookie de borrado coincida.
type CookiePolicy struct {
	Domain   string
	SameSite string // "", "lax", "strict", "none"
}

// ParseSameSite convierte el string de config. Default Lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Build arma una cookie HttpOnly con Path=/ y TTL. Con ttl 0 queda como cookie de sesión del browser.
func (p CookiePolicy) Build(name, value string, secure bool, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		Secure:   secure,
		HttpOnly: true,
		SameSite: ParseSameSite(p.SameSite),
	}
	if ttl > 0 {
		c.Expires = time.Now().UTC().Add(ttl)
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

// Deletion devuelve la cookie que borra name en el browser.
func (p CookiePolicy) Deletion(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   secure,
		HttpOnly: true,
		SameSite: ParseSameSite(p.SameSite),
	}
}
