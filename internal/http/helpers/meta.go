package helpers

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/dropDatabas3/cinelog/internal/auth"
)

// CookieNames son los nombres configurados de las tres cookies de auth.
type CookieNames struct {
	Session string
	Bearer  string
	Device  string
}

// Proxies decide cuándo creerle a X-Forwarded-For / X-Forwarded-Proto.
// Un *Proxies nil no confía en nadie.
type Proxies struct {
	prefixes []netip.Prefix
	// PublicHTTPS marca todas las requests como seguras (TLS terminado afuera).
	PublicHTTPS bool
}

// ParseProxies acepta IPs sueltas o CIDRs.
func ParseProxies(entries []string, publicHTTPS bool) (*Proxies, error) {
	p := &Proxies{PublicHTTPS: publicHTTPS}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			pfx, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			p.prefixes = append(p.prefixes, pfx.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		p.prefixes = append(p.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return p, nil
}

func (p *Proxies) trusted(ip string) bool {
	if p == nil || len(p.prefixes) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, pfx := range p.prefixes {
		if pfx.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// ClientIP retorna la IP del cliente. X-Forwarded-For solo se recorre si el peer
// directo es un proxy de confianza; se toma el primer salto (de derecha a izquierda)
// que no sea proxy.
func (p *Proxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !p.trusted(peer) {
		return peer
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer
	}
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !p.trusted(hop) {
			return hop
		}
	}
	return strings.TrimSpace(hops[0])
}

// IsHTTPS detecta si el request llegó por HTTPS (directo o detrás de proxy confiable).
func (p *Proxies) IsHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if p == nil {
		return false
	}
	if p.PublicHTTPS {
		return true
	}
	return p.trusted(remoteHost(r)) && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// BearerToken lee "Authorization: Bearer x" y si no está, la cookie bearer.
func BearerToken(r *http.Request, cookieName string) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return cookieValue(r, cookieName)
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// RequestMetaFrom arma el auth.RequestMeta de un request.
func RequestMetaFrom(r *http.Request, names CookieNames, proxies *Proxies) auth.RequestMeta {
	return auth.RequestMeta{
		IP:          proxies.ClientIP(r),
		UserAgent:   r.UserAgent(),
		Secure:      proxies.IsHTTPS(r),
		BearerToken: BearerToken(r, names.Bearer),
		DeviceToken: cookieValue(r, names.Device),
		SessionID:   cookieValue(r, names.Session),
	}
}

// ApplyEffects vuelca cookies y headers pedidos por la capa de servicio.
// Se llama antes de escribir el status.
func ApplyEffects(w http.ResponseWriter, eff auth.Effects) {
	for _, c := range eff.SetCookies {
		http.SetCookie(w, c)
	}
	for k, vs := range eff.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
}
