package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/auth"
)

var names = CookieNames{Session: "sid", Bearer: "tok", Device: "dev"}

func TestClientIP(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.0/8", "192.168.1.1"}, false)
	require.NoError(t, err)

	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5555", "", "203.0.113.7"},
		{"untrusted peer ignores xff", "203.0.113.7:5555", "1.1.1.1", "203.0.113.7"},
		{"trusted peer", "10.1.2.3:80", "198.51.100.4", "198.51.100.4"},
		{"skips trusted hops", "10.1.2.3:80", "198.51.100.4, 192.168.1.1, 10.9.9.9", "198.51.100.4"},
		{"spoofed left hop", "10.1.2.3:80", "6.6.6.6, 198.51.100.4", "198.51.100.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, proxies.ClientIP(r))
		})
	}
}

func TestParseProxies_Invalid(t *testing.T) {
	_, err := ParseProxies([]string{"not-an-ip"}, false)
	assert.Error(t, err)
}

func TestIsHTTPS(t *testing.T) {
	trusted, err := ParseProxies([]string{"10.0.0.1"}, false)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, trusted.IsHTTPS(r))

	r.RemoteAddr = "203.0.113.1:1234"
	assert.False(t, trusted.IsHTTPS(r))

	var none *Proxies
	assert.False(t, none.IsHTTPS(r))

	public, err := ParseProxies(nil, true)
	require.NoError(t, err)
	assert.True(t, public.IsHTTPS(r))
}

func TestRequestMetaFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:4000"
	r.Header.Set("User-Agent", "curl/8.0")
	r.AddCookie(&http.Cookie{Name: "sid", Value: "s1"})
	r.AddCookie(&http.Cookie{Name: "tok", Value: "cookie-token"})
	r.AddCookie(&http.Cookie{Name: "dev", Value: "d1"})

	meta := RequestMetaFrom(r, names, nil)
	assert.Equal(t, auth.RequestMeta{
		IP:          "203.0.113.9",
		UserAgent:   "curl/8.0",
		BearerToken: "cookie-token",
		DeviceToken: "d1",
		SessionID:   "s1",
	}, meta)

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", RequestMetaFrom(r, names, nil).BearerToken)
}

func TestReadJSON(t *testing.T) {
	var v struct {
		A string `json:"a"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"x","extra":1}`))
	r.Header.Set("Content-Type", "application/json")
	require.True(t, ReadJSON(httptest.NewRecorder(), r, &v))
	assert.Equal(t, "x", v.A)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`a=x`))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	assert.False(t, ReadJSON(rec, r, &v))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	r.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	assert.False(t, ReadJSON(rec, r, &v))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyEffects(t *testing.T) {
	rec := httptest.NewRecorder()
	ApplyEffects(rec, auth.Effects{
		SetCookies: []*http.Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}},
		Headers:    http.Header{"X-Test": []string{"y"}},
	})
	assert.Len(t, rec.Result().Cookies(), 2)
	assert.Equal(t, "y", rec.Header().Get("X-Test"))
}
