package totp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	k, err := Generate("cinelog", "a@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, k.Secret)
	assert.True(t, strings.HasPrefix(k.URL, "otpauth://totp/"))
	assert.Contains(t, k.URL, "secret="+k.Secret)
	assert.Contains(t, k.URL, "issuer=cinelog")
}

func TestValidate_Window(t *testing.T) {
	k, err := Generate("cinelog", "a@example.com")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	code, err := Code(k.Secret, now)
	require.NoError(t, err)
	require.Len(t, code, 6)

	assert.True(t, Validate(k.Secret, code, now))
	assert.True(t, Validate(k.Secret, code[:3]+" "+code[3:], now))
	assert.True(t, Validate(k.Secret, code, now.Add(30*time.Second)), "+1 step")
	assert.True(t, Validate(k.Secret, code, now.Add(-30*time.Second)), "-1 step")
	assert.False(t, Validate(k.Secret, code, now.Add(2*time.Minute)), "outside window")
}

func TestValidate_Malformed(t *testing.T) {
	k, _ := Generate("cinelog", "a@example.com")
	now := time.Now()
	assert.False(t, Validate(k.Secret, "", now))
	assert.False(t, Validate(k.Secret, "12345", now))
	assert.False(t, Validate(k.Secret, "1234567", now))
	assert.False(t, Validate("not-base32!", "123456", now))
}
