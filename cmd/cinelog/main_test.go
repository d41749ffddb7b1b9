package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/app"
	"github.com/dropDatabas3/cinelog/internal/audit"
	"github.com/dropDatabas3/cinelog/internal/config"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CINELOG_APP_ENV", "test")
	t.Setenv("CINELOG_LOG_LEVEL", "error")
	t.Setenv("CINELOG_STORAGE_DRIVER", "sqlite")
	t.Setenv("CINELOG_STORAGE_DSN", filepath.Join(t.TempDir(), "cli.db"))
}

func TestKeysSecretbox(t *testing.T) {
	t.Setenv("CINELOG_STORAGE_DRIVER", "memory")
	out, err := execute(t, "", "keys", "secretbox")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestUserCreateAndRecovery(t *testing.T) {
	sqliteEnv(t)

	_, err := execute(t, "", "migrate")
	require.NoError(t, err)

	out, err := execute(t, "correct horse battery\n", "--out", "json", "user", "create", "--email", " Ana@Example.com ")
	require.NoError(t, err)
	var created struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ana@example.com", created.Email)

	_, err = execute(t, "correct horse battery\n", "user", "create", "--email", "ana@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ya existe")

	// sin TOTP no hay recovery codes
	_, err = execute(t, "", "recovery", "generate", "--user", created.ID)
	require.Error(t, err)

	out, err = execute(t, "", "devices", "revoke-all", "--user", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "0 dispositivos revocados")
}

func TestAuditPurge(t *testing.T) {
	sqliteEnv(t)
	_, err := execute(t, "", "migrate")
	require.NoError(t, err)

	out, err := execute(t, "correct horse battery\n", "--out", "json", "user", "create", "--email", "eva@example.com")
	require.NoError(t, err)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))

	ctx := context.Background()
	cfg, err := config.Load("")
	require.NoError(t, err)
	ct, err := app.Build(ctx, cfg, app.Options{StoreOnly: true, SkipMigrate: true})
	require.NoError(t, err)
	ct.Audit.Log(ctx, audit.Entry{UserID: created.ID, Type: repository.EventLogout, IP: "192.0.2.1"})
	require.NoError(t, ct.Close())

	out, err = execute(t, "", "audit", "tail", "--user", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "logout")

	out, err = execute(t, "", "audit", "purge", "--user", created.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "1 eventos borrados")

	out, err = execute(t, "", "audit", "tail", "--user", created.ID)
	require.NoError(t, err)
	assert.NotContains(t, out, "logout")
}

func TestUserCreateWeakPassword(t *testing.T) {
	sqliteEnv(t)
	_, err := execute(t, "", "migrate")
	require.NoError(t, err)

	_, err = execute(t, "short\n", "user", "create", "--email", "bob@example.com")
	require.Error(t, err)
}

func TestRequiredFlags(t *testing.T) {
	t.Setenv("CINELOG_STORAGE_DRIVER", "memory")
	for _, args := range [][]string{
		{"audit", "tail"},
		{"audit", "prune", "--days", "0"},
		{"audit", "purge"},
		{"devices", "revoke-all"},
		{"recovery", "generate"},
		{"user", "create"},
	} {
		_, err := execute(t, "", args...)
		assert.Error(t, err, strings.Join(args, " "))
	}
}
