package recovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/store/adapters/memory"
)

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func setup(t *testing.T) (*Manager, *memory.DB, string) {
	t.Helper()
	db := memory.New()
	u, err := db.Users().Create(context.Background(), repository.CreateUserInput{Email: "a@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	m := NewManager(db.RecoveryCodes())
	m.Params = fastParams
	return m, db, u.ID
}

// seed guarda un código conocido, hasheado sobre su forma normalizada.
func seed(t *testing.T, db *memory.DB, userID, code string) {
	t.Helper()
	h, err := password.Hash(fastParams, Normalize(code))
	require.NoError(t, err)
	rc, err := repository.NewRecoveryCode(userID, h, time.Now())
	require.NoError(t, err)
	require.NoError(t, db.RecoveryCodes().ReplaceForUser(context.Background(), userID, []repository.RecoveryCode{rc}))
}

func TestNormalizeFormatValid(t *testing.T) {
	assert.Equal(t, "AB12CD34EF", Normalize("ab12-cd34-ef"))
	assert.Equal(t, "AB12CD34EF", Normalize(" AB12 CD34-EF "))
	assert.Equal(t, "AB12-CD34-EF", Format("AB12CD34EF"))
	assert.Equal(t, "SHORT", Format("SHORT"))
	assert.True(t, Valid("AB12CD34EF"))
	assert.False(t, Valid("AB12CD34E"))
	assert.False(t, Valid("AB12CD34E!"))
}

func TestGenerate(t *testing.T) {
	m, db, uid := setup(t)
	ctx := context.Background()

	first, err := m.Generate(ctx, uid)
	require.NoError(t, err)
	require.Len(t, first, CodeCount)

	seen := map[string]bool{}
	for _, c := range first {
		assert.Regexp(t, `^[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{2}$`, c)
		assert.NotContains(t, c, "0")
		assert.NotContains(t, c, "O")
		assert.NotContains(t, c, "1")
		assert.NotContains(t, c, "I")
		seen[c] = true
	}
	assert.Len(t, seen, CodeCount)

	second, err := m.Generate(ctx, uid)
	require.NoError(t, err)

	rows, err := db.RecoveryCodes().ListByUser(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, rows, CodeCount, "regenerar deja exactamente 10 filas")

	ok, err := m.Verify(ctx, uid, first[0])
	require.NoError(t, err)
	assert.False(t, ok, "los códigos anteriores quedan invalidados")

	ok, err = m.Verify(ctx, uid, second[3])
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := m.Remaining(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, CodeCount-1, n)
}

func TestVerify_NoReplay(t *testing.T) {
	m, db, uid := setup(t)
	ctx := context.Background()
	seed(t, db, uid, "AB12-CD34-EF")

	ok, err := m.Verify(ctx, uid, "AB12-CD34-EF")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Verify(ctx, uid, "AB12CD34EF")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Verify(ctx, uid, "AB12-CD34-EF")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_LegacyDashedHash(t *testing.T) {
	m, db, uid := setup(t)
	h, err := password.Hash(fastParams, "QWER-TYUP-AS")
	require.NoError(t, err)
	rc, err := repository.NewRecoveryCode(uid, h, time.Now())
	require.NoError(t, err)
	require.NoError(t, db.RecoveryCodes().ReplaceForUser(context.Background(), uid, []repository.RecoveryCode{rc}))

	ok, err := m.Verify(context.Background(), uid, "qwertyupas")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_NoCodes(t *testing.T) {
	m, _, uid := setup(t)
	ok, err := m.Verify(context.Background(), uid, "AB12-CD34-EF")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Verify(context.Background(), uid, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_ConcurrentSingleSuccess(t *testing.T) {
	m, db, uid := setup(t)
	seed(t, db, uid, "ZXCV-BNMK-LP")

	const workers = 8
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := m.Verify(context.Background(), uid, "ZXCV-BNMK-LP")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestDeleteAll(t *testing.T) {
	m, _, uid := setup(t)
	_, err := m.Generate(context.Background(), uid)
	require.NoError(t, err)
	require.NoError(t, m.DeleteAll(context.Background(), uid))
	n, err := m.Remaining(context.Background(), uid)
	require.NoError(t, err)
	assert.Zero(t, n)
}
