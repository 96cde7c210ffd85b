package apikeys

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashKey(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func keyRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"key_id", "api_key_hash", "expires_at"})
}

func TestVerifyLegacyKey(t *testing.T) {
	v := NewVerifier([]string{" legacy-1 ", ""}, nil)
	assert.True(t, v.Enabled())

	id, err := v.Verify(context.Background(), "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, Identity{TenantID: DefaultTenant, Legacy: true}, id)

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingKey)
	_, err = v.Verify(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = v.Verify(context.Background(), "sk-acme-secret")
	assert.ErrorIs(t, err, ErrInvalidKey, "tenant keys need a store")
}

func TestVerifyDisabled(t *testing.T) {
	assert.False(t, NewVerifier(nil, nil).Enabled())
	var v *Verifier
	assert.False(t, v.Enabled())
}

func TestTenantOf(t *testing.T) {
	cases := map[string]struct {
		tenant string
		ok     bool
	}{
		"sk-acme-abc123":     {"acme", true},
		"sk-acme-abc-def":    {"acme", true},
		"sk-acme":            {"", false},
		"sk--abc":            {"", false},
		"sk-acme-":           {"", false},
		"pk-acme-abc":        {"", false},
		"plain-legacy-token": {"", false},
	}
	for token, want := range cases {
		tenant, ok := tenantOf(token)
		assert.Equal(t, want.ok, ok, token)
		assert.Equal(t, want.tenant, tenant, token)
	}
}

func TestPGStoreLookup(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	token := "sk-acme-s3cret"
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WithArgs("sk-acme").
		WillReturnRows(keyRows().
			AddRow("k-old", hashKey(t, token), &past).
			AddRow("k-other", hashKey(t, "sk-acme-different"), &future).
			AddRow("k-live", hashKey(t, token), &future))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET last_used_at")).
		WithArgs("k-live").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewPGStoreWithPool(nil, mock)
	id, err := store.Lookup(context.Background(), "acme", token)
	require.NoError(t, err)
	assert.Equal(t, Identity{TenantID: "acme", KeyID: "k-live"}, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreLookupNoMatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	future := time.Now().Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WithArgs("sk-acme").
		WillReturnRows(keyRows().AddRow("k1", hashKey(t, "sk-acme-other"), &future))

	_, err = NewPGStoreWithPool(nil, mock).Lookup(context.Background(), "acme", "sk-acme-guess")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreLookupTouchFailureStillAuthenticates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	token := "sk-acme-s3cret"
	future := time.Now().Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WithArgs("sk-acme").
		WillReturnRows(keyRows().AddRow("k1", hashKey(t, token), &future))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys")).
		WithArgs("k1").
		WillReturnError(errors.New("read-only replica"))

	id, err := NewPGStoreWithPool(nil, mock).Lookup(context.Background(), "acme", token)
	require.NoError(t, err)
	assert.Equal(t, "acme", id.TenantID)
}

func TestPGStoreQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_keys k")).
		WithArgs("sk-acme").
		WillReturnError(errors.New("connection refused"))

	_, err = NewPGStoreWithPool(nil, mock).Lookup(context.Background(), "acme", "sk-acme-x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidKey)
}

type countingStore struct {
	calls int
	id    Identity
	err   error
}

func (s *countingStore) Lookup(ctx context.Context, tenantID, token string) (Identity, error) {
	s.calls++
	return s.id, s.err
}

func TestVerifierCachesTenantKeys(t *testing.T) {
	store := &countingStore{id: Identity{TenantID: "acme", KeyID: "k1"}}
	v := NewVerifier(nil, store)
	now := time.Now()
	v.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		id, err := v.Verify(context.Background(), "sk-acme-s3cret")
		require.NoError(t, err)
		assert.Equal(t, "acme", id.TenantID)
	}
	assert.Equal(t, 1, store.calls)

	now = now.Add(2 * time.Minute)
	_, err := v.Verify(context.Background(), "sk-acme-s3cret")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls, "expired cache entries are looked up again")
}

func TestVerifierDoesNotCacheFailures(t *testing.T) {
	store := &countingStore{err: ErrInvalidKey}
	v := NewVerifier(nil, store)

	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), "sk-acme-wrong")
		assert.ErrorIs(t, err, ErrInvalidKey)
	}
	assert.Equal(t, 2, store.calls)
}
