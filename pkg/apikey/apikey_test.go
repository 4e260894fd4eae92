package apikey

import (
	"testing"
	"time"

	"github.com/cuemby/cave/pkg/metastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := metastore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store)
}

func TestIssueAndVerify(t *testing.T) {
	m := newTestManager(t)

	token, key, err := m.Issue("admin", "", 0, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "admin", key.Scope)

	verified, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, key.ID, verified.ID)
	assert.False(t, verified.LastUsedAt.IsZero())
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.Issue("admin", "", 0, time.Time{})
	require.NoError(t, err)

	_, err = m.Verify("cave_not-a-real-token-xxxxxxxxxx")
	assert.Error(t, err)
}

func TestVerifyRejectsRevokedKey(t *testing.T) {
	m := newTestManager(t)

	token, key, err := m.Issue("admin", "", 0, time.Time{})
	require.NoError(t, err)

	require.NoError(t, m.Revoke(key.ID))

	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredKey(t *testing.T) {
	m := newTestManager(t)

	token, _, err := m.Issue("admin", "", 0, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestClaimsForKey(t *testing.T) {
	m := newTestManager(t)

	_, key, err := m.Issue("namespace:acme", "acme-corp", 0, time.Time{})
	require.NoError(t, err)

	claims := ClaimsForKey(key)
	assert.Equal(t, key.ID, claims.Subject)
	assert.Equal(t, "namespace:acme", claims.Scope)
}
