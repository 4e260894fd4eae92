package metastore

import (
	"testing"
	"time"

	"github.com/cuemby/cave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetSandbox(t *testing.T) {
	store := newTestStore(t)

	sb := &types.Sandbox{ID: "sb-1", Namespace: "default", Name: "demo", Status: types.SandboxProvisioned}
	require.NoError(t, store.CreateSandbox(sb))

	got, err := store.GetSandbox("sb-1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)

	byName, err := store.GetSandboxByName("default", "demo")
	require.NoError(t, err)
	assert.Equal(t, "sb-1", byName.ID)
}

func TestCreateSandboxRejectsDuplicateName(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateSandbox(&types.Sandbox{ID: "sb-1", Namespace: "default", Name: "demo", Status: types.SandboxProvisioned}))
	err := store.CreateSandbox(&types.Sandbox{ID: "sb-2", Namespace: "default", Name: "demo", Status: types.SandboxProvisioned})
	assert.Error(t, err)
}

func TestDeleteSandboxCascadesExecutions(t *testing.T) {
	store := newTestStore(t)

	sb := &types.Sandbox{ID: "sb-1", Namespace: "default", Name: "demo", Status: types.SandboxProvisioned}
	require.NoError(t, store.CreateSandbox(sb))
	require.NoError(t, store.AppendExecution(&types.Execution{ID: "ex-1", SandboxID: "sb-1", Command: "echo"}))
	require.NoError(t, store.AppendExecution(&types.Execution{ID: "ex-2", SandboxID: "sb-1", Command: "echo"}))

	require.NoError(t, store.DeleteSandbox("sb-1"))

	_, err := store.GetSandbox("sb-1")
	assert.Error(t, err)

	execs, err := store.RecentExecutions("sb-1", 0)
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestRecentExecutionsOrderedAndLimited(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC()
	require.NoError(t, store.CreateSandbox(&types.Sandbox{ID: "sb-1", Namespace: "default", Name: "demo", Status: types.SandboxProvisioned}))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendExecution(&types.Execution{
			ID:        string(rune('a' + i)),
			SandboxID: "sb-1",
			Command:   "echo",
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	execs, err := store.RecentExecutions("sb-1", 2)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.True(t, execs[0].StartedAt.After(execs[1].StartedAt))
}

func TestPoliciesForTable(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertPolicy(&types.RLSPolicy{ID: "p1", Table: "accounts", Name: "tenant"}))
	require.NoError(t, store.UpsertPolicy(&types.RLSPolicy{ID: "p2", Table: "other", Name: "other"}))

	policies, err := store.PoliciesForTable("accounts")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "p1", policies[0].ID)

	require.NoError(t, store.DeletePolicy("p1"))
	policies, err = store.PoliciesForTable("accounts")
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestAPIKeyCreateUpdateAndListByPrefix(t *testing.T) {
	store := newTestStore(t)

	key := &types.APIKey{ID: "k1", Prefix: "abcd1234", Scope: "admin"}
	require.NoError(t, store.CreateAPIKey(key))

	byPrefix, err := store.ListAPIKeysByPrefix("abcd1234")
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)

	key.Scope = "namespace:acme"
	require.NoError(t, store.UpdateAPIKey(key))

	got, err := store.GetAPIKey("k1")
	require.NoError(t, err)
	assert.Equal(t, "namespace:acme", got.Scope)
}
