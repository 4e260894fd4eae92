package rls

import (
	"testing"

	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := metastore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store)
}

func TestUpsertRejectsInvalidPredicate(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Upsert("", "accounts", "broken", []byte(`{"bogus":{"column":"x","literal":1}}`))
	assert.Error(t, err)
}

func TestUpsertAndDelete(t *testing.T) {
	e := newTestEngine(t)

	policy, err := e.Upsert("", "accounts", "tenant-isolation", []byte(`{"eq":{"column":"tenant","claim":"scope"}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, policy.ID)

	policies, err := e.PoliciesForTable("accounts")
	require.NoError(t, err)
	require.Len(t, policies, 1)

	require.NoError(t, e.Delete(policy.ID))
	policies, err = e.PoliciesForTable("accounts")
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestRowAllowedAdminBypassesPolicies(t *testing.T) {
	policies := []*types.RLSPolicy{
		{ID: "p1", Predicate: []byte(`{"eq":{"column":"tenant","literal":"acme"}}`)},
	}
	row := types.Row{"tenant": types.StringValue("globex")}

	assert.True(t, RowAllowed(policies, types.TokenClaims{Scope: "admin"}, row, "accounts"))
	assert.False(t, RowAllowed(policies, types.TokenClaims{Scope: "acme"}, row, "accounts"))
}

func TestRowAllowedNoPoliciesAllowsAll(t *testing.T) {
	row := types.Row{"tenant": types.StringValue("globex")}
	assert.True(t, RowAllowed(nil, types.TokenClaims{Scope: "acme"}, row, "accounts"))
}

func TestRowAllowedDisjunctiveAcrossPolicies(t *testing.T) {
	policies := []*types.RLSPolicy{
		{ID: "p1", Predicate: []byte(`{"eq":{"column":"tenant","literal":"acme"}}`)},
		{ID: "p2", Predicate: []byte(`{"eq":{"column":"tenant","literal":"globex"}}`)},
	}
	acme := types.Row{"tenant": types.StringValue("acme")}
	other := types.Row{"tenant": types.StringValue("initech")}

	assert.True(t, RowAllowed(policies, types.TokenClaims{Scope: "acme"}, acme, "accounts"))
	assert.False(t, RowAllowed(policies, types.TokenClaims{Scope: "acme"}, other, "accounts"))
}

func TestRowAllowedSkipsMalformedPolicy(t *testing.T) {
	policies := []*types.RLSPolicy{
		{ID: "broken", Predicate: []byte(`not json`)},
		{ID: "ok", Predicate: []byte(`{"eq":{"column":"tenant","literal":"acme"}}`)},
	}
	row := types.Row{"tenant": types.StringValue("acme")}
	assert.True(t, RowAllowed(policies, types.TokenClaims{Scope: "acme"}, row, "accounts"))
}
