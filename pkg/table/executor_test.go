package table

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/realtime"
	"github.com/cuemby/cave/pkg/rls"
	"github.com/cuemby/cave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noPolicies struct{}

func (noPolicies) PoliciesForTable(string) ([]*types.RLSPolicy, error) { return nil, nil }

func newTestExecutor(t *testing.T) (*Executor, *Engine) {
	t.Helper()
	engine, err := Open(filepath.Join(t.TempDir(), "test.wal"))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return NewExecutor(engine, noPolicies{}, realtime.NewHub()), engine
}

func mustPlan(t *testing.T, sql string) *LogicalPlan {
	t.Helper()
	stmt, err := Parse(sql)
	require.NoError(t, err)
	plan, err := Plan(stmt)
	require.NoError(t, err)
	return plan
}

func TestInsertSelectUpdateDelete(t *testing.T) {
	exec, _ := newTestExecutor(t)
	claims := types.TokenClaims{Subject: "user-1", Scope: "admin"}

	_, err := exec.Execute(mustPlan(t, "INSERT INTO tasks (id, status) VALUES (1, 'open')"), claims)
	require.NoError(t, err)
	_, err = exec.Execute(mustPlan(t, "INSERT INTO tasks (id, status) VALUES (2, 'open')"), claims)
	require.NoError(t, err)

	result, err := exec.Execute(mustPlan(t, "SELECT * FROM tasks WHERE status = 'open'"), claims)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.RowsAffected)

	result, err = exec.Execute(mustPlan(t, "UPDATE tasks SET status = 'closed' WHERE id = 1"), claims)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.RowsAffected)

	result, err = exec.Execute(mustPlan(t, "SELECT * FROM tasks WHERE status = 'closed'"), claims)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.RowsAffected)

	result, err = exec.Execute(mustPlan(t, "DELETE FROM tasks WHERE id = 2"), claims)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.RowsAffected)

	result, err = exec.Execute(mustPlan(t, "SELECT COUNT(*) FROM tasks"), claims)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(1), result.Rows[0]["count"].Int)
}

func TestWALRecoveryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover.wal")

	engine, err := Open(path)
	require.NoError(t, err)
	exec := NewExecutor(engine, noPolicies{}, realtime.NewHub())
	claims := types.TokenClaims{Scope: "admin"}

	_, err = exec.Execute(mustPlan(t, "INSERT INTO notes (id, body) VALUES (1, 'hello')"), claims)
	require.NoError(t, err)
	_, err = exec.Execute(mustPlan(t, "INSERT INTO notes (id, body) VALUES (2, 'world')"), claims)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	exec2 := NewExecutor(reopened, noPolicies{}, realtime.NewHub())
	result, err := exec2.Execute(mustPlan(t, "SELECT * FROM notes"), claims)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.RowsAffected)
}

func TestRLSNamespaceIsolation(t *testing.T) {
	store, err := metastore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	policyEngine := rls.NewEngine(store)
	_, err = policyEngine.Upsert("", "accounts", "tenant-isolation",
		[]byte(`{"eq":{"column":"tenant","claim":"scope"}}`))
	require.NoError(t, err)

	engine, err := Open(filepath.Join(t.TempDir(), "accounts.wal"))
	require.NoError(t, err)
	defer engine.Close()

	exec := NewExecutor(engine, policyEngine, realtime.NewHub())
	adminClaims := types.TokenClaims{Scope: "admin"}

	_, err = exec.Execute(mustPlan(t, "INSERT INTO accounts (tenant, name) VALUES ('acme', 'root')"), adminClaims)
	require.NoError(t, err)
	_, err = exec.Execute(mustPlan(t, "INSERT INTO accounts (tenant, name) VALUES ('globex', 'root')"), adminClaims)
	require.NoError(t, err)

	acmeClaims := types.TokenClaims{Subject: "alice", Scope: "acme"}
	result, err := exec.Execute(mustPlan(t, "SELECT * FROM accounts"), acmeClaims)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "acme", result.Rows[0]["tenant"].Str)

	globexClaims := types.TokenClaims{Subject: "bob", Scope: "globex"}
	result, err = exec.Execute(mustPlan(t, "SELECT * FROM accounts"), globexClaims)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "globex", result.Rows[0]["tenant"].Str)
}
