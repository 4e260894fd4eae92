package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (id, name) VALUES (1, 'ada')")
	require.NoError(t, err)
	ins, ok := stmt.(*InsertStatement)
	require.True(t, ok)
	assert.Equal(t, "users", ins.Table)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	require.Len(t, ins.Rows, 1)
	assert.Len(t, ins.Rows[0], 2)
}

func TestParseInsertMultiRow(t *testing.T) {
	stmt, err := Parse("INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace')")
	require.NoError(t, err)
	ins, ok := stmt.(*InsertStatement)
	require.True(t, ok)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, int64(1), ins.Rows[0][0].Int)
	assert.Equal(t, int64(2), ins.Rows[1][0].Int)
}

func TestParseSelectWithAndOr(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users WHERE age > 18 AND (status = 'active' OR status = 'pending')")
	require.NoError(t, err)
	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok)
	require.NotNil(t, sel.Filter)
	require.NotNil(t, sel.Filter.And)
}

func TestParseCountStar(t *testing.T) {
	stmt, err := Parse("SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok)
	assert.Equal(t, CountStar, sel.Aggregate)
}

func TestParseRejectsUnsupportedNot(t *testing.T) {
	_, err := Parse("SELECT * FROM users WHERE NOT active = true")
	assert.Error(t, err)
}

func TestParseUpdateAndDelete(t *testing.T) {
	stmt, err := Parse("UPDATE users SET active = false WHERE id = 1")
	require.NoError(t, err)
	upd, ok := stmt.(*UpdateStatement)
	require.True(t, ok)
	assert.Equal(t, "users", upd.Table)
	assert.Len(t, upd.Assignments, 1)

	stmt, err = Parse("DELETE FROM users WHERE id = 1")
	require.NoError(t, err)
	del, ok := stmt.(*DeleteStatement)
	require.True(t, ok)
	assert.Equal(t, "users", del.Table)
}
