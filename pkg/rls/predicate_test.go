package rls

import (
	"testing"

	"github.com/cuemby/cave/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateClaimComparison(t *testing.T) {
	raw := []byte(`{"eq":{"column":"tenant","claim":"scope"}}`)
	p, err := Parse(raw)
	require.NoError(t, err)

	claims := types.TokenClaims{Scope: "acme"}
	row := types.Row{"tenant": types.StringValue("acme")}
	assert.True(t, p.Evaluate(claims, row))

	row["tenant"] = types.StringValue("other")
	assert.False(t, p.Evaluate(claims, row))
}

func TestEvaluateFailsClosedOnMissingColumn(t *testing.T) {
	raw := []byte(`{"eq":{"column":"missing","literal":"x"}}`)
	p, err := Parse(raw)
	require.NoError(t, err)

	assert.False(t, p.Evaluate(types.TokenClaims{}, types.Row{}))
}

func TestEvaluateNoCrossTypeCoercion(t *testing.T) {
	raw := []byte(`{"eq":{"column":"amount","literal":5.0}}`)
	p, err := Parse(raw)
	require.NoError(t, err)

	row := types.Row{"amount": types.IntValue(5)}
	assert.False(t, p.Evaluate(types.TokenClaims{}, row))
}

func TestEvaluateAndOr(t *testing.T) {
	raw := []byte(`{"and":[
		{"eq":{"column":"tenant","claim":"scope"}},
		{"or":[
			{"eq":{"column":"status","literal":"open"}},
			{"eq":{"column":"status","literal":"pending"}}
		]}
	]}`)
	p, err := Parse(raw)
	require.NoError(t, err)

	claims := types.TokenClaims{Scope: "acme"}
	row := types.Row{"tenant": types.StringValue("acme"), "status": types.StringValue("pending")}
	assert.True(t, p.Evaluate(claims, row))

	row["status"] = types.StringValue("closed")
	assert.False(t, p.Evaluate(claims, row))
}

func TestParseNamespaceIsolationPredicate(t *testing.T) {
	raw := []byte(`{"eq":{"column":"namespace","claim":"scope"}}`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, OpEq, p.Op)
	assert.Equal(t, "namespace", p.Column)
	assert.Equal(t, "scope", p.Claim)
}

func TestParseRejectsUnknownOperator(t *testing.T) {
	_, err := Parse([]byte(`{"bogus":{"column":"x","literal":1}}`))
	assert.Error(t, err)
}
