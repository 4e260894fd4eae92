package rls

import (
	"time"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/log"
	"github.com/cuemby/cave/pkg/metastore"
	"github.com/cuemby/cave/pkg/metrics"
	"github.com/cuemby/cave/pkg/types"
	"github.com/google/uuid"
)

// Engine evaluates a table's RLS policies against rows and manages their
// CRUD lifecycle against the metadata store.
type Engine struct {
	store *metastore.Store
}

func NewEngine(store *metastore.Store) *Engine {
	return &Engine{store: store}
}

// PoliciesForTable returns every policy attached to table.
func (e *Engine) PoliciesForTable(table string) ([]*types.RLSPolicy, error) {
	return e.store.PoliciesForTable(table)
}

// Upsert creates or replaces a named policy for table with the given
// predicate tree (raw JSON, validated by parsing it before it is stored).
func (e *Engine) Upsert(id, table, name string, predicate []byte) (*types.RLSPolicy, error) {
	if _, err := Parse(predicate); err != nil {
		return nil, caveerr.NewInvalidArgument("rls.Upsert", err)
	}

	if id == "" {
		id = uuid.NewString()
	}
	policy := &types.RLSPolicy{
		ID:        id,
		Table:     table,
		Name:      name,
		Predicate: predicate,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.UpsertPolicy(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// Delete removes a policy by ID.
func (e *Engine) Delete(id string) error {
	return e.store.DeletePolicy(id)
}

// RowAllowed reports whether row is visible to claims under policies.
// With no policies attached to the table, every row is allowed; with one
// or more policies, the row is allowed if at least one policy's
// predicate evaluates true ("any policy allows" composition). table is
// used only to label the evaluation metric.
func RowAllowed(policies []*types.RLSPolicy, claims types.TokenClaims, row types.Row, table string) bool {
	allowed := rowAllowed(policies, claims, row)
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	metrics.RLSEvaluationsTotal.WithLabelValues(table, outcome).Inc()
	return allowed
}

func rowAllowed(policies []*types.RLSPolicy, claims types.TokenClaims, row types.Row) bool {
	if claims.Scope == "admin" {
		return true
	}
	if len(policies) == 0 {
		return true
	}
	for _, policy := range policies {
		predicate, err := Parse(policy.Predicate)
		if err != nil {
			log.WithComponent("rls").Warn().Str("policy_id", policy.ID).
				Msg("skipping malformed policy predicate")
			continue
		}
		if predicate.Evaluate(claims, row) {
			return true
		}
	}
	return false
}
