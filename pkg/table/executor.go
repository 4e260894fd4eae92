package table

import (
	"fmt"
	"time"

	"github.com/cuemby/cave/internal/caveerr"
	"github.com/cuemby/cave/pkg/metrics"
	"github.com/cuemby/cave/pkg/realtime"
	"github.com/cuemby/cave/pkg/rls"
	"github.com/cuemby/cave/pkg/types"
)

// Result is the outcome of executing one logical plan.
type Result struct {
	RowsAffected uint64
	Rows         []types.Row
}

// PolicyLookup resolves the RLS policies currently attached to a table.
// Implemented by *rls.Engine; an interface here keeps the table package
// free of a hard dependency on how policies are persisted.
type PolicyLookup interface {
	PoliciesForTable(table string) ([]*types.RLSPolicy, error)
}

// Executor runs logical plans against an Engine's tables, enforcing RLS
// and publishing change events for every row a mutating plan commits.
type Executor struct {
	engine   *Engine
	policies PolicyLookup
	hub      *realtime.Hub
}

func NewExecutor(engine *Engine, policies PolicyLookup, hub *realtime.Hub) *Executor {
	return &Executor{engine: engine, policies: policies, hub: hub}
}

// Execute runs plan on behalf of claims.
func (x *Executor) Execute(plan *LogicalPlan, claims types.TokenClaims) (Result, error) {
	op := "unknown"
	switch {
	case plan.Insert != nil:
		op = "insert"
	case plan.Select != nil:
		op = "select"
	case plan.Update != nil:
		op = "update"
	case plan.Delete != nil:
		op = "delete"
	}

	timer := metrics.NewTimer()
	result, err := x.execute(plan, claims)
	timer.ObserveDurationVec(metrics.QueryDuration, op)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.QueriesTotal.WithLabelValues(op, status).Inc()

	return result, err
}

func (x *Executor) execute(plan *LogicalPlan, claims types.TokenClaims) (Result, error) {
	switch {
	case plan.Insert != nil:
		return x.executeInsert(plan.Insert, claims)
	case plan.Select != nil:
		return x.executeSelect(plan.Select, claims)
	case plan.Update != nil:
		return x.executeUpdate(plan.Update, claims)
	case plan.Delete != nil:
		return x.executeDelete(plan.Delete, claims)
	default:
		return Result{}, caveerr.NewInvalidArgument("table.Execute", fmt.Errorf("empty logical plan"))
	}
}

func (x *Executor) policiesFor(table string) ([]*types.RLSPolicy, error) {
	policies, err := x.policies.PoliciesForTable(table)
	if err != nil {
		return nil, caveerr.NewStorageFailure("table.Execute", err)
	}
	return policies, nil
}

// executeInsert inserts every row tuple from the statement's VALUES
// list. Per P2, a multi-row INSERT is all-or-nothing: every row is
// checked against RLS before any row is appended or logged, so a single
// rejected row fails the whole statement without persisting any of it.
func (x *Executor) executeInsert(plan *InsertPlan, claims types.TokenClaims) (Result, error) {
	if len(plan.Rows) == 0 {
		return Result{}, nil
	}

	policies, err := x.policiesFor(plan.Table)
	if err != nil {
		return Result{}, err
	}

	x.engine.mu.Lock()
	defer x.engine.mu.Unlock()

	data, ok := x.engine.tables[plan.Table]
	if !ok {
		data = &tableData{}
		x.engine.tables[plan.Table] = data
	}

	if len(data.columns) == 0 {
		if len(plan.Columns) > 0 {
			data.columns = plan.Columns
		} else {
			data.columns = make([]string, len(plan.Rows[0]))
			for i := range plan.Rows[0] {
				data.columns[i] = fmt.Sprintf("col%d", i)
			}
		}
	} else if len(plan.Columns) > 0 && !stringSlicesEqual(data.columns, plan.Columns) {
		return Result{}, caveerr.NewInvalidArgument("table.Insert",
			fmt.Errorf("column list does not match existing schema for table %q", plan.Table))
	}

	records := make([]types.Row, len(plan.Rows))
	for i, row := range plan.Rows {
		if len(row) != len(data.columns) {
			return Result{}, caveerr.NewInvalidArgument("table.Insert",
				fmt.Errorf("row length does not match table schema"))
		}
		record := rowToRecord(data.columns, row)
		if !rls.RowAllowed(policies, claims, record, plan.Table) {
			return Result{}, caveerr.NewUnauthorized("table.Insert",
				fmt.Errorf("row violates row-level security policy for table %q", plan.Table))
		}
		records[i] = record
	}

	for i, row := range plan.Rows {
		if err := x.engine.appendEntry(walEntry{
			Event:    walInsert,
			Table:    plan.Table,
			Columns:  data.columns,
			RowAfter: row,
		}); err != nil {
			return Result{}, err
		}
		data.rows = append(data.rows, row)
		x.publish(plan.Table, types.ChangeInsert, records[i])
	}

	return Result{RowsAffected: uint64(len(plan.Rows))}, nil
}

func (x *Executor) executeSelect(plan *SelectPlan, claims types.TokenClaims) (Result, error) {
	policies, err := x.policiesFor(plan.Table)
	if err != nil {
		return Result{}, err
	}

	x.engine.mu.RLock()
	defer x.engine.mu.RUnlock()

	data, ok := x.engine.tables[plan.Table]
	if !ok {
		return Result{}, caveerr.NewNotFound("table.Select", fmt.Errorf("table %q not found", plan.Table))
	}

	prepared, err := prepareFilter(data.columns, plan.Filter)
	if err != nil {
		return Result{}, caveerr.NewInvalidArgument("table.Select", err)
	}

	var matched []types.Row
	for _, row := range data.rows {
		record := rowToRecord(data.columns, row)
		ok, err := filterMatches(prepared, row)
		if err != nil {
			return Result{}, caveerr.NewInvalidArgument("table.Select", err)
		}
		if ok && rls.RowAllowed(policies, claims, record, plan.Table) {
			matched = append(matched, record)
		}
	}

	if plan.Aggregate == CountStar {
		return Result{
			RowsAffected: 1,
			Rows:         []types.Row{{"count": types.IntValue(int64(len(matched)))}},
		}, nil
	}

	return Result{RowsAffected: uint64(len(matched)), Rows: matched}, nil
}

func (x *Executor) executeUpdate(plan *UpdatePlan, claims types.TokenClaims) (Result, error) {
	policies, err := x.policiesFor(plan.Table)
	if err != nil {
		return Result{}, err
	}

	x.engine.mu.Lock()
	defer x.engine.mu.Unlock()

	data, ok := x.engine.tables[plan.Table]
	if !ok {
		return Result{}, caveerr.NewNotFound("table.Update", fmt.Errorf("table %q not found", plan.Table))
	}

	prepared, err := prepareFilter(data.columns, plan.Filter)
	if err != nil {
		return Result{}, caveerr.NewInvalidArgument("table.Update", err)
	}

	type indexedAssignment struct {
		index int
		value types.ScalarValue
	}
	assignments := make([]indexedAssignment, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		idx, err := findColumnIndex(data.columns, a.Column)
		if err != nil {
			return Result{}, caveerr.NewInvalidArgument("table.Update", err)
		}
		assignments = append(assignments, indexedAssignment{index: idx, value: a.Value})
	}

	var affected uint64
	for i, row := range data.rows {
		matches, err := filterMatches(prepared, row)
		if err != nil {
			return Result{}, caveerr.NewInvalidArgument("table.Update", err)
		}
		if !matches {
			continue
		}
		before := rowToRecord(data.columns, row)
		if !rls.RowAllowed(policies, claims, before, plan.Table) {
			continue
		}

		updated := append([]types.ScalarValue(nil), row...)
		for _, a := range assignments {
			updated[a.index] = a.value
		}
		after := rowToRecord(data.columns, updated)
		if !rls.RowAllowed(policies, claims, after, plan.Table) {
			return Result{}, caveerr.NewUnauthorized("table.Update",
				fmt.Errorf("row violates row-level security policy for table %q", plan.Table))
		}

		if err := x.engine.appendEntry(walEntry{
			Event:     walUpdate,
			Table:     plan.Table,
			Columns:   data.columns,
			RowBefore: row,
			RowAfter:  updated,
		}); err != nil {
			return Result{}, err
		}
		data.rows[i] = updated
		affected++
		x.publish(plan.Table, types.ChangeUpdate, after)
	}

	return Result{RowsAffected: affected}, nil
}

func (x *Executor) executeDelete(plan *DeletePlan, claims types.TokenClaims) (Result, error) {
	policies, err := x.policiesFor(plan.Table)
	if err != nil {
		return Result{}, err
	}

	x.engine.mu.Lock()
	defer x.engine.mu.Unlock()

	data, ok := x.engine.tables[plan.Table]
	if !ok {
		return Result{}, caveerr.NewNotFound("table.Delete", fmt.Errorf("table %q not found", plan.Table))
	}

	prepared, err := prepareFilter(data.columns, plan.Filter)
	if err != nil {
		return Result{}, caveerr.NewInvalidArgument("table.Delete", err)
	}

	kept := make([][]types.ScalarValue, 0, len(data.rows))
	var removed uint64
	for _, row := range data.rows {
		matches, err := filterMatches(prepared, row)
		if err != nil {
			return Result{}, caveerr.NewInvalidArgument("table.Delete", err)
		}
		record := rowToRecord(data.columns, row)
		if matches && rls.RowAllowed(policies, claims, record, plan.Table) {
			if err := x.engine.appendEntry(walEntry{
				Event:     walDelete,
				Table:     plan.Table,
				Columns:   data.columns,
				RowBefore: row,
			}); err != nil {
				return Result{}, err
			}
			removed++
			x.publish(plan.Table, types.ChangeDelete, record)
			continue
		}
		kept = append(kept, row)
	}
	data.rows = kept

	return Result{RowsAffected: removed}, nil
}

func (x *Executor) publish(table string, kind types.ChangeKind, row types.Row) {
	if x.hub == nil {
		return
	}
	x.hub.Publish(types.ChangeEvent{Table: table, Kind: kind, Row: row, Timestamp: time.Now().UTC()})
}
