package table

import "github.com/cuemby/cave/pkg/types"

// LogicalPlan is the planner's output, one variant per statement kind.
// Building it is a near-direct translation of the AST; there is no
// pushdown or reordering to do against a single in-memory table scan.
type LogicalPlan struct {
	Insert *InsertPlan
	Select *SelectPlan
	Update *UpdatePlan
	Delete *DeletePlan
}

type InsertPlan struct {
	Table   string
	Columns []string
	Rows    [][]types.ScalarValue // each entry one row, in column order
}

type SelectPlan struct {
	Table     string
	Filter    *FilterExpr
	Aggregate AggregateKind
}

type UpdatePlan struct {
	Table       string
	Assignments []Assignment
	Filter      *FilterExpr
}

type DeletePlan struct {
	Table  string
	Filter *FilterExpr
}

// Plan builds a LogicalPlan from a parsed statement. There is no
// optimization pass: with a single-table, index-free in-memory scan,
// the identity plan is already the cheapest one available.
func Plan(stmt Statement) (*LogicalPlan, error) {
	switch s := stmt.(type) {
	case *InsertStatement:
		return &LogicalPlan{Insert: &InsertPlan{Table: s.Table, Columns: s.Columns, Rows: s.Rows}}, nil
	case *SelectStatement:
		return &LogicalPlan{Select: &SelectPlan{Table: s.Table, Filter: s.Filter, Aggregate: s.Aggregate}}, nil
	case *UpdateStatement:
		return &LogicalPlan{Update: &UpdatePlan{Table: s.Table, Assignments: s.Assignments, Filter: s.Filter}}, nil
	case *DeleteStatement:
		return &LogicalPlan{Delete: &DeletePlan{Table: s.Table, Filter: s.Filter}}, nil
	default:
		panic("table: unreachable statement kind")
	}
}
