package table

import "github.com/cuemby/cave/pkg/types"

// ComparisonOp is one of the comparison operators a WHERE clause supports.
type ComparisonOp string

const (
	OpEq  ComparisonOp = "="
	OpNeq ComparisonOp = "!="
	OpGt  ComparisonOp = ">"
	OpLt  ComparisonOp = "<"
	OpGte ComparisonOp = ">="
	OpLte ComparisonOp = "<="
)

// FilterExpr is a WHERE clause expression: a leaf comparison, or an
// AND/OR composite of two sub-expressions. There is no NOT.
type FilterExpr struct {
	// Leaf fields.
	Column string
	Op     ComparisonOp
	Value  types.ScalarValue

	// Composite fields.
	And *BinaryFilter
	Or  *BinaryFilter
}

// BinaryFilter holds the two operands of an AND/OR composite.
type BinaryFilter struct {
	Left  *FilterExpr
	Right *FilterExpr
}

// AggregateKind is the single aggregate form SELECT supports.
type AggregateKind string

const CountStar AggregateKind = "count_star"

// Assignment is a single "column = value" pair in an UPDATE's SET list.
type Assignment struct {
	Column string
	Value  types.ScalarValue
}

// Statement is the closed set of statements the parser can produce.
type Statement interface {
	isStatement()
}

// InsertStatement inserts one or more rows of literal values into a
// table: "VALUES (...), (...), ..." parses to one Rows entry per tuple.
type InsertStatement struct {
	Table   string
	Columns []string // may be empty; the executor synthesizes col0, col1, ...
	Rows    [][]types.ScalarValue
}

func (*InsertStatement) isStatement() {}

// SelectStatement selects rows from a table, optionally filtered and/or
// reduced to a single COUNT(*) aggregate.
type SelectStatement struct {
	Table     string
	Filter    *FilterExpr
	Aggregate AggregateKind // empty when this is a plain row select
}

func (*SelectStatement) isStatement() {}

// UpdateStatement applies Assignments to every row matching Filter.
type UpdateStatement struct {
	Table       string
	Assignments []Assignment
	Filter      *FilterExpr
}

func (*UpdateStatement) isStatement() {}

// DeleteStatement removes every row matching Filter.
type DeleteStatement struct {
	Table  string
	Filter *FilterExpr
}

func (*DeleteStatement) isStatement() {}
