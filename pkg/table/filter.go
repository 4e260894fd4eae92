package table

import (
	"fmt"

	"github.com/cuemby/cave/pkg/types"
)

// preparedFilter is a FilterExpr with column names resolved to row
// indices once, ahead of the per-row scan that evaluates it.
type preparedFilter struct {
	isComparison bool
	index        int
	op           ComparisonOp
	value        types.ScalarValue

	and *preparedBinary
	or  *preparedBinary
}

type preparedBinary struct {
	left  *preparedFilter
	right *preparedFilter
}

func prepareFilter(columns []string, expr *FilterExpr) (*preparedFilter, error) {
	if expr == nil {
		return nil, nil
	}
	return prepareFilterExpr(columns, expr)
}

func prepareFilterExpr(columns []string, expr *FilterExpr) (*preparedFilter, error) {
	if expr.And != nil {
		left, err := prepareFilterExpr(columns, expr.And.Left)
		if err != nil {
			return nil, err
		}
		right, err := prepareFilterExpr(columns, expr.And.Right)
		if err != nil {
			return nil, err
		}
		return &preparedFilter{and: &preparedBinary{left: left, right: right}}, nil
	}
	if expr.Or != nil {
		left, err := prepareFilterExpr(columns, expr.Or.Left)
		if err != nil {
			return nil, err
		}
		right, err := prepareFilterExpr(columns, expr.Or.Right)
		if err != nil {
			return nil, err
		}
		return &preparedFilter{or: &preparedBinary{left: left, right: right}}, nil
	}

	idx, err := findColumnIndex(columns, expr.Column)
	if err != nil {
		return nil, err
	}
	return &preparedFilter{isComparison: true, index: idx, op: expr.Op, value: expr.Value}, nil
}

func filterMatches(filter *preparedFilter, row []types.ScalarValue) (bool, error) {
	if filter == nil {
		return true, nil
	}
	return evaluatePreparedFilter(filter, row)
}

func evaluatePreparedFilter(filter *preparedFilter, row []types.ScalarValue) (bool, error) {
	switch {
	case filter.isComparison:
		if filter.index >= len(row) {
			return false, fmt.Errorf("column index out of bounds")
		}
		return compareValues(filter.op, row[filter.index], filter.value)
	case filter.and != nil:
		left, err := evaluatePreparedFilter(filter.and.left, row)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return evaluatePreparedFilter(filter.and.right, row)
	case filter.or != nil:
		left, err := evaluatePreparedFilter(filter.or.left, row)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return evaluatePreparedFilter(filter.or.right, row)
	default:
		return false, fmt.Errorf("empty prepared filter")
	}
}

// compareValues applies op to left/right. Values of differing kinds —
// including Int vs Float — are a query error; there is no implicit
// numeric coercion.
func compareValues(op ComparisonOp, left, right types.ScalarValue) (bool, error) {
	if left.Kind != right.Kind {
		return false, fmt.Errorf("unsupported comparison between %s and %s", left.Kind, right.Kind)
	}

	switch left.Kind {
	case types.KindInt:
		return compareOrdered(op, left.Int, right.Int)
	case types.KindFloat:
		return compareOrdered(op, left.Flt, right.Flt)
	case types.KindString:
		return compareOrdered(op, left.Str, right.Str)
	case types.KindBool:
		switch op {
		case OpEq:
			return left.Bool == right.Bool, nil
		case OpNeq:
			return left.Bool != right.Bool, nil
		default:
			return false, fmt.Errorf("unsupported comparison for boolean")
		}
	case types.KindNull:
		return op == OpEq, nil
	default:
		return false, fmt.Errorf("unsupported scalar kind %q", left.Kind)
	}
}

type ordered interface {
	~int64 | ~float64 | ~string
}

func compareOrdered[T ordered](op ComparisonOp, a, b T) (bool, error) {
	switch op {
	case OpEq:
		return a == b, nil
	case OpNeq:
		return a != b, nil
	case OpGt:
		return a > b, nil
	case OpLt:
		return a < b, nil
	case OpGte:
		return a >= b, nil
	case OpLte:
		return a <= b, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", op)
	}
}
