package rls

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/cave/pkg/types"
)

// Op is one of the comparison operators a leaf predicate supports. It
// doubles as the JSON key a leaf predicate is nested under, e.g.
// {"eq":{"column":"namespace","claim":"scope"}}.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpLt  Op = "lt"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

func (op Op) valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte:
		return true
	default:
		return false
	}
}

// Predicate is a node in an RLS policy's predicate tree: either a leaf
// comparison (one of eq/neq/gt/lt/gte/lte, naming the column and a
// claim or literal to compare against) or an and/or composite of child
// predicates. The wire form nests the operator as the sole JSON key:
//
//	{"eq": {"column": "namespace", "claim": "scope"}}
//	{"and": [{"eq": {...}}, {"gt": {...}}]}
type Predicate struct {
	// Leaf fields.
	Op      Op
	Column  string
	Claim   string
	Literal *types.ScalarValue

	// Composite fields.
	And []Predicate
	Or  []Predicate
}

// leafBody is the wire shape of a leaf predicate's operand object.
type leafBody struct {
	Column  string          `json:"column"`
	Claim   string          `json:"claim,omitempty"`
	Literal json.RawMessage `json:"literal,omitempty"`
}

// Parse decodes a policy's stored JSON predicate tree.
func Parse(raw []byte) (*Predicate, error) {
	var p Predicate
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("rls: invalid predicate: %w", err)
	}
	return &p, nil
}

// UnmarshalJSON decodes the single-key operator wrapper into Predicate's
// flattened field set.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("rls: predicate must be a JSON object: %w", err)
	}
	if len(wrapper) != 1 {
		return fmt.Errorf("rls: predicate object must have exactly one key, got %d", len(wrapper))
	}

	for key, body := range wrapper {
		switch strings.ToLower(key) {
		case "and":
			var children []Predicate
			if err := json.Unmarshal(body, &children); err != nil {
				return fmt.Errorf("rls: invalid \"and\" predicate list: %w", err)
			}
			p.And = children
			return nil
		case "or":
			var children []Predicate
			if err := json.Unmarshal(body, &children); err != nil {
				return fmt.Errorf("rls: invalid \"or\" predicate list: %w", err)
			}
			p.Or = children
			return nil
		default:
			op := Op(strings.ToLower(key))
			if !op.valid() {
				return fmt.Errorf("rls: unknown predicate operator %q", key)
			}
			var leaf leafBody
			if err := json.Unmarshal(body, &leaf); err != nil {
				return fmt.Errorf("rls: invalid %q predicate body: %w", key, err)
			}
			if leaf.Column == "" {
				return fmt.Errorf("rls: %q predicate missing \"column\"", key)
			}
			p.Op = op
			p.Column = leaf.Column
			p.Claim = leaf.Claim
			if len(leaf.Literal) > 0 {
				lit, err := decodeLiteral(leaf.Literal)
				if err != nil {
					return fmt.Errorf("rls: %q predicate literal: %w", key, err)
				}
				p.Literal = &lit
			}
			return nil
		}
	}
	return nil
}

// decodeLiteral infers a ScalarValue's kind from raw JSON's own type
// system (number/string/bool/null), rather than requiring the tagged
// {"kind":...,"value":...} form types.ScalarValue itself marshals to:
// RLS predicates are meant to be hand-authored JSON, not round-tripped
// Go values.
func decodeLiteral(raw json.RawMessage) (types.ScalarValue, error) {
	var anyVal interface{}
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return types.ScalarValue{}, err
	}
	switch v := anyVal.(type) {
	case nil:
		return types.NullValue(), nil
	case bool:
		return types.BoolValue(v), nil
	case string:
		return types.StringValue(v), nil
	case float64:
		if !strings.ContainsAny(string(raw), ".eE") {
			return types.IntValue(int64(v)), nil
		}
		return types.FloatValue(v), nil
	default:
		return types.ScalarValue{}, fmt.Errorf("unsupported literal type %T", v)
	}
}

// MarshalJSON encodes Predicate back into its single-key operator form.
func (p *Predicate) MarshalJSON() ([]byte, error) {
	if len(p.And) > 0 {
		return json.Marshal(map[string][]Predicate{"and": p.And})
	}
	if len(p.Or) > 0 {
		return json.Marshal(map[string][]Predicate{"or": p.Or})
	}
	body := leafBody{Column: p.Column, Claim: p.Claim}
	if p.Literal != nil {
		raw, err := encodeLiteral(*p.Literal)
		if err != nil {
			return nil, err
		}
		body.Literal = raw
	}
	return json.Marshal(map[string]leafBody{string(p.Op): body})
}

func encodeLiteral(v types.ScalarValue) (json.RawMessage, error) {
	switch v.Kind {
	case types.KindNull:
		return json.RawMessage("null"), nil
	case types.KindInt:
		return json.Marshal(v.Int)
	case types.KindFloat:
		return json.Marshal(v.Flt)
	case types.KindBool:
		return json.Marshal(v.Bool)
	case types.KindString:
		return json.Marshal(v.Str)
	default:
		return nil, fmt.Errorf("rls: unsupported literal kind %q", v.Kind)
	}
}

// Evaluate reports whether row satisfies p given the caller's claims.
// Evaluation is fail-closed: any lookup or comparison that cannot be
// resolved (missing column, missing claim, mismatched value kinds)
// returns false rather than propagating an error, since a row must never
// be exposed because a policy was malformed or stale.
func (p *Predicate) Evaluate(claims types.TokenClaims, row types.Row) bool {
	if len(p.And) > 0 {
		for _, child := range p.And {
			if !child.Evaluate(claims, row) {
				return false
			}
		}
		return true
	}
	if len(p.Or) > 0 {
		for _, child := range p.Or {
			if child.Evaluate(claims, row) {
				return true
			}
		}
		return false
	}

	left, ok := row[p.Column]
	if !ok {
		return false
	}

	right, ok := p.rightOperand(claims)
	if !ok {
		return false
	}

	result, ok := compare(p.Op, left, right)
	if !ok {
		return false
	}
	return result
}

func (p *Predicate) rightOperand(claims types.TokenClaims) (types.ScalarValue, bool) {
	if p.Literal != nil {
		return *p.Literal, true
	}
	if p.Claim != "" {
		return claimValue(claims, p.Claim)
	}
	return types.ScalarValue{}, false
}

func claimValue(claims types.TokenClaims, claim string) (types.ScalarValue, bool) {
	switch claim {
	case "subject":
		return types.StringValue(claims.Subject), true
	case "scope":
		return types.StringValue(claims.Scope), true
	default:
		v, ok := claims.Extra[claim]
		if !ok {
			return types.ScalarValue{}, false
		}
		return types.StringValue(v), true
	}
}

// compare applies op to left/right. Mismatched kinds (Int vs Float
// included — no implicit numeric coercion) report ok=false.
func compare(op Op, left, right types.ScalarValue) (result, ok bool) {
	if left.Kind != right.Kind {
		return false, false
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
			return left.Bool == right.Bool, true
		case OpNeq:
			return left.Bool != right.Bool, true
		default:
			return false, false
		}
	case types.KindNull:
		return op == OpEq, true
	default:
		return false, false
	}
}

type ordered interface {
	~int64 | ~float64 | ~string
}

func compareOrdered[T ordered](op Op, a, b T) (bool, bool) {
	switch op {
	case OpEq:
		return a == b, true
	case OpNeq:
		return a != b, true
	case OpGt:
		return a > b, true
	case OpLt:
		return a < b, true
	case OpGte:
		return a >= b, true
	case OpLte:
		return a <= b, true
	default:
		return false, false
	}
}
