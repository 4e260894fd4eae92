package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/cave/pkg/types"
)

// Parse parses a single SQL statement from the closed grammar this
// package supports: INSERT, SELECT (with optional COUNT(*)), UPDATE and
// DELETE, each with AND/OR comparison WHERE clauses and no subqueries.
func Parse(sql string) (Statement, error) {
	tokens, err := lex(sql)
	if err != nil {
		return nil, fmt.Errorf("sql: %w", err)
	}
	p := &parser{tokens: tokens}

	stmt, err := p.parseStatement()
	if err != nil {
		return nil, fmt.Errorf("sql: %w", err)
	}

	// Allow (and skip) a single trailing semicolon.
	if p.peek().kind == tokPunct && p.peek().text == ";" {
		p.advance()
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("sql: unexpected trailing input near %q", p.peek().text)
	}
	return stmt, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expectIdent(word string) error {
	t := p.advance()
	if t.kind != tokIdent || !strings.EqualFold(t.text, word) {
		return fmt.Errorf("expected %q, got %q", word, t.text)
	}
	return nil
}

func (p *parser) expectPunct(sym string) error {
	t := p.advance()
	if t.kind != tokPunct || t.text != sym {
		return fmt.Errorf("expected %q, got %q", sym, t.text)
	}
	return nil
}

func (p *parser) identIs(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (p *parser) parseStatement() (Statement, error) {
	if !p.identIs("insert") && !p.identIs("select") && !p.identIs("update") && !p.identIs("delete") {
		return nil, fmt.Errorf("unsupported statement, expected INSERT/SELECT/UPDATE/DELETE, got %q", p.peek().text)
	}

	switch {
	case p.identIs("insert"):
		return p.parseInsert()
	case p.identIs("select"):
		return p.parseSelect()
	case p.identIs("update"):
		return p.parseUpdate()
	default:
		return p.parseDelete()
	}
}

func (p *parser) parseInsert() (Statement, error) {
	if err := p.expectIdent("insert"); err != nil {
		return nil, err
	}
	if err := p.expectIdent("into"); err != nil {
		return nil, err
	}
	table, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}

	var columns []string
	if p.peek().kind == tokPunct && p.peek().text == "(" {
		p.advance()
		for {
			col, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			columns = append(columns, col)
			if p.peek().text == "," {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectIdent("values"); err != nil {
		return nil, err
	}

	var rows [][]types.ScalarValue
	for {
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var values []types.ScalarValue
		for {
			v, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.peek().text == "," {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		if len(columns) > 0 && len(columns) != len(values) {
			return nil, fmt.Errorf("column list length %d does not match value count %d", len(columns), len(values))
		}
		if len(rows) > 0 && len(values) != len(rows[0]) {
			return nil, fmt.Errorf("value tuple length %d does not match preceding tuple length %d", len(values), len(rows[0]))
		}
		rows = append(rows, values)

		if p.peek().text == "," {
			p.advance()
			continue
		}
		break
	}

	return &InsertStatement{Table: table, Columns: columns, Rows: rows}, nil
}

func (p *parser) parseSelect() (Statement, error) {
	if err := p.expectIdent("select"); err != nil {
		return nil, err
	}

	aggregate := AggregateKind("")
	switch {
	case p.identIs("count"):
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if err := p.expectPunct("*"); err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		aggregate = CountStar
	case p.peek().kind == tokPunct && p.peek().text == "*":
		p.advance()
	default:
		return nil, fmt.Errorf("only SELECT * or SELECT COUNT(*) is supported")
	}

	if err := p.expectIdent("from"); err != nil {
		return nil, err
	}
	table, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}

	filter, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &SelectStatement{Table: table, Filter: filter, Aggregate: aggregate}, nil
}

func (p *parser) parseUpdate() (Statement, error) {
	if err := p.expectIdent("update"); err != nil {
		return nil, err
	}
	table, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectIdent("set"); err != nil {
		return nil, err
	}

	var assignments []Assignment
	for {
		col, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, Assignment{Column: col, Value: val})
		if p.peek().text == "," {
			p.advance()
			continue
		}
		break
	}

	filter, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &UpdateStatement{Table: table, Assignments: assignments, Filter: filter}, nil
}

func (p *parser) parseDelete() (Statement, error) {
	if err := p.expectIdent("delete"); err != nil {
		return nil, err
	}
	if err := p.expectIdent("from"); err != nil {
		return nil, err
	}
	table, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}

	filter, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &DeleteStatement{Table: table, Filter: filter}, nil
}

func (p *parser) parseOptionalWhere() (*FilterExpr, error) {
	if !p.identIs("where") {
		return nil, nil
	}
	p.advance()
	return p.parseOrExpr()
}

// parseOrExpr and parseAndExpr encode the AND-binds-tighter-than-OR
// precedence of standard SQL's boolean operators.
func (p *parser) parseOrExpr() (*FilterExpr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.identIs("or") {
		p.advance()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &FilterExpr{Or: &BinaryFilter{Left: left, Right: right}}
	}
	return left, nil
}

func (p *parser) parseAndExpr() (*FilterExpr, error) {
	left, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for p.identIs("and") {
		p.advance()
		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		left = &FilterExpr{And: &BinaryFilter{Left: left, Right: right}}
	}
	return left, nil
}

func (p *parser) parsePrimaryExpr() (*FilterExpr, error) {
	if p.peek().kind == tokPunct && p.peek().text == "(" {
		p.advance()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil
	}

	column, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	op, err := p.parseComparisonOp()
	if err != nil {
		return nil, err
	}
	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &FilterExpr{Column: column, Op: op, Value: value}, nil
}

func (p *parser) parseComparisonOp() (ComparisonOp, error) {
	t := p.advance()
	switch {
	case t.kind == tokPunct && t.text == "=":
		return OpEq, nil
	case t.kind == tokPunct && t.text == "!=":
		return OpNeq, nil
	case t.kind == tokPunct && t.text == ">":
		return OpGt, nil
	case t.kind == tokPunct && t.text == "<":
		return OpLt, nil
	case t.kind == tokPunct && t.text == ">=":
		return OpGte, nil
	case t.kind == tokPunct && t.text == "<=":
		return OpLte, nil
	default:
		return "", fmt.Errorf("expected comparison operator, got %q", t.text)
	}
}

func (p *parser) parseIdentifier() (string, error) {
	t := p.advance()
	if t.kind != tokIdent {
		return "", fmt.Errorf("expected identifier, got %q", t.text)
	}
	return t.text, nil
}

func (p *parser) parseLiteral() (types.ScalarValue, error) {
	t := p.advance()
	switch t.kind {
	case tokString:
		return types.StringValue(t.text), nil
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return types.ScalarValue{}, fmt.Errorf("invalid numeric literal %q: %w", t.text, err)
			}
			return types.FloatValue(f), nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return types.ScalarValue{}, fmt.Errorf("invalid numeric literal %q: %w", t.text, err)
		}
		return types.IntValue(n), nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return types.BoolValue(true), nil
		case "false":
			return types.BoolValue(false), nil
		case "null":
			return types.NullValue(), nil
		}
		return types.ScalarValue{}, fmt.Errorf("unsupported literal %q", t.text)
	default:
		return types.ScalarValue{}, fmt.Errorf("expected literal, got %q", t.text)
	}
}
