// Package parser turns a token stream from internal/lexer into an
// internal/ast tree via hand-rolled recursive descent for statements
// and Pratt-style precedence climbing for expressions.
package parser

import (
	"strconv"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/lexer"
	"graphlite/internal/value"
)

type Parser struct {
	lex  *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token
}

// Parse tokenizes and parses a single GQL statement.
func Parse(src string) (ast.Statement, error) {
	p := &Parser{lex: lexer.New(src)}
	if err := p.init(); err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.SEMICOLON {
		p.next()
	}
	if p.cur.Type != lexer.EOF {
		return nil, p.errorf("unexpected trailing input near %q", p.cur.Lit)
	}
	return stmt, nil
}

func (p *Parser) init() error {
	var err error
	if p.cur, err = p.lex.Next(); err != nil {
		return err
	}
	if p.peek, err = p.lex.Next(); err != nil {
		return err
	}
	return nil
}

func (p *Parser) next() error {
	p.cur = p.peek
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.peek = t
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	loc := gqlerr.Location{Line: p.cur.Line, Column: p.cur.Column, Token: p.cur.Lit}
	return gqlerr.Syntaxf(loc, format, args...)
}

func (p *Parser) expect(t lexer.Type) (lexer.Token, error) {
	if p.cur.Type != t {
		return lexer.Token{}, p.errorf("expected %s, found %s %q", t, p.cur.Type, p.cur.Lit)
	}
	tok := p.cur
	if err := p.next(); err != nil {
		return lexer.Token{}, err
	}
	return tok, nil
}

func (p *Parser) accept(t lexer.Type) (bool, error) {
	if p.cur.Type != t {
		return false, nil
	}
	return true, p.next()
}

// identLike reports whether tok can serve as a bare name (variable,
// property, procedure, label): IDENT or a backtick-quoted identifier.
func identLike(t lexer.Type) bool { return t == lexer.IDENT || t == lexer.QUOTED_ID }

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur.Type {
	case lexer.CREATE:
		return p.parseCreate()
	case lexer.DROP:
		return p.parseDrop()
	case lexer.SESSION:
		return p.parseSessionSet()
	case lexer.BEGIN:
		return p.parseBegin()
	case lexer.COMMIT:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.CommitStmt{}, nil
	case lexer.ROLLBACK:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.RollbackStmt{}, nil
	default:
		return p.parseQuery()
	}
}

func (p *Parser) parseCreate() (ast.Statement, error) {
	if err := p.next(); err != nil { // consume CREATE
		return nil, err
	}
	switch p.cur.Type {
	case lexer.SCHEMA:
		if err := p.next(); err != nil {
			return nil, err
		}
		path, err := p.expect(lexer.STRING)
		if err != nil {
			return nil, err
		}
		return &ast.CreateSchemaStmt{Path: path.Lit}, nil
	case lexer.GRAPH:
		if err := p.next(); err != nil {
			return nil, err
		}
		return p.parseGraphRef(func(schema, name string) ast.Statement {
			return &ast.CreateGraphStmt{Schema: schema, Name: name}
		})
	default:
		return nil, p.errorf("expected SCHEMA or GRAPH after CREATE")
	}
}

func (p *Parser) parseDrop() (ast.Statement, error) {
	if err := p.next(); err != nil { // consume DROP
		return nil, err
	}
	switch p.cur.Type {
	case lexer.SCHEMA:
		if err := p.next(); err != nil {
			return nil, err
		}
		path, err := p.expect(lexer.STRING)
		if err != nil {
			return nil, err
		}
		return &ast.DropSchemaStmt{Path: path.Lit}, nil
	case lexer.GRAPH:
		if err := p.next(); err != nil {
			return nil, err
		}
		return p.parseGraphRef(func(schema, name string) ast.Statement {
			return &ast.DropGraphStmt{Schema: schema, Name: name}
		})
	default:
		return nil, p.errorf("expected SCHEMA or GRAPH after DROP")
	}
}

// parseGraphRef parses `name` or `schema.name` and builds a statement
// via build. Schema is "" when unqualified (resolved against the
// session's current schema downstream).
func (p *Parser) parseGraphRef(build func(schema, name string) ast.Statement) (ast.Statement, error) {
	first, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.DOT {
		if err := p.next(); err != nil {
			return nil, err
		}
		second, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		return build(first.Lit, second.Lit), nil
	}
	return build("", first.Lit), nil
}

func (p *Parser) parseSessionSet() (ast.Statement, error) {
	if err := p.next(); err != nil { // consume SESSION
		return nil, err
	}
	if _, err := p.expect(lexer.SET); err != nil {
		return nil, err
	}
	stmt := &ast.SessionSetStmt{}
	switch p.cur.Type {
	case lexer.SCHEMA:
		if err := p.next(); err != nil {
			return nil, err
		}
		path, err := p.expect(lexer.STRING)
		if err != nil {
			return nil, err
		}
		stmt.Schema = path.Lit
	case lexer.GRAPH:
		if err := p.next(); err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		stmt.Graph = name.Lit
	default:
		return nil, p.errorf("expected SCHEMA or GRAPH after SESSION SET")
	}
	return stmt, nil
}

func (p *Parser) parseBegin() (ast.Statement, error) {
	if err := p.next(); err != nil { // consume BEGIN
		return nil, err
	}
	_, _ = p.accept(lexer.TRANSACTION)
	stmt := &ast.BeginStmt{}
	for identLike(p.cur.Type) || p.cur.Type.IsKeyword() {
		if stmt.Isolation != "" {
			stmt.Isolation += " "
		}
		stmt.Isolation += p.cur.Lit
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

// parseQuery parses a pipeline of clauses, optionally followed by a
// UNION/INTERSECT/EXCEPT-chained right-hand query.
func (p *Parser) parseQuery() (*ast.Query, error) {
	q := &ast.Query{}
	for {
		switch p.cur.Type {
		case lexer.MATCH, lexer.OPTIONAL:
			c, err := p.parseMatchClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.WITH:
			c, err := p.parseWithClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.RETURN:
			c, err := p.parseReturnClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.UNWIND:
			c, err := p.parseUnwindClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.INSERT:
			c, err := p.parseInsertClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.SET:
			c, err := p.parseSetClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.REMOVE:
			c, err := p.parseRemoveClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.DELETE, lexer.DETACH:
			c, err := p.parseDeleteClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		case lexer.CALL:
			c, err := p.parseCallClause()
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, c)
		default:
			goto done
		}
	}
done:
	if len(q.Clauses) == 0 {
		return nil, p.errorf("expected a query clause, found %s %q", p.cur.Type, p.cur.Lit)
	}
	switch p.cur.Type {
	case lexer.UNION:
		if err := p.next(); err != nil {
			return nil, err
		}
		all, err := p.accept(lexer.ALL)
		if err != nil {
			return nil, err
		}
		right, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		q.SetOp = &ast.SetOp{Kind: ast.Union, All: all, Right: right}
	case lexer.INTERSECT:
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		q.SetOp = &ast.SetOp{Kind: ast.Intersect, Right: right}
	case lexer.EXCEPT:
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		q.SetOp = &ast.SetOp{Kind: ast.Except, Right: right}
	}
	return q, nil
}

func (p *Parser) parseMatchClause() (*ast.MatchClause, error) {
	optional := false
	if p.cur.Type == lexer.OPTIONAL {
		optional = true
		if err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.MATCH); err != nil {
			return nil, err
		}
	} else {
		if err := p.next(); err != nil { // consume MATCH
			return nil, err
		}
	}
	pattern, err := p.parsePathPattern()
	if err != nil {
		return nil, err
	}
	c := &ast.MatchClause{Optional: optional, Pattern: pattern}
	if p.cur.Type == lexer.WHERE {
		if err := p.next(); err != nil {
			return nil, err
		}
		c.Where, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parsePathPattern() (*ast.PathPattern, error) {
	path := &ast.PathPattern{}
	first, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	path.Nodes = append(path.Nodes, first)
	for p.cur.Type == lexer.DASH || p.cur.Type == lexer.ARROW_L {
		edge, err := p.parseEdgePattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		path.Edges = append(path.Edges, edge)
		path.Nodes = append(path.Nodes, node)
	}
	return path, nil
}

func (p *Parser) parseNodePattern() (*ast.NodePattern, error) {
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	n := &ast.NodePattern{}
	if identLike(p.cur.Type) {
		n.Variable = p.cur.Lit
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	for p.cur.Type == lexer.COLON {
		if err := p.next(); err != nil {
			return nil, err
		}
		lbl, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		n.Labels = append(n.Labels, lbl.Lit)
	}
	if p.cur.Type == lexer.LBRACE {
		props, err := p.parseMapLiteralEntries()
		if err != nil {
			return nil, err
		}
		n.Properties = props
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseEdgePattern() (*ast.EdgePattern, error) {
	e := &ast.EdgePattern{Direction: ast.DirEither}
	incoming := false
	if p.cur.Type == lexer.ARROW_L {
		incoming = true
		if err := p.next(); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.expect(lexer.DASH); err != nil {
			return nil, err
		}
	}
	if p.cur.Type == lexer.LBRACKET {
		if err := p.next(); err != nil {
			return nil, err
		}
		if identLike(p.cur.Type) {
			e.Variable = p.cur.Lit
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		if p.cur.Type == lexer.COLON {
			if err := p.next(); err != nil {
				return nil, err
			}
			for {
				typ, err := p.expect(lexer.IDENT)
				if err != nil {
					return nil, err
				}
				e.Types = append(e.Types, typ.Lit)
				if p.cur.Type != lexer.PIPE {
					break
				}
				if err := p.next(); err != nil {
					return nil, err
				}
			}
		}
		if p.cur.Type == lexer.LBRACE {
			props, err := p.parseMapLiteralEntries()
			if err != nil {
				return nil, err
			}
			e.Properties = props
		}
		if _, err := p.expect(lexer.RBRACKET); err != nil {
			return nil, err
		}
	}
	if incoming {
		if _, err := p.expect(lexer.DASH); err != nil {
			return nil, err
		}
		e.Direction = ast.DirIncoming
		return e, nil
	}
	switch p.cur.Type {
	case lexer.ARROW_R:
		if err := p.next(); err != nil {
			return nil, err
		}
		e.Direction = ast.DirOutgoing
	case lexer.DASH:
		if err := p.next(); err != nil {
			return nil, err
		}
		e.Direction = ast.DirEither
	default:
		return nil, p.errorf("expected '-' or '->' to close edge pattern, found %s", p.cur.Type)
	}
	return e, nil
}

func (p *Parser) parseProjectionItems() ([]ast.ProjectionItem, error) {
	var items []ast.ProjectionItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := ast.ProjectionItem{Expr: e}
		if p.cur.Type == lexer.AS {
			if err := p.next(); err != nil {
				return nil, err
			}
			alias, err := p.expect(lexer.IDENT)
			if err != nil {
				return nil, err
			}
			item.Alias = alias.Lit
		}
		items = append(items, item)
		if p.cur.Type != lexer.COMMA {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (p *Parser) parseWithClause() (*ast.WithClause, error) {
	if err := p.next(); err != nil { // consume WITH
		return nil, err
	}
	c := &ast.WithClause{}
	var err error
	if c.Distinct, err = p.accept(lexer.DISTINCT); err != nil {
		return nil, err
	}
	if c.Items, err = p.parseProjectionItems(); err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.WHERE {
		if err := p.next(); err != nil {
			return nil, err
		}
		if c.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseReturnClause() (*ast.ReturnClause, error) {
	if err := p.next(); err != nil { // consume RETURN
		return nil, err
	}
	c := &ast.ReturnClause{}
	var err error
	if c.Distinct, err = p.accept(lexer.DISTINCT); err != nil {
		return nil, err
	}
	if c.Items, err = p.parseProjectionItems(); err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.ORDER {
		if err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.BY); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			key := ast.SortKey{Expr: e}
			if p.cur.Type == lexer.DESC {
				key.Desc = true
				if err := p.next(); err != nil {
					return nil, err
				}
			} else if p.cur.Type == lexer.ASC {
				if err := p.next(); err != nil {
					return nil, err
				}
			}
			c.OrderBy = append(c.OrderBy, key)
			if p.cur.Type != lexer.COMMA {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if p.cur.Type == lexer.SKIP {
		if err := p.next(); err != nil {
			return nil, err
		}
		if c.Skip, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.cur.Type == lexer.LIMIT {
		if err := p.next(); err != nil {
			return nil, err
		}
		if c.Limit, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseUnwindClause() (*ast.UnwindClause, error) {
	if err := p.next(); err != nil { // consume UNWIND
		return nil, err
	}
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.AS); err != nil {
		return nil, err
	}
	alias, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	return &ast.UnwindClause{List: list, As: alias.Lit}, nil
}

func (p *Parser) parseInsertClause() (*ast.InsertClause, error) {
	if err := p.next(); err != nil { // consume INSERT
		return nil, err
	}
	pattern, err := p.parsePathPattern()
	if err != nil {
		return nil, err
	}
	return &ast.InsertClause{Pattern: pattern}, nil
}

func (p *Parser) parseSetClause() (*ast.SetClause, error) {
	if err := p.next(); err != nil { // consume SET
		return nil, err
	}
	c := &ast.SetClause{}
	for {
		target, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.EQ); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, ast.SetItem{Target: target, Value: val})
		if p.cur.Type != lexer.COMMA {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseRemoveClause() (*ast.RemoveClause, error) {
	if err := p.next(); err != nil { // consume REMOVE
		return nil, err
	}
	c := &ast.RemoveClause{}
	for {
		target, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		c.Targets = append(c.Targets, target)
		if p.cur.Type != lexer.COMMA {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseDeleteClause() (*ast.DeleteClause, error) {
	c := &ast.DeleteClause{}
	if p.cur.Type == lexer.DETACH {
		c.Detach = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.DELETE); err != nil {
		return nil, err
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Targets = append(c.Targets, e)
		if p.cur.Type != lexer.COMMA {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (p *Parser) parseCallClause() (*ast.CallClause, error) {
	if err := p.next(); err != nil { // consume CALL
		return nil, err
	}
	name, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	proc := name.Lit
	for p.cur.Type == lexer.DOT {
		if err := p.next(); err != nil {
			return nil, err
		}
		part, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		proc += "." + part.Lit
	}
	c := &ast.CallClause{Procedure: proc}
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	if p.cur.Type != lexer.RPAREN {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			c.Args = append(c.Args, arg)
			if p.cur.Type != lexer.COMMA {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return c, nil
}

// parseMapLiteralEntries parses `{ key: expr, ... }`.
func (p *Parser) parseMapLiteralEntries() (map[string]ast.Expr, error) {
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, err
	}
	entries := make(map[string]ast.Expr)
	if p.cur.Type == lexer.RBRACE {
		if err := p.next(); err != nil {
			return nil, err
		}
		return entries, nil
	}
	for {
		key := p.cur.Lit
		if !identLike(p.cur.Type) && !p.cur.Type.IsKeyword() {
			return nil, p.errorf("expected property key, found %s %q", p.cur.Type, p.cur.Lit)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.COLON); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries[key] = val
		if p.cur.Type != lexer.COMMA {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, err
	}
	return entries, nil
}

// --- expression parsing (Pratt / precedence-climbing) ---

func (p *Parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.OR {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseXor() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.XOR {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpXor, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.AND {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.cur.Type == lexer.NOT {
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	}
	return p.parseComparison()
}

func binOpFor(t lexer.Type) (ast.BinaryOp, bool) {
	switch t {
	case lexer.EQ:
		return ast.OpEq, true
	case lexer.NEQ:
		return ast.OpNeq, true
	case lexer.LT:
		return ast.OpLt, true
	case lexer.GT:
		return ast.OpGt, true
	case lexer.LTE:
		return ast.OpLte, true
	case lexer.GTE:
		return ast.OpGte, true
	default:
		return 0, false
	}
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		if op, ok := binOpFor(p.cur.Type); ok {
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
			continue
		}
		if p.cur.Type == lexer.IS {
			if err := p.next(); err != nil {
				return nil, err
			}
			op := ast.OpIsNull
			if p.cur.Type == lexer.NOT {
				op = ast.OpIsNotNull
				if err := p.next(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(lexer.NULL); err != nil {
				return nil, err
			}
			left = &ast.UnaryExpr{Op: op, Operand: left}
			continue
		}
		if p.cur.Type == lexer.IN {
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &ast.BinaryExpr{Op: ast.OpIn, Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.PLUS || p.cur.Type == lexer.DASH {
		op := ast.OpAdd
		if p.cur.Type == lexer.DASH {
			op = ast.OpSub
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.ASTERISK || p.cur.Type == lexer.SLASH || p.cur.Type == lexer.PERCENT {
		var op ast.BinaryOp
		switch p.cur.Type {
		case lexer.ASTERISK:
			op = ast.OpMul
		case lexer.SLASH:
			op = ast.OpDiv
		default:
			op = ast.OpMod
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.cur.Type == lexer.DASH {
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNeg, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == lexer.DOT {
		if err := p.next(); err != nil {
			return nil, err
		}
		prop, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		e = &ast.PropertyAccessExpr{Target: e, Property: prop.Lit}
	}
	return e, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch p.cur.Type {
	case lexer.INT:
		lit := p.cur.Lit
		if err := p.next(); err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer literal %q", lit)
		}
		return &ast.Literal{Value: value.Int(n)}, nil
	case lexer.FLOAT:
		lit := p.cur.Lit
		if err := p.next(); err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, p.errorf("invalid float literal %q", lit)
		}
		return &ast.Literal{Value: value.Float(f)}, nil
	case lexer.STRING:
		lit := p.cur.Lit
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: value.Str(lit)}, nil
	case lexer.TRUE:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: value.Bool(true)}, nil
	case lexer.FALSE:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: value.Bool(false)}, nil
	case lexer.NULL:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Literal{Value: value.Null}, nil
	case lexer.PARAM:
		name := p.cur.Lit
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.ParamExpr{Name: name}, nil
	case lexer.LPAREN:
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.LBRACKET:
		return p.parseListLiteral()
	case lexer.LBRACE:
		entries, err := p.parseMapLiteralEntries()
		if err != nil {
			return nil, err
		}
		return &ast.MapExpr{Entries: entries}, nil
	case lexer.CASE:
		return p.parseCaseExpr()
	case lexer.NOT:
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	case lexer.IDENT, lexer.QUOTED_ID:
		return p.parseIdentOrCall()
	}
	return nil, p.errorf("unexpected token %s %q in expression", p.cur.Type, p.cur.Lit)
}

func (p *Parser) parseIdentOrCall() (ast.Expr, error) {
	name := p.cur.Lit
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.cur.Type != lexer.LPAREN {
		return &ast.VarExpr{Name: name}, nil
	}
	if err := p.next(); err != nil { // consume LPAREN
		return nil, err
	}
	call := &ast.FuncCallExpr{Name: name}
	if p.cur.Type == lexer.ASTERISK {
		call.Star = true
		if err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, err
		}
		return call, nil
	}
	var err error
	if call.Distinct, err = p.accept(lexer.DISTINCT); err != nil {
		return nil, err
	}
	if p.cur.Type != lexer.RPAREN {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.cur.Type != lexer.COMMA {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *Parser) parseListLiteral() (ast.Expr, error) {
	if _, err := p.expect(lexer.LBRACKET); err != nil {
		return nil, err
	}
	list := &ast.ListExpr{}
	if p.cur.Type == lexer.RBRACKET {
		if err := p.next(); err != nil {
			return nil, err
		}
		return list, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, e)
		if p.cur.Type != lexer.COMMA {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.RBRACKET); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseCaseExpr() (ast.Expr, error) {
	if err := p.next(); err != nil { // consume CASE
		return nil, err
	}
	c := &ast.CaseExpr{}
	if p.cur.Type != lexer.WHEN {
		operand, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for p.cur.Type == lexer.WHEN {
		if err := p.next(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.THEN); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, ast.WhenClause{Cond: cond, Then: then})
	}
	if len(c.Whens) == 0 {
		return nil, p.errorf("CASE requires at least one WHEN clause")
	}
	if p.cur.Type == lexer.ELSE {
		if err := p.next(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		c.Else = e
	}
	if _, err := p.expect(lexer.END); err != nil {
		return nil, err
	}
	return c, nil
}
