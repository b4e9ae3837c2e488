package sqlfront

import "github.com/chidb-go/chidb/internal/chidberr"

// Parser builds an AST from a token stream via recursive descent over
// the grammar in spec §4.5, plus the advanced SELECT clauses and
// DROP/ALTER statements accepted per §6.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses source into a single Statement.
func Parse(source string) (Statement, error) {
	tokens, err := NewLexer(source).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ParseStatement()
}

// NewParser constructs a Parser over an already-tokenized stream.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Type: TokEOF}
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *Parser) match(types ...TokenType) bool {
	cur := p.current().Type
	for _, t := range types {
		if cur == t {
			return true
		}
	}
	return false
}

func (p *Parser) expect(t TokenType) (Token, error) {
	if !p.match(t) {
		tok := p.current()
		return Token{}, chidberr.AtPos(tok.Line, tok.Column, "unexpected token")
	}
	tok := p.current()
	p.advance()
	return tok, nil
}

// ParseStatement parses exactly one statement from the token stream.
func (p *Parser) ParseStatement() (Statement, error) {
	switch {
	case p.match(TokSelect):
		return p.parseSelect()
	case p.match(TokInsert):
		return p.parseInsert()
	case p.match(TokCreate):
		return p.parseCreateTable()
	case p.match(TokUpdate):
		return p.parseUpdate()
	case p.match(TokDelete):
		return p.parseDelete()
	case p.match(TokDrop):
		return p.parseDropTable()
	case p.match(TokAlter):
		return p.parseAlterTableAdd()
	}
	tok := p.current()
	return nil, chidberr.AtPos(tok.Line, tok.Column, "unexpected token at start of statement")
}

func (p *Parser) parseSelect() (*SelectStatement, error) {
	if _, err := p.expect(TokSelect); err != nil {
		return nil, err
	}

	distinct := false
	if p.match(TokDistinct) {
		distinct = true
		p.advance()
	}

	var columns []string
	if p.match(TokStar) {
		columns = append(columns, "*")
		p.advance()
	} else {
		id, err := p.expect(TokIdentifier)
		if err != nil {
			return nil, err
		}
		columns = append(columns, id.Text)
		for p.match(TokComma) {
			p.advance()
			id, err := p.expect(TokIdentifier)
			if err != nil {
				return nil, err
			}
			columns = append(columns, id.Text)
		}
	}

	if _, err := p.expect(TokFrom); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}

	stmt := &SelectStatement{Columns: columns, Table: table.Text, Distinct: distinct}

	if p.match(TokWhere) {
		p.advance()
		where, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.match(TokOrder) {
		p.advance()
		if _, err := p.expect(TokBy); err != nil {
			return nil, err
		}
		for {
			col, err := p.expect(TokIdentifier)
			if err != nil {
				return nil, err
			}
			term := OrderTerm{Column: col.Text}
			if p.match(TokAsc) {
				p.advance()
			} else if p.match(TokDesc) {
				term.Descending = true
				p.advance()
			}
			stmt.OrderBy = append(stmt.OrderBy, term)
			if !p.match(TokComma) {
				break
			}
			p.advance()
		}
	}

	if p.match(TokLimit) {
		p.advance()
		n, err := p.expect(TokIntegerLiteral)
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n.Int
	}

	if p.match(TokOffset) {
		p.advance()
		n, err := p.expect(TokIntegerLiteral)
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n.Int
	}

	return stmt, nil
}

func (p *Parser) parseInsert() (*InsertStatement, error) {
	if _, err := p.expect(TokInsert); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokInto); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokValues); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}

	var values []Expression
	v, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	values = append(values, v)
	for p.match(TokComma) {
		p.advance()
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &InsertStatement{Table: table.Text, Values: values}, nil
}

func (p *Parser) parseCreateTable() (*CreateTableStatement, error) {
	if _, err := p.expect(TokCreate); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokTable); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}

	var cols []ColumnDef
	c, err := p.parseColumnDef()
	if err != nil {
		return nil, err
	}
	cols = append(cols, c)
	for p.match(TokComma) {
		p.advance()
		c, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &CreateTableStatement{Table: table.Text, Columns: cols}, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expect(TokIdentifier)
	if err != nil {
		return ColumnDef{}, err
	}
	typ, err := p.parseColumnType()
	if err != nil {
		return ColumnDef{}, err
	}
	def := ColumnDef{Name: name.Text, Type: typ}
	if p.match(TokPrimary) {
		p.advance()
		if _, err := p.expect(TokKey); err != nil {
			return ColumnDef{}, err
		}
		def.PrimaryKey = true
	}
	return def, nil
}

func (p *Parser) parseColumnType() (string, error) {
	switch {
	case p.match(TokInteger):
		p.advance()
		return "INTEGER", nil
	case p.match(TokText):
		p.advance()
		return "TEXT", nil
	case p.match(TokReal):
		p.advance()
		return "REAL", nil
	}
	tok := p.current()
	return "", chidberr.AtPos(tok.Line, tok.Column, "expected column type INTEGER, TEXT or REAL")
}

func (p *Parser) parseUpdate() (*UpdateStatement, error) {
	if _, err := p.expect(TokUpdate); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSet); err != nil {
		return nil, err
	}

	assign, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	assignments := []Assignment{assign}
	for p.match(TokComma) {
		p.advance()
		a, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	stmt := &UpdateStatement{Table: table.Text, Assignments: assignments}
	if p.match(TokWhere) {
		p.advance()
		where, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseAssignment() (Assignment, error) {
	col, err := p.expect(TokIdentifier)
	if err != nil {
		return Assignment{}, err
	}
	if _, err := p.expect(TokEquals); err != nil {
		return Assignment{}, err
	}
	val, err := p.parseLiteral()
	if err != nil {
		return Assignment{}, err
	}
	return Assignment{Column: col.Text, Value: val}, nil
}

func (p *Parser) parseDelete() (*DeleteStatement, error) {
	if _, err := p.expect(TokDelete); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokFrom); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStatement{Table: table.Text}
	if p.match(TokWhere) {
		p.advance()
		where, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseDropTable() (*DropTableStatement, error) {
	if _, err := p.expect(TokDrop); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokTable); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	return &DropTableStatement{Table: table.Text}, nil
}

func (p *Parser) parseAlterTableAdd() (*AlterTableAddStatement, error) {
	if _, err := p.expect(TokAlter); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokTable); err != nil {
		return nil, err
	}
	table, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokAdd); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdentifier)
	if err != nil {
		return nil, err
	}
	typ, err := p.parseColumnType()
	if err != nil {
		return nil, err
	}
	return &AlterTableAddStatement{Table: table.Text, Column: ColumnDef{Name: name.Text, Type: typ}}, nil
}

func (p *Parser) parseExpression() (Expression, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Left: left, Operator: "OR", Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expression, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.match(TokAnd) {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Left: left, Operator: "AND", Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expression, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOperator(p.current().Type)
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &BinaryOp{Left: left, Operator: op, Right: right}, nil
}

func comparisonOperator(t TokenType) (string, bool) {
	switch t {
	case TokEquals:
		return "=", true
	case TokNotEquals:
		return "!=", true
	case TokLess:
		return "<", true
	case TokLessEqual:
		return "<=", true
	case TokGreater:
		return ">", true
	case TokGreaterEqual:
		return ">=", true
	}
	return "", false
}

func (p *Parser) parsePrimary() (Expression, error) {
	switch {
	case p.match(TokIdentifier):
		id := p.current()
		p.advance()
		return &Identifier{Name: id.Text}, nil
	case p.match(TokIntegerLiteral, TokStringLiteral, TokFloatLiteral, TokNull):
		return p.parseLiteral()
	case p.match(TokLParen):
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return expr, nil
	}
	tok := p.current()
	return nil, chidberr.AtPos(tok.Line, tok.Column, "unexpected token in expression")
}

func (p *Parser) parseLiteral() (*Literal, error) {
	tok := p.current()
	switch tok.Type {
	case TokIntegerLiteral:
		p.advance()
		return &Literal{Kind: LiteralInt, Int: tok.Int}, nil
	case TokStringLiteral:
		p.advance()
		return &Literal{Kind: LiteralString, Str: tok.Text}, nil
	case TokFloatLiteral:
		p.advance()
		return &Literal{Kind: LiteralFloat, Flt: tok.Float}, nil
	case TokNull:
		p.advance()
		return &Literal{Kind: LiteralNull}, nil
	}
	return nil, chidberr.AtPos(tok.Line, tok.Column, "expected literal value")
}
