package formula

import (
	"fmt"
	"math"
)

// Formula is the result of parsing: the outermost reduction, the expression
// AST beneath it and the argument bindings it references. A Formula is
// immutable after parsing.
type Formula struct {
	Red  Reduction
	Root *Node
	Args *ArgTable
}

// OutputDim returns the inner dimension of the reduction output.
func (f *Formula) OutputDim() int {
	return f.Root.Dim
}

// String renders the formula back into grammar syntax.
func (f *Formula) String() string {
	return fmt.Sprintf("%s(%s,%d)", f.Red.Kind, f.Root, f.Red.Axis)
}

// Parse parses a formula string together with its argument declarations,
// e.g.
//
//	Parse("Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)",
//	      []string{"x = Vi(3)", "y = Vj(3)", "b = Vj(6)", "s = Pm(1)"})
//
// The outermost operator must be a reduction naming its axis. Dimension
// mismatches, undeclared symbols and grammar errors are all reported here,
// never at invocation time.
func Parse(src string, decls []string) (*Formula, error) {
	args, err := ParseArgs(decls)
	if err != nil {
		return nil, err
	}
	return ParseWith(src, args)
}

// ParseWith parses a formula against an existing argument table. Used when
// deriving gradient formulas, whose tables extend the original declarations.
func ParseWith(src string, args *ArgTable) (*Formula, error) {
	p := &parser{lex: newLexer(src), args: args}
	if err := p.advance(); err != nil {
		return nil, err
	}
	f, err := p.parseFormula()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, &ParseError{Pos: p.cur.pos, Msg: fmt.Sprintf("unexpected trailing input %q", p.cur.text)}
	}
	return f, nil
}

type parser struct {
	lex  *lexer
	cur  token
	args *ArgTable
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	if p.cur.kind != kind {
		return token{}, &ParseError{Pos: p.cur.pos, Msg: fmt.Sprintf("expected %s, got %q", what, p.cur.text)}
	}
	tok := p.cur
	return tok, p.advance()
}

// parseFormula parses `ReductionOp(Expr, axis)`.
func (p *parser) parseFormula() (*Formula, error) {
	tok, err := p.expect(tokIdent, "reduction operator")
	if err != nil {
		return nil, err
	}
	kind, ok := reductionNames[tok.text]
	if !ok {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unknown reduction %q", tok.text)}
	}
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	axis, err := p.parseIntLiteral()
	if err != nil {
		return nil, err
	}
	if axis != 0 && axis != 1 {
		return nil, &ParseError{Pos: p.cur.pos, Msg: fmt.Sprintf("reduction axis must be 0 or 1, got %d", axis)}
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	if kind == LogSumExpReduction && root.Dim != 1 {
		return nil, &DimensionMismatchError{Op: kind.String(), Expected: 1, Actual: root.Dim, Msg: "log-sum-exp requires a scalar formula"}
	}

	return &Formula{Red: Reduction{Kind: kind, Axis: axis}, Root: root, Args: p.args}, nil
}

// parseExpr parses addition and subtraction (lowest precedence).
func (p *parser) parseExpr() (*Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokPlus || p.cur.kind == tokMinus {
		op := OpAdd
		if p.cur.kind == tokMinus {
			op = OpSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left, err = NewNode(op, []*Node{left, right}, 0, 0)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// parseTerm parses multiplication and division.
func (p *parser) parseTerm() (*Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokStar || p.cur.kind == tokSlash {
		op := OpMul
		if p.cur.kind == tokSlash {
			op = OpDiv
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left, err = NewNode(op, []*Node{left, right}, 0, 0)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// parseFactor parses unary minus.
func (p *parser) parseFactor() (*Node, error) {
	if p.cur.kind == tokMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		child, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return NewNode(OpMinus, []*Node{child}, 0, 0)
	}
	return p.parsePrimary()
}

// parsePrimary parses literals, parenthesized expressions, named operator
// calls and variable references.
func (p *parser) parsePrimary() (*Node, error) {
	switch p.cur.kind {
	case tokNumber:
		v := p.cur.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return NewLit(v), nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return n, nil

	case tokIdent:
		name := p.cur.text
		pos := p.cur.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if info, isOp := namedOps[name]; isOp {
			return p.parseCall(info)
		}
		if p.cur.kind == tokLParen {
			return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("unknown operator %q", name)}
		}
		b := p.args.Lookup(name)
		if b == nil {
			return nil, &BindingError{Symbol: name, Msg: "symbol used in formula but not declared"}
		}
		return NewVar(b), nil
	}

	return nil, &ParseError{Pos: p.cur.pos, Msg: fmt.Sprintf("expected expression, got %q", p.cur.text)}
}

// parseCall parses a named operator's argument list: arity expression
// children followed by intParams integer parameters.
func (p *parser) parseCall(info opInfo) (*Node, error) {
	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	var children []*Node
	for i := 0; i < info.arity; i++ {
		if i > 0 {
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
		}
		child, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	var params [2]int
	for i := 0; i < info.intParams; i++ {
		if i > 0 || info.arity > 0 {
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
		}
		v, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		params[i] = v
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}

	return NewNode(info.op, children, params[0], params[1])
}

// parseIntLiteral parses an optionally negated integer literal, used for
// reduction axes and integer operator parameters.
func (p *parser) parseIntLiteral() (int, error) {
	neg := false
	if p.cur.kind == tokMinus {
		neg = true
		if err := p.advance(); err != nil {
			return 0, err
		}
	}
	tok, err := p.expect(tokNumber, "integer literal")
	if err != nil {
		return 0, err
	}
	if tok.num != math.Trunc(tok.num) {
		return 0, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("expected integer, got %q", tok.text)}
	}
	v := int(tok.num)
	if neg {
		v = -v
	}
	return v, nil
}
