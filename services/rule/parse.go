package rule

import (
	"fmt"
	"strconv"
)

// ParseError describes where and why a rule failed to parse.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rule: parse %q: %s at offset %d", e.Input, e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokCmp
	tokPlus
	tokMinus
	tokStar
	tokSlash
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse builds an expression tree from text.
//
// Grammar, loosest binding first:
//
//	expr    = and { ("or" | "||") and }
//	and     = notx { ("and" | "&&") notx }
//	notx    = { "not" | "!" } primary
//	primary = "true" | "false" | "(" expr ")" | compare
//	compare = num cmpop num
//	num     = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = [ "-" ] ( NUMBER | IDENT | "(" num ")" )
//
// A leading "(" is ambiguous between a boolean group and a numeric operand;
// the parser tries the boolean reading first and backtracks.
func Parse(text string) (Expr, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{input: text, toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t.pos, "unexpected %q", t.text)
	}
	return e, nil
}

type parser struct {
	input string
	toks  []token
	i     int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &ParseError{Input: p.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind, want string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return token{}, p.errorf(t.pos, "expected %s, got %q", want, t.text)
	}
	return p.next(), nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch t := p.peek(); t.kind {
	case tokTrue:
		p.next()
		return &Const{Value: true}, nil
	case tokFalse:
		p.next()
		return &Const{Value: false}, nil
	case tokLParen:
		// Try "( expr )" first. If the group does not read as a boolean
		// expression, or an operator follows it, the paren opened a numeric
		// operand instead: rewind and reparse as a comparison.
		save := p.i
		p.next()
		e, err := p.parseOr()
		if err == nil {
			if _, err := p.expect(tokRParen, `")"`); err == nil && !startsNumOp(p.peek().kind) {
				return e, nil
			}
		}
		p.i = save
		return p.parseCompare()
	default:
		return p.parseCompare()
	}
}

func startsNumOp(k tokenKind) bool {
	switch k {
	case tokCmp, tokPlus, tokMinus, tokStar, tokSlash:
		return true
	}
	return false
}

func (p *parser) parseCompare() (Expr, error) {
	left, err := p.parseNum()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokCmp {
		return nil, p.errorf(t.pos, "expected comparison operator, got %q", t.text)
	}
	p.next()
	right, err := p.parseNum()
	if err != nil {
		return nil, err
	}
	return &Compare{Op: CmpOp(t.text), Left: left, Right: right}, nil
}

func (p *parser) parseNum() (NumExpr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPlus && t.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Arith{Op: ArithOp(t.text), Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (NumExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokStar && t.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Arith{Op: ArithOp(t.text), Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (NumExpr, error) {
	if p.peek().kind == tokMinus {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Arith{Op: OpSub, Left: &Lit{Value: 0}, Right: x}, nil
	}
	return p.parseNumPrimary()
}

func (p *parser) parseNumPrimary() (NumExpr, error) {
	switch t := p.peek(); t.kind {
	case tokNumber:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t.pos, "bad number %q", t.text)
		}
		return &Lit{Value: v}, nil
	case tokIdent:
		p.next()
		return &Ref{Column: t.text}, nil
	case tokLParen:
		p.next()
		e, err := p.parseNum()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, p.errorf(t.pos, "expected number, column or \"(\", got %q", t.text)
	}
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '*':
			toks = append(toks, token{tokStar, "*", i})
			i++
		case c == '/':
			toks = append(toks, token{tokSlash, "/", i})
			i++
		case c == '>' || c == '<':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokCmp, input[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokCmp, string(c), i})
				i++
			}
		case c == '=':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokCmp, "==", i})
				i += 2
			} else {
				return nil, &ParseError{Input: input, Pos: i, Msg: `unexpected "=", did you mean "=="`}
			}
		case c == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokCmp, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i})
				i++
			}
		case c == '&':
			if i+1 < len(input) && input[i+1] == '&' {
				toks = append(toks, token{tokAnd, "&&", i})
				i += 2
			} else {
				return nil, &ParseError{Input: input, Pos: i, Msg: `unexpected "&", did you mean "&&"`}
			}
		case c == '|':
			if i+1 < len(input) && input[i+1] == '|' {
				toks = append(toks, token{tokOr, "||", i})
				i += 2
			} else {
				return nil, &ParseError{Input: input, Pos: i, Msg: `unexpected "|", did you mean "||"`}
			}
		case isDigit(c) || (c == '.' && i+1 < len(input) && isDigit(input[i+1])):
			start := i
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, input[start:i], start})
		case isAlpha(c):
			start := i
			for i < len(input) && (isAlpha(input[i]) || isDigit(input[i])) {
				i++
			}
			word := input[start:i]
			switch word {
			case "and":
				toks = append(toks, token{tokAnd, word, start})
			case "or":
				toks = append(toks, token{tokOr, word, start})
			case "not":
				toks = append(toks, token{tokNot, word, start})
			case "true":
				toks = append(toks, token{tokTrue, word, start})
			case "false":
				toks = append(toks, token{tokFalse, word, start})
			default:
				toks = append(toks, token{tokIdent, word, start})
			}
		default:
			return nil, &ParseError{Input: input, Pos: i, Msg: fmt.Sprintf("unexpected character %q", string(c))}
		}
	}
	toks = append(toks, token{tokEOF, "end of input", len(input)})
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
