package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax is returned by Parse for malformed input.
var ErrSyntax = errors.New("expr: syntax error")

// ============================================================
// Tokenizer
// ============================================================

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || c == '.':
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					i = j
					for i < len(src) && isDigit(src[i]) {
						i++
					}
				}
			}
			toks = append(toks, token{tokNum, src[start:i], start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '_' || unicode.IsLetter(rune(src[i]))) {
				i++
			}
			toks = append(toks, token{tokIdent, src[start:i], start})
		case c == '*' && i+1 < len(src) && src[i+1] == '*':
			toks = append(toks, token{tokOp, "^", i})
			i += 2
		case strings.ContainsRune("+-*/^", c):
			toks = append(toks, token{tokOp, string(c), i})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ============================================================
// Recursive-descent parser
// ============================================================

// Parse reads an infix expression such as "x[1]*cos(x[0]) - m*l^2/2".
//
//	expr   := term (('+' | '-') term)*
//	term   := unary (('*' | '/') unary)*
//	unary  := '-' unary | power
//	power  := atom ('^' unary)?        ('**' is accepted for '^')
//	atom   := number | ident | ident '[' int ']' | ident '(' expr ')' | '(' expr ')'
//
// Identifiers naming a supported function must be applied; every other
// identifier becomes a symbol. Decimal literals keep their float64 value.
func Parse(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return e, nil
}

// MustParse is Parse for literals known to be valid; it panics on error.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		if t.kind == tokEOF {
			return t, fmt.Errorf("%w: expected %s at end of input", ErrSyntax, what)
		}
		return t, fmt.Errorf("%w: expected %s, got %q at %d", ErrSyntax, what, t.text, t.pos)
	}
	return t, nil
}

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			break
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			right = Neg(right)
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return AddOf(terms...), nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	factors := []Expr{left}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/") {
			break
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "/" {
			if n, ok := right.(*Num); ok && n.IsZero() {
				return nil, fmt.Errorf("%w: division by zero at %d", ErrSyntax, t.pos)
			}
			right = PowOf(right, N(-1))
		}
		factors = append(factors, right)
	}
	if len(factors) == 1 {
		return left, nil
	}
	return MulOf(factors...), nil
}

func (p *parser) parseUnary() (Expr, error) {
	if t := p.peek(); t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return Neg(operand), nil
		}
		return operand, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp && t.text == "^" {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if bn, ok := base.(*Num); ok && bn.IsZero() {
			if en, ok := exp.(*Num); ok && !en.IsPositive() {
				return nil, fmt.Errorf("%w: 0 raised to a non-positive power at %d", ErrSyntax, t.pos)
			}
		}
		return PowOf(base, exp), nil
	}
	return base, nil
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return parseNumber(t)
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case tokIdent:
		return p.parseIdent(t)
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
}

func (p *parser) parseIdent(t token) (Expr, error) {
	switch p.peek().kind {
	case tokLParen:
		if !isCallable(t.text) {
			return nil, fmt.Errorf("%w: unknown function %q at %d", ErrSyntax, t.text, t.pos)
		}
		p.next()
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		if t.text == "sqrt" {
			return SqrtOf(arg), nil
		}
		e, _ := Apply(t.text, arg)
		return e, nil
	case tokLBracket:
		p.next()
		idx, err := p.expect(tokNum, "index")
		if err != nil {
			return nil, err
		}
		i, convErr := strconv.Atoi(idx.text)
		if convErr != nil || i < 0 {
			return nil, fmt.Errorf("%w: bad index %q at %d", ErrSyntax, idx.text, idx.pos)
		}
		if _, err := p.expect(tokRBracket, "']'"); err != nil {
			return nil, err
		}
		return S(IndexedName(t.text, i)), nil
	}
	if isCallable(t.text) {
		return nil, fmt.Errorf("%w: function %q needs an argument at %d", ErrSyntax, t.text, t.pos)
	}
	return S(t.text), nil
}

// isCallable accepts sqrt on top of the function table; it parses to x^(1/2).
func isCallable(name string) bool { return name == "sqrt" || IsFunc(name) }

func parseNumber(t token) (Expr, error) {
	if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
		return N(i), nil
	}
	f, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q at %d", ErrSyntax, t.text, t.pos)
	}
	return NFloat(f), nil
}
