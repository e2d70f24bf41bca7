package emit

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/njchilds90/autogenu/expr"
)

// Operator precedence of printed fragments.
const (
	precAdd = iota + 1
	precMul
	precUnary
	precAtom
)

// dialect holds the spelling of math in one target language.
type dialect struct {
	funcs map[string]string
	pow   string
	sqrt  string
	pi    string
	one   string // floating-point one, numerator of reciprocals
}

var cppDialect = dialect{
	funcs: map[string]string{
		"sin": "sin", "cos": "cos", "tan": "tan", "exp": "exp", "ln": "log",
		"asin": "asin", "acos": "acos", "atan": "atan",
		"sinh": "sinh", "cosh": "cosh", "tanh": "tanh",
		"abs": "fabs", "floor": "floor", "ceil": "ceil",
	},
	pow:  "pow",
	sqrt: "sqrt",
	pi:   "M_PI",
	one:  "1.0",
}

var goDialect = dialect{
	funcs: map[string]string{
		"sin": "math.Sin", "cos": "math.Cos", "tan": "math.Tan", "exp": "math.Exp", "ln": "math.Log",
		"asin": "math.Asin", "acos": "math.Acos", "atan": "math.Atan",
		"sinh": "math.Sinh", "cosh": "math.Cosh", "tanh": "math.Tanh",
		"abs": "math.Abs", "floor": "math.Floor", "ceil": "math.Ceil",
	},
	pow:  "math.Pow",
	sqrt: "math.Sqrt",
	pi:   "math.Pi",
	one:  "1.0",
}

// printer renders expressions in infix form, keeping operand order so the
// rendered arithmetic matches the IR.
type printer struct {
	d dialect
	// usedMath records whether any library call or constant was printed.
	usedMath bool
}

func (p *printer) String(e expr.Expr) string {
	s, _ := p.print(e)
	return s
}

func (p *printer) wrap(e expr.Expr, min int) string {
	s, prec := p.print(e)
	if prec < min {
		return "(" + s + ")"
	}
	return s
}

func (p *printer) print(e expr.Expr) (string, int) {
	switch v := e.(type) {
	case *expr.Num:
		s := formatRat(v.Rat())
		if v.IsNegative() {
			return s, precUnary
		}
		return s, precAtom
	case *expr.Sym:
		if v.Name() == expr.PiName {
			p.usedMath = true
			return p.d.pi, precAtom
		}
		return v.Name(), precAtom
	case *expr.Add:
		return p.printAdd(v.Terms())
	case *expr.Mul:
		return p.printMul(v.Factors())
	case *expr.Pow:
		if n, ok := v.ExpExpr().(*expr.Num); ok && n.IsNegative() {
			return p.printMul([]expr.Expr{v})
		}
		return p.printPow(v.Base(), v.ExpExpr()), precAtom
	case *expr.Func:
		p.usedMath = true
		name, ok := p.d.funcs[v.FuncName()]
		if !ok {
			name = v.FuncName()
		}
		return name + "(" + p.String(v.Arg()) + ")", precAtom
	}
	return e.String(), precAtom
}

func (p *printer) printAdd(terms []expr.Expr) (string, int) {
	var b strings.Builder
	for i, t := range terms {
		if i > 0 {
			if pos, ok := p.negated(t); ok {
				b.WriteString(" - ")
				b.WriteString(pos)
				continue
			}
			b.WriteString(" + ")
		}
		b.WriteString(p.wrap(t, precAdd))
	}
	return b.String(), precAdd
}

// negated prints -t when t carries a negative sign, ready to follow " - ".
func (p *printer) negated(t expr.Expr) (string, bool) {
	switch v := t.(type) {
	case *expr.Num:
		if v.IsNegative() {
			return formatRat(new(big.Rat).Neg(v.Rat())), true
		}
	case *expr.Mul:
		fs := v.Factors()
		if c, ok := fs[0].(*expr.Num); ok && c.IsNegative() {
			s, prec := p.printProduct(new(big.Rat).Neg(c.Rat()), fs[1:])
			if prec <= precAdd {
				s = "(" + s + ")"
			}
			return s, true
		}
	}
	return "", false
}

func (p *printer) printMul(factors []expr.Expr) (string, int) {
	coeff := big.NewRat(1, 1)
	rest := factors
	if c, ok := factors[0].(*expr.Num); ok {
		coeff = c.Rat()
		rest = factors[1:]
	}
	if coeff.Sign() < 0 {
		s, prec := p.printProduct(new(big.Rat).Neg(coeff), rest)
		if prec <= precAdd || strings.HasPrefix(s, "-") {
			s = "(" + s + ")"
		}
		return "-" + s, precUnary
	}
	return p.printProduct(coeff, rest)
}

// printProduct prints coeff * Π rest with a positive coefficient, gathering
// negative powers into a single denominator.
func (p *printer) printProduct(coeff *big.Rat, rest []expr.Expr) (string, int) {
	unit := coeff.Cmp(big.NewRat(1, 1)) == 0
	if len(rest) == 0 {
		return formatRat(coeff), precAtom
	}
	var num, den []string
	if !unit {
		num = append(num, formatRat(coeff))
	}
	for _, f := range rest {
		if pw, ok := f.(*expr.Pow); ok {
			if n, ok := pw.ExpExpr().(*expr.Num); ok && n.IsNegative() {
				den = append(den, p.printPowRat(pw.Base(), new(big.Rat).Neg(n.Rat())))
				continue
			}
		}
		num = append(num, p.wrap(f, precMul))
	}
	if len(den) == 0 {
		if unit && len(rest) == 1 {
			return p.print(rest[0])
		}
		return strings.Join(num, "*"), precMul
	}
	numStr := p.d.one
	if len(num) > 0 {
		numStr = strings.Join(num, "*")
	}
	denStr := den[0]
	if len(den) > 1 {
		denStr = "(" + strings.Join(den, "*") + ")"
	}
	return numStr + "/" + denStr, precMul
}

// printPowRat prints base^r for r > 0 as an atom.
func (p *printer) printPowRat(base expr.Expr, r *big.Rat) string {
	switch {
	case r.Cmp(big.NewRat(1, 1)) == 0:
		return p.wrap(base, precAtom)
	case r.Cmp(big.NewRat(1, 2)) == 0:
		p.usedMath = true
		return p.d.sqrt + "(" + p.String(base) + ")"
	}
	p.usedMath = true
	return p.d.pow + "(" + p.String(base) + ", " + formatRat(r) + ")"
}

func (p *printer) printPow(base, exp expr.Expr) string {
	if n, ok := exp.(*expr.Num); ok {
		return p.printPowRat(base, n.Rat())
	}
	p.usedMath = true
	return p.d.pow + "(" + p.String(base) + ", " + p.String(exp) + ")"
}

// formatRat prints integers below 2^53 exactly and everything else as the
// shortest float64 literal; both forms are valid C++ and Go.
func formatRat(r *big.Rat) string {
	if r.IsInt() && r.Num().IsInt64() {
		if n := r.Num().Int64(); n > -(1<<53) && n < 1<<53 {
			return strconv.FormatInt(n, 10)
		}
	}
	f, _ := r.Float64()
	return formatFloat(f)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "0"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
