package expr

import (
	"math"
	"sort"
)

// ============================================================
// Func — named function applications
// ============================================================

type Func struct {
	name string
	arg  Expr
}

type funcSpec struct {
	eval  func(float64) float64
	deriv func(arg Expr) Expr
}

// funcTable lists every function the kernel can differentiate, evaluate and
// emit. Parse and FromJSON reject names outside it. It is filled in init
// because the derivative rules call back into the constructors.
var funcTable map[string]funcSpec

func init() {
	funcTable = map[string]funcSpec{
		"sin":  {math.Sin, func(a Expr) Expr { return CosOf(a) }},
		"cos":  {math.Cos, func(a Expr) Expr { return Neg(SinOf(a)) }},
		"tan":  {math.Tan, func(a Expr) Expr { return AddOf(N(1), PowOf(TanOf(a), N(2))) }},
		"exp":  {math.Exp, func(a Expr) Expr { return ExpOf(a) }},
		"ln":   {math.Log, func(a Expr) Expr { return PowOf(a, N(-1)) }},
		"asin": {math.Asin, func(a Expr) Expr { return PowOf(SubOf(N(1), PowOf(a, N(2))), F(-1, 2)) }},
		"acos": {math.Acos, func(a Expr) Expr { return Neg(PowOf(SubOf(N(1), PowOf(a, N(2))), F(-1, 2))) }},
		"atan": {math.Atan, func(a Expr) Expr { return PowOf(AddOf(N(1), PowOf(a, N(2))), N(-1)) }},
		"sinh": {math.Sinh, func(a Expr) Expr { return CoshOf(a) }},
		"cosh": {math.Cosh, func(a Expr) Expr { return SinhOf(a) }},
		"tanh": {math.Tanh, func(a Expr) Expr { return SubOf(N(1), PowOf(TanhOf(a), N(2))) }},
		"abs":  {math.Abs, func(a Expr) Expr { return DivOf(a, AbsOf(a)) }},
		// floor and ceil are piecewise constant; their derivative is zero almost everywhere.
		"floor": {math.Floor, func(Expr) Expr { return N(0) }},
		"ceil":  {math.Ceil, func(Expr) Expr { return N(0) }},
	}
}

// FuncNames returns the supported function names in sorted order.
func FuncNames() []string {
	names := make([]string, 0, len(funcTable))
	for name := range funcTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsFunc reports whether name is a supported function.
func IsFunc(name string) bool {
	_, ok := funcTable[name]
	return ok
}

func funcOf(name string, arg Expr) *Func { return &Func{name: name, arg: arg} }

// Apply builds name(arg). The name must be one of FuncNames.
func Apply(name string, arg Expr) (Expr, bool) {
	if !IsFunc(name) {
		return nil, false
	}
	return funcOf(name, arg).Simplify(), true
}

func SinOf(arg Expr) Expr   { return funcOf("sin", arg).Simplify() }
func CosOf(arg Expr) Expr   { return funcOf("cos", arg).Simplify() }
func TanOf(arg Expr) Expr   { return funcOf("tan", arg).Simplify() }
func ExpOf(arg Expr) Expr   { return funcOf("exp", arg).Simplify() }
func LnOf(arg Expr) Expr    { return funcOf("ln", arg).Simplify() }
func AbsOf(arg Expr) Expr   { return funcOf("abs", arg).Simplify() }
func AsinOf(arg Expr) Expr  { return funcOf("asin", arg).Simplify() }
func AcosOf(arg Expr) Expr  { return funcOf("acos", arg).Simplify() }
func AtanOf(arg Expr) Expr  { return funcOf("atan", arg).Simplify() }
func SinhOf(arg Expr) Expr  { return funcOf("sinh", arg).Simplify() }
func CoshOf(arg Expr) Expr  { return funcOf("cosh", arg).Simplify() }
func TanhOf(arg Expr) Expr  { return funcOf("tanh", arg).Simplify() }
func FloorOf(arg Expr) Expr { return funcOf("floor", arg).Simplify() }
func CeilOf(arg Expr) Expr  { return funcOf("ceil", arg).Simplify() }

func (f *Func) Simplify() Expr {
	arg := f.arg.Simplify()
	// Only the exact identities at zero fold (sin 0, cos 0, exp 0, ...);
	// other numeric arguments stay symbolic so emitted code keeps them.
	if n, ok := arg.(*Num); ok && n.IsZero() {
		if v, ok := f.evalFloat(0); ok && !math.IsNaN(v) && !math.IsInf(v, 0) && v == math.Trunc(v) {
			return NFloat(v)
		}
	}
	switch f.name {
	case "ln":
		if n, ok := arg.(*Num); ok && n.IsOne() {
			return N(0)
		}
		if inner, ok := arg.(*Func); ok && inner.name == "exp" {
			return inner.arg
		}
	case "exp":
		if inner, ok := arg.(*Func); ok && inner.name == "ln" {
			return inner.arg
		}
	case "abs":
		if n, ok := arg.(*Num); ok {
			if n.IsNegative() {
				return numNeg(n)
			}
			return n
		}
		if m, ok := arg.(*Mul); ok && len(m.factors) >= 2 {
			if coeff, ok2 := m.factors[0].(*Num); ok2 && coeff.IsNegOne() {
				return AbsOf(MulOf(m.factors[1:]...))
			}
		}
	}
	return &Func{name: f.name, arg: arg}
}

func (f *Func) evalFloat(v float64) (float64, bool) {
	spec, ok := funcTable[f.name]
	if !ok {
		return 0, false
	}
	return spec.eval(v), true
}

func (f *Func) String() string { return f.name + "(" + f.arg.String() + ")" }

func (f *Func) Sub(varName string, value Expr) Expr {
	return funcOf(f.name, f.arg.Sub(varName, value)).Simplify()
}

// Diff applies the chain rule using the derivative recorded in funcTable.
func (f *Func) Diff(varName string) Expr {
	du := f.arg.Diff(varName)
	if isZero(du) {
		return N(0)
	}
	spec, ok := funcTable[f.name]
	if !ok {
		return MulOf(funcOf("D["+f.name+"]", f.arg), du)
	}
	return MulOf(spec.deriv(f.arg), du)
}

func (f *Func) Eval() (*Num, bool) {
	n, ok := f.arg.Eval()
	if !ok {
		return nil, false
	}
	v, ok := f.evalFloat(n.Float64())
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return NFloat(v), true
}

func (f *Func) Equal(other Expr) bool {
	o, ok := other.(*Func)
	return ok && f.name == o.name && f.arg.Equal(o.arg)
}

func (f *Func) exprType() string { return "func" }
func (f *Func) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "func", "name": f.name, "arg": f.arg.toJSON()}
}
func (f *Func) FuncName() string { return f.name }
func (f *Func) Arg() Expr        { return f.arg }
