package expr

import (
	"errors"
	"fmt"
	"math"
)

// PiName is the reserved symbol standing for the constant π. Renderers map it
// to the target language's constant and Evaluate binds it implicitly.
const PiName = "pi"

// Pi is the symbolic constant π.
var Pi Expr = S(PiName)

// ErrUnboundSymbol is returned by Evaluate when the environment lacks a value
// for a symbol that occurs in the expression.
var ErrUnboundSymbol = errors.New("expr: unbound symbol")

// Env maps symbol names (including indexed names such as "x[0]") to values.
type Env map[string]float64

// Bind stores values under base[0] .. base[len(values)-1].
func (env Env) Bind(base string, values []float64) Env {
	for i, v := range values {
		env[IndexedName(base, i)] = v
	}
	return env
}

// Evaluate computes e in float64 arithmetic.
func Evaluate(e Expr, env Env) (float64, error) {
	switch v := e.(type) {
	case *Num:
		return v.Float64(), nil
	case *Sym:
		if val, ok := env[v.name]; ok {
			return val, nil
		}
		if v.name == PiName {
			return math.Pi, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnboundSymbol, v.name)
	case *Add:
		acc := 0.0
		for _, t := range v.terms {
			tv, err := Evaluate(t, env)
			if err != nil {
				return 0, err
			}
			acc += tv
		}
		return acc, nil
	case *Mul:
		acc := 1.0
		for _, f := range v.factors {
			fv, err := Evaluate(f, env)
			if err != nil {
				return 0, err
			}
			acc *= fv
		}
		return acc, nil
	case *Pow:
		b, err := Evaluate(v.base, env)
		if err != nil {
			return 0, err
		}
		if en, ok := v.exp.(*Num); ok && en.Equal(F(1, 2)) {
			return math.Sqrt(b), nil
		}
		x, err := Evaluate(v.exp, env)
		if err != nil {
			return 0, err
		}
		return math.Pow(b, x), nil
	case *Func:
		a, err := Evaluate(v.arg, env)
		if err != nil {
			return 0, err
		}
		r, ok := v.evalFloat(a)
		if !ok {
			return 0, fmt.Errorf("expr: unsupported function %q", v.name)
		}
		return r, nil
	}
	return 0, fmt.Errorf("expr: cannot evaluate %T", e)
}

// EvaluateAll evaluates each expression of es against env.
func EvaluateAll(es []Expr, env Env) ([]float64, error) {
	out := make([]float64, len(es))
	for i, e := range es {
		v, err := Evaluate(e, env)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
