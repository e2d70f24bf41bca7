package emit

import (
	"fmt"

	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/ocp"
)

// Inputs are the numeric arguments of a routine call. Routines ignore the
// fields they do not take.
type Inputs struct {
	T   float64
	X   []float64
	U   []float64 // augmented input, length nuc
	Lmd []float64
}

func (in Inputs) arg(name string) []float64 {
	switch name {
	case ocp.StateName:
		return in.X
	case ocp.InputName:
		return in.U
	case ocp.CostateName:
		return in.Lmd
	}
	return nil
}

// Env binds every constant of the unit.
func (u *Unit) Env() expr.Env {
	env := expr.Env{}
	for _, c := range u.Consts {
		if c.Array {
			env.Bind(c.Name, c.Values)
		} else {
			env[c.Name] = c.Values[0]
		}
	}
	return env
}

// Call evaluates the named routine on in and returns its output buffer.
func (u *Unit) Call(name string, in Inputs) ([]float64, error) {
	r, ok := u.Routine(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoutine, name)
	}
	return r.Eval(u.Env(), in)
}

// Eval runs the statements in order against consts. Temporaries are visible
// to every later statement; outputs are written by index.
func (r *Routine) Eval(consts expr.Env, in Inputs) ([]float64, error) {
	env := make(expr.Env, len(consts)+8)
	for k, v := range consts {
		env[k] = v
	}
	for _, a := range r.Args {
		if a.Dim == 0 {
			env[a.Name] = in.T
			continue
		}
		vals := in.arg(a.Name)
		if len(vals) != a.Dim {
			return nil, fmt.Errorf("%w: %s(%s) needs %d values, got %d", ErrInputSize, r.Name, a.Name, a.Dim, len(vals))
		}
		env.Bind(a.Name, vals)
	}
	out := make([]float64, r.Out.Dim)
	for _, s := range r.Stmts {
		v, err := expr.Evaluate(s.Value, env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name, err)
		}
		if s.Temp != "" {
			env[s.Temp] = v
			continue
		}
		out[s.Index] = v
	}
	return out, nil
}
