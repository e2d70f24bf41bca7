// Package emit lowers a frozen problem into a target-neutral IR of constant
// declarations and evaluation routines, then renders it as C++ or Go.
//
// The IR is also directly executable through Unit.Call, which evaluates the
// routines in float64 the same way the rendered code would.
package emit

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/ocp"
)

var (
	ErrIncompleteSpec = errors.New("emit: problem is not formulated")
	ErrUnknownRoutine = errors.New("emit: unknown routine")
	ErrInputSize      = errors.New("emit: input has the wrong size")
	ErrUnknownTarget  = errors.New("emit: unknown target")
)

// Routine names, in emission order.
const (
	RoutineF    = "f"
	RoutinePhix = "phix"
	RoutineHx   = "hx"
	RoutineHu   = "hu"
)

// DefaultTempPrefix names CSE temporaries tmp0, tmp1, ...
const DefaultTempPrefix = "tmp"

// Dimensions are the sizes exported by every rendering. NC counts equality
// and inequality constraints together; NH repeats the inequality share.
type Dimensions struct {
	NX, NU, NC, NH, NUC, NUB int
}

// Const is a named parameter declaration, scalar or fixed-size array.
type Const struct {
	Name   string
	Values []float64
	Array  bool
}

// Bounds is the box-constraint block consumed by the saturation-aware solver.
type Bounds struct {
	Indices         []int
	Min, Max        []float64
	DummyWeight     []float64
	QuadraticWeight []float64
}

// Arg is a routine parameter. Dim 0 marks a scalar.
type Arg struct {
	Name string
	Dim  int
}

// Stmt is one assignment: a local temporary when Temp is set, otherwise
// output component Index.
type Stmt struct {
	Temp  string
	Index int
	Value expr.Expr
}

// Routine writes Out[0..Out.Dim) from its arguments and the unit constants.
type Routine struct {
	Name  string
	Doc   string
	Args  []Arg
	Out   Arg
	Stmts []Stmt
}

// Unit is everything emitted for one problem.
type Unit struct {
	Name        string
	Dims        Dimensions
	Consts      []Const
	Bounds      *Bounds
	Routines    []Routine
	Diagnostics []string
}

// Options select the optional passes.
type Options struct {
	// Simplify deep-normalises every expression before CSE.
	Simplify bool
	// CSE factors repeated subexpressions into temporaries.
	CSE bool
	// TempPrefix overrides DefaultTempPrefix.
	TempPrefix string
	// BoundConstraints emits the saturation block. Without it registered
	// saturations are reported in Unit.Diagnostics.
	BoundConstraints bool
	Logger           *slog.Logger
}

// Build lowers spec into a Unit. Every precondition is checked before any
// routine is built.
func Build(spec *ocp.Spec, opts Options) (*Unit, error) {
	if spec == nil || spec.Model == nil {
		return nil, ErrIncompleteSpec
	}
	m := spec.Model
	if m.NH > 0 && len(spec.FBEpsilon) != m.NH {
		return nil, fmt.Errorf("%w: nh=%d, fb_eps has %d entries", ocp.ErrMissingEpsilon, m.NH, len(spec.FBEpsilon))
	}
	if len(m.F) != m.NX || len(m.Phix) != m.NX || len(m.Hx) != m.NX || len(m.Hu) != m.NUC() {
		return nil, fmt.Errorf("%w: expression vectors do not match nx=%d nuc=%d", ocp.ErrDimensionMismatch, m.NX, m.NUC())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "emit"), slog.String("problem", spec.Name))
	prefix := opts.TempPrefix
	if prefix == "" {
		prefix = DefaultTempPrefix
	}

	if opts.Simplify {
		m = m.Normalize()
	}

	u := &Unit{
		Name: spec.Name,
		Dims: Dimensions{NX: m.NX, NU: m.NU, NC: m.NC + m.NH, NH: m.NH, NUC: m.NUC()},
	}
	for _, p := range spec.Params {
		u.Consts = append(u.Consts, Const{
			Name:   p.Name,
			Values: append([]float64(nil), p.Values...),
			Array:  p.Kind == ocp.Array,
		})
	}
	if m.NH > 0 {
		u.Consts = append(u.Consts, Const{
			Name:   ocp.EpsilonName,
			Values: append([]float64(nil), spec.FBEpsilon...),
			Array:  true,
		})
	}

	if len(spec.Saturations) > 0 {
		if opts.BoundConstraints {
			u.Bounds = buildBounds(spec.Saturations)
			u.Dims.NUB = len(spec.Saturations)
		} else {
			idx := make([]string, len(spec.Saturations))
			for i, s := range spec.Saturations {
				idx[i] = expr.IndexedName(ocp.InputName, s.Index)
			}
			msg := fmt.Sprintf("input saturation on %s is registered but not consumed by the selected solver", strings.Join(idx, ", "))
			u.Diagnostics = append(u.Diagnostics, msg)
			logger.Warn(msg)
		}
	}

	t := Arg{Name: ocp.TimeName}
	x := Arg{Name: ocp.StateName, Dim: m.NX}
	uc := Arg{Name: ocp.InputName, Dim: m.NUC()}
	lmd := Arg{Name: ocp.CostateName, Dim: m.NX}
	defs := []struct {
		name, doc string
		args      []Arg
		out       Arg
		es        []expr.Expr
	}{
		{RoutineF, "state equation dx = f(t, x, u)", []Arg{t, x, uc}, Arg{Name: "dx", Dim: m.NX}, m.F},
		{RoutinePhix, "terminal cost gradient phix = dphi/dx(t, x)", []Arg{t, x}, Arg{Name: "phix", Dim: m.NX}, m.Phix},
		{RoutineHx, "Hamiltonian gradient hx = dH/dx(t, x, u, lmd)", []Arg{t, x, uc, lmd}, Arg{Name: "hx", Dim: m.NX}, m.Hx},
		{RoutineHu, "Hamiltonian gradient hu = dH/du(t, x, u, lmd)", []Arg{t, x, uc, lmd}, Arg{Name: "hu", Dim: m.NUC()}, m.Hu},
	}
	for _, d := range defs {
		r := Routine{Name: d.name, Doc: d.doc, Args: d.args, Out: d.out}
		outs := d.es
		if opts.CSE {
			var repl []expr.Replacement
			repl, outs = expr.CSE(d.es, prefix)
			for _, rp := range repl {
				r.Stmts = append(r.Stmts, Stmt{Temp: rp.Name, Value: rp.Value})
			}
		}
		for i, e := range outs {
			r.Stmts = append(r.Stmts, Stmt{Index: i, Value: e})
		}
		u.Routines = append(u.Routines, r)
		logger.Debug("routine built", slog.String("routine", d.name), slog.Int("statements", len(r.Stmts)))
	}
	logger.Info("unit built",
		slog.Bool("simplify", opts.Simplify),
		slog.Bool("cse", opts.CSE),
		slog.Int("consts", len(u.Consts)),
		slog.Int("diagnostics", len(u.Diagnostics)))
	return u, nil
}

func buildBounds(sats []ocp.Saturation) *Bounds {
	b := &Bounds{}
	for _, s := range sats {
		b.Indices = append(b.Indices, s.Index)
		b.Min = append(b.Min, s.Min)
		b.Max = append(b.Max, s.Max)
		b.DummyWeight = append(b.DummyWeight, s.DummyWeight)
		b.QuadraticWeight = append(b.QuadraticWeight, s.QuadraticWeight)
	}
	return b
}

// Routine returns the named routine.
func (u *Unit) Routine(name string) (*Routine, bool) {
	for i := range u.Routines {
		if u.Routines[i].Name == name {
			return &u.Routines[i], true
		}
	}
	return nil, false
}

// Temps counts the CSE temporaries of a routine.
func (r *Routine) Temps() int {
	n := 0
	for _, s := range r.Stmts {
		if s.Temp != "" {
			n++
		}
	}
	return n
}
