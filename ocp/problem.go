// Package ocp declares an optimal-control problem and derives the conditions
// a continuation/GMRES solver needs: the Hamiltonian and its gradients.
//
// A Problem owns the parameter registry and the symbolic handles for time,
// state and input. After SetFunctions, Formulate derives a Model and Freeze
// takes a read-only Spec for the emitter.
package ocp

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/njchilds90/autogenu/expr"
)

// Symbol names used by the formulation and every emitted routine.
const (
	TimeName    = "t"
	StateName   = "x"
	InputName   = "u"
	CostateName = "lmd"
	EpsilonName = "fb_eps"
)

// Functions is the user's description of the problem. Expressions may use
// t, x[0..nx), u[0..nu) and any declared parameter.
type Functions struct {
	F            []expr.Expr // dynamics, length nx
	StageCost    expr.Expr
	TerminalCost expr.Expr
	Equality     []expr.Expr // C(x, u) = 0
	Inequality   []expr.Expr // h(x, u) <= 0, Fischer-Burmeister
}

// Saturation bounds one input component, Min <= u[Index] <= Max. It is
// handled by the solver's condensation of dummy inputs, not by the
// Hamiltonian.
type Saturation struct {
	Index           int
	Min             float64
	Max             float64
	DummyWeight     float64
	QuadraticWeight float64
}

// Option configures a Problem.
type Option func(*Problem)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Problem) {
		if l != nil {
			p.logger = l
		}
	}
}

// Problem is a mutable problem description. It is not safe for concurrent use.
type Problem struct {
	name     string
	nx, nu   int
	registry *Registry
	t        expr.Expr
	x, u     []expr.Expr

	functions   *Functions
	fbEps       []float64
	saturations []Saturation

	logger *slog.Logger
}

// New creates a problem with nx states and nu inputs.
func New(name string, nx, nu int, opts ...Option) (*Problem, error) {
	if !identRe.MatchString(name) {
		return nil, fmt.Errorf("%w: problem %q", ErrInvalidName, name)
	}
	if nx <= 0 || nu <= 0 {
		return nil, fmt.Errorf("%w: nx=%d nu=%d", ErrInvalidDimension, nx, nu)
	}
	p := &Problem{
		name:     name,
		nx:       nx,
		nu:       nu,
		registry: NewRegistry(),
		t:        expr.S(TimeName),
		x:        expr.Indexed(StateName, nx),
		u:        expr.Indexed(InputName, nu),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "ocp"), slog.String("problem", name))
	return p, nil
}

func (p *Problem) Name() string { return p.name }
func (p *Problem) NX() int      { return p.nx }
func (p *Problem) NU() int      { return p.nu }

// T returns the time symbol.
func (p *Problem) T() expr.Expr { return p.t }

// X returns the state symbols x[0..nx).
func (p *Problem) X() []expr.Expr { return append([]expr.Expr(nil), p.x...) }

// U returns the input symbols u[0..nu).
func (p *Problem) U() []expr.Expr { return append([]expr.Expr(nil), p.u...) }

// Registry exposes the parameter registry for read access.
func (p *Problem) Registry() *Registry { return p.registry }

// ============================================================
// Parameters
// ============================================================

func (p *Problem) DefineScalar(name string, value float64) (expr.Expr, error) {
	sym, err := p.registry.DefineScalar(name, value)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("scalar declared", slog.String("name", name), slog.Float64("value", value))
	return sym, nil
}

func (p *Problem) DefineScalars(names ...string) ([]expr.Expr, error) {
	syms, err := p.registry.DefineScalars(names...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("scalars declared", slog.Any("names", names))
	return syms, nil
}

func (p *Problem) DefineArray(name string, dim int, values []float64) ([]expr.Expr, error) {
	syms, err := p.registry.DefineArray(name, dim, values)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("array declared", slog.String("name", name), slog.Int("dim", dim))
	return syms, nil
}

func (p *Problem) SetScalar(name string, value float64) error {
	return p.registry.SetScalar(name, value)
}

func (p *Problem) SetScalars(values map[string]float64) error {
	return p.registry.SetScalars(values)
}

func (p *Problem) SetArray(name string, values []float64) error {
	return p.registry.SetArray(name, values)
}

// ============================================================
// Functions, regularization and saturation
// ============================================================

// SetFunctions validates and stores the problem functions, replacing any
// earlier ones.
func (p *Problem) SetFunctions(fn Functions) error {
	if len(fn.F) != p.nx {
		return fmt.Errorf("%w: dynamics has %d components, nx=%d", ErrDimensionMismatch, len(fn.F), p.nx)
	}
	if fn.StageCost == nil || fn.TerminalCost == nil {
		return fmt.Errorf("%w: stage and terminal cost are required", ErrFunctionsNotSet)
	}
	known := p.knownSymbols()
	check := func(what string, es ...expr.Expr) error {
		for i, e := range es {
			if e == nil {
				return fmt.Errorf("%w: %s[%d] is nil", ErrFunctionsNotSet, what, i)
			}
			for _, name := range expr.SortedSymbols(e) {
				if _, ok := known[name]; !ok {
					return fmt.Errorf("%w: %s[%d] uses %q", ErrUndeclaredSymbol, what, i, name)
				}
			}
		}
		return nil
	}
	for _, part := range []struct {
		what string
		es   []expr.Expr
	}{
		{"f", fn.F},
		{"stage_cost", []expr.Expr{fn.StageCost}},
		{"terminal_cost", []expr.Expr{fn.TerminalCost}},
		{"equality", fn.Equality},
		{"inequality", fn.Inequality},
	} {
		if err := check(part.what, part.es...); err != nil {
			return err
		}
	}
	p.functions = &Functions{
		F:            append([]expr.Expr(nil), fn.F...),
		StageCost:    fn.StageCost,
		TerminalCost: fn.TerminalCost,
		Equality:     append([]expr.Expr(nil), fn.Equality...),
		Inequality:   append([]expr.Expr(nil), fn.Inequality...),
	}
	p.logger.Info("functions set",
		slog.Int("nc", len(fn.Equality)),
		slog.Int("nh", len(fn.Inequality)))
	return nil
}

func (p *Problem) knownSymbols() map[string]struct{} {
	known := map[string]struct{}{TimeName: {}, expr.PiName: {}}
	for _, s := range p.x {
		known[s.String()] = struct{}{}
	}
	for _, s := range p.u {
		known[s.String()] = struct{}{}
	}
	p.registry.symbolNames(known)
	return known
}

// SetFBEpsilon stores the Fischer-Burmeister regularization, one
// non-negative entry per inequality constraint.
func (p *Problem) SetFBEpsilon(eps []float64) error {
	for i, e := range eps {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("%w: fb_eps[%d] = %v", ErrInvalidValue, i, e)
		}
		if e < 0 {
			return fmt.Errorf("%w: fb_eps[%d] = %v", ErrNegativeEpsilon, i, e)
		}
	}
	p.fbEps = append([]float64{}, eps...)
	return nil
}

// AddInputSaturation registers a box constraint on one input component. A
// second registration for the same index replaces the first in place.
func (p *Problem) AddInputSaturation(s Saturation) error {
	switch {
	case s.Index < 0 || s.Index >= p.nu:
		return fmt.Errorf("%w: index %d outside [0, %d)", ErrInvalidSaturation, s.Index, p.nu)
	case math.IsNaN(s.Min) || math.IsNaN(s.Max) || !(s.Min < s.Max):
		return fmt.Errorf("%w: u[%d] needs min < max, got [%v, %v]", ErrInvalidSaturation, s.Index, s.Min, s.Max)
	case !(s.DummyWeight >= 0) || !(s.QuadraticWeight >= 0):
		return fmt.Errorf("%w: u[%d] weights must be non-negative", ErrInvalidSaturation, s.Index)
	}
	for i := range p.saturations {
		if p.saturations[i].Index == s.Index {
			p.saturations[i] = s
			p.logger.Debug("input saturation replaced", slog.Int("index", s.Index))
			return nil
		}
	}
	p.saturations = append(p.saturations, s)
	p.logger.Debug("input saturation added", slog.Int("index", s.Index))
	return nil
}

// Saturations returns the registered descriptors ordered by input index.
func (p *Problem) Saturations() []Saturation {
	out := append([]Saturation(nil), p.saturations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ============================================================
// Snapshot
// ============================================================

// Spec is a frozen snapshot of a formulated problem: later changes to the
// Problem do not affect it.
type Spec struct {
	Name        string
	Params      []Param
	FBEpsilon   []float64
	Saturations []Saturation
	Model       *Model
}

// Freeze formulates the problem and snapshots every value the emitter needs.
func (p *Problem) Freeze() (*Spec, error) {
	m, err := p.Formulate()
	if err != nil {
		return nil, err
	}
	return &Spec{
		Name:        p.name,
		Params:      p.registry.Params(),
		FBEpsilon:   append([]float64(nil), p.fbEps...),
		Saturations: p.Saturations(),
		Model:       m,
	}, nil
}

// Env binds every parameter value and the regularization vector, ready for
// expr.Evaluate.
func (s *Spec) Env() expr.Env {
	env := expr.Env{}
	for _, prm := range s.Params {
		for i, sym := range prm.Symbols {
			env[sym.String()] = prm.Values[i]
		}
	}
	return env.Bind(EpsilonName, s.FBEpsilon)
}
