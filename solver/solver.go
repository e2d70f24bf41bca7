// Package solver assembles the configuration of a continuation/GMRES NMPC
// solver and renders the entry point that drives it.
//
// The configuration is split into six groups, each set independently on an
// Assembler: strategy, horizon, discretization, settings, initialization and
// simulation. Assemble checks that every group is present and consistent with
// an emitted unit before anything is rendered.
package solver

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/njchilds90/autogenu/emit"
)

var (
	ErrMissingGroup     = errors.New("solver: parameter group not set")
	ErrInvalidParameter = errors.New("solver: invalid parameter")
	ErrUnknownType      = errors.New("solver: unknown solver type")
	ErrSizeMismatch     = errors.New("solver: vector has the wrong size")
	ErrBoundsMismatch   = errors.New("solver: bound constraints do not match the solver type")
)

// ============================================================
// Strategy
// ============================================================

// Type selects the finite-horizon strategy.
type Type int

const (
	ContinuationGMRES Type = iota + 1
	MultipleShootingCGMRES
	MultipleShootingWithInputSaturation
)

var typeNames = map[Type]string{
	ContinuationGMRES:                   "continuation_gmres",
	MultipleShootingCGMRES:              "multiple_shooting_cgmres",
	MultipleShootingWithInputSaturation: "multiple_shooting_with_input_saturation",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType accepts the names printed by Type.String.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// MultipleShooting reports whether the strategy also tracks state and
// costate trajectories.
func (t Type) MultipleShooting() bool { return t != ContinuationGMRES }

// BoundConstraints reports whether the strategy condenses input saturations.
func (t Type) BoundConstraints() bool { return t == MultipleShootingWithInputSaturation }

func (t Type) header() string {
	if t == ContinuationGMRES {
		return "cgmres/single_shooting_cgmres_solver.hpp"
	}
	return "cgmres/multiple_shooting_cgmres_solver.hpp"
}

func (t Type) class() string {
	if t == ContinuationGMRES {
		return "SingleShootingCGMRESSolver"
	}
	return "MultipleShootingCGMRESSolver"
}

// ============================================================
// Parameter groups
// ============================================================

// Horizon is the prediction horizon. Its length at time t is
// Tf·(1 - exp(-Alpha·t)); Alpha = 0 keeps it fixed at Tf.
type Horizon struct {
	Tf    float64 `yaml:"tf" json:"tf"`
	Alpha float64 `yaml:"alpha" json:"alpha"`
}

// Length returns the horizon length at time t, measured from t = 0.
func (h Horizon) Length(t float64) float64 {
	if h.Alpha > 0 {
		return h.Tf * (1 - math.Exp(-h.Alpha*t))
	}
	return h.Tf
}

// Discretization is the horizon grid size and the Krylov subspace cap.
type Discretization struct {
	N    int `yaml:"n" json:"n"`
	KMax int `yaml:"kmax" json:"kmax"`
}

// Settings are the numeric constants of the continuation method.
type Settings struct {
	FiniteDifferenceEpsilon float64 `yaml:"finite_difference_epsilon" json:"finite_difference_epsilon"`
	Zeta                    float64 `yaml:"zeta" json:"zeta"`
}

// Initialization drives the zero-horizon Newton iteration that seeds the
// finite-horizon solver.
type Initialization struct {
	Guess         []float64 `yaml:"guess" json:"guess"` // length nuc
	Tolerance     float64   `yaml:"tolerance" json:"tolerance"`
	MaxIterations int       `yaml:"max_iterations" json:"max_iterations"`
	// Multipliers is an optional initial guess of the condensed bound
	// multipliers, length nub.
	Multipliers []float64 `yaml:"multipliers,omitempty" json:"multipliers,omitempty"`
}

// Simulation is the closed-loop run handed to the simulator.
type Simulation struct {
	T0             float64   `yaml:"t0" json:"t0"`
	X0             []float64 `yaml:"x0" json:"x0"` // length nx
	Duration       float64   `yaml:"duration" json:"duration"`
	SamplingPeriod float64   `yaml:"sampling_period" json:"sampling_period"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParameter}, args...)...)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (h Horizon) validate() error {
	switch {
	case !finite(h.Tf, h.Alpha):
		return invalid("horizon must be finite")
	case h.Tf <= 0:
		return invalid("Tf must be positive, got %v", h.Tf)
	case h.Alpha < 0:
		return invalid("alpha must be non-negative, got %v", h.Alpha)
	}
	return nil
}

func (d Discretization) validate() error {
	switch {
	case d.N <= 0:
		return invalid("N must be positive, got %d", d.N)
	case d.KMax <= 0:
		return invalid("kmax must be positive, got %d", d.KMax)
	}
	return nil
}

func (s Settings) validate() error {
	switch {
	case !finite(s.FiniteDifferenceEpsilon, s.Zeta):
		return invalid("settings must be finite")
	case s.FiniteDifferenceEpsilon <= 0:
		return invalid("finite difference epsilon must be positive, got %v", s.FiniteDifferenceEpsilon)
	case s.Zeta <= 0:
		return invalid("zeta must be positive, got %v", s.Zeta)
	}
	return nil
}

func (in Initialization) validate() error {
	switch {
	case len(in.Guess) == 0:
		return invalid("initial guess is empty")
	case !finite(in.Guess...) || !finite(in.Multipliers...) || !finite(in.Tolerance):
		return invalid("initialization must be finite")
	case in.Tolerance <= 0:
		return invalid("Newton tolerance must be positive, got %v", in.Tolerance)
	case in.MaxIterations < 0:
		return invalid("max iterations must be non-negative, got %d", in.MaxIterations)
	}
	return nil
}

func (s Simulation) validate() error {
	switch {
	case len(s.X0) == 0:
		return invalid("initial state is empty")
	case !finite(s.X0...) || !finite(s.T0, s.Duration, s.SamplingPeriod):
		return invalid("simulation must be finite")
	case s.Duration <= 0:
		return invalid("duration must be positive, got %v", s.Duration)
	case s.SamplingPeriod <= 0:
		return invalid("sampling period must be positive, got %v", s.SamplingPeriod)
	}
	return nil
}

// ============================================================
// Assembler
// ============================================================

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// Assembler collects the six parameter groups. Every setter validates its
// group on its own; sizes that depend on the problem are checked by Assemble.
type Assembler struct {
	typ            *Type
	horizon        *Horizon
	discretization *Discretization
	settings       *Settings
	initialization *Initialization
	simulation     *Simulation

	logger *slog.Logger
}

func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "solver"))
	return a
}

func (a *Assembler) SetType(t Type) error {
	if _, ok := typeNames[t]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
	a.typ = &t
	return nil
}

func (a *Assembler) SetHorizon(h Horizon) error {
	if err := h.validate(); err != nil {
		return err
	}
	a.horizon = &h
	return nil
}

func (a *Assembler) SetDiscretization(d Discretization) error {
	if err := d.validate(); err != nil {
		return err
	}
	a.discretization = &d
	return nil
}

func (a *Assembler) SetSettings(s Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	a.settings = &s
	return nil
}

func (a *Assembler) SetInitialization(in Initialization) error {
	if err := in.validate(); err != nil {
		return err
	}
	in.Guess = append([]float64(nil), in.Guess...)
	if in.Multipliers != nil {
		in.Multipliers = append([]float64(nil), in.Multipliers...)
	}
	a.initialization = &in
	return nil
}

func (a *Assembler) SetSimulation(s Simulation) error {
	if err := s.validate(); err != nil {
		return err
	}
	s.X0 = append([]float64(nil), s.X0...)
	a.simulation = &s
	return nil
}

// SetSolverParameters sets the horizon, discretization and settings groups
// at once. Nothing is stored unless all three are valid.
func (a *Assembler) SetSolverParameters(tf, alpha float64, n int, fdEpsilon, zeta float64, kmax int) error {
	h := Horizon{Tf: tf, Alpha: alpha}
	d := Discretization{N: n, KMax: kmax}
	s := Settings{FiniteDifferenceEpsilon: fdEpsilon, Zeta: zeta}
	for _, err := range []error{h.validate(), d.validate(), s.validate()} {
		if err != nil {
			return err
		}
	}
	a.horizon, a.discretization, a.settings = &h, &d, &s
	return nil
}

// Type returns the selected strategy, if any.
func (a *Assembler) Type() (Type, bool) {
	if a.typ == nil {
		return 0, false
	}
	return *a.typ, true
}

// Missing lists the groups that have not been set.
func (a *Assembler) Missing() []string {
	var out []string
	for _, g := range []struct {
		name string
		set  bool
	}{
		{"type", a.typ != nil},
		{"horizon", a.horizon != nil},
		{"discretization", a.discretization != nil},
		{"settings", a.settings != nil},
		{"initialization", a.initialization != nil},
		{"simulation", a.simulation != nil},
	} {
		if !g.set {
			out = append(out, g.name)
		}
	}
	return out
}

// Assemble checks every group against u and returns the entry point.
func (a *Assembler) Assemble(u *emit.Unit) (*EntryPoint, error) {
	if missing := a.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingGroup, strings.Join(missing, ", "))
	}
	if u == nil {
		return nil, emit.ErrIncompleteSpec
	}
	d := u.Dims
	typ := *a.typ
	in, sim := a.initialization, a.simulation
	switch {
	case len(in.Guess) != d.NUC:
		return nil, fmt.Errorf("%w: initial guess has %d entries, nuc=%d", ErrSizeMismatch, len(in.Guess), d.NUC)
	case len(sim.X0) != d.NX:
		return nil, fmt.Errorf("%w: initial state has %d entries, nx=%d", ErrSizeMismatch, len(sim.X0), d.NX)
	case typ.BoundConstraints() != (u.Bounds != nil):
		return nil, fmt.Errorf("%w: %s with bound block %t", ErrBoundsMismatch, typ, u.Bounds != nil)
	case in.Multipliers != nil && !typ.BoundConstraints():
		return nil, fmt.Errorf("%w: initial multipliers need %s", ErrBoundsMismatch, MultipleShootingWithInputSaturation)
	case in.Multipliers != nil && len(in.Multipliers) != d.NUB:
		return nil, fmt.Errorf("%w: initial multipliers have %d entries, nub=%d", ErrSizeMismatch, len(in.Multipliers), d.NUB)
	}

	disc := *a.discretization
	ep := &EntryPoint{
		Name:           u.Name,
		Class:          emit.ClassName(u.Name),
		Type:           typ,
		Horizon:        *a.horizon,
		N:              disc.N,
		KMaxInit:       min(disc.KMax, d.NUC),
		KMax:           min(disc.KMax, disc.N*d.NUC),
		Settings:       *a.settings,
		Initialization: *in,
		Simulation:     *sim,
		SaveDir:        DefaultSaveDir,
	}
	if ep.KMax < disc.KMax {
		a.logger.Debug("krylov cap clamped", slog.Int("requested", disc.KMax), slog.Int("kmax", ep.KMax))
	}
	a.logger.Info("entry point assembled",
		slog.String("problem", u.Name),
		slog.String("type", typ.String()),
		slog.Int("N", ep.N),
		slog.Int("kmax_init", ep.KMaxInit),
		slog.Int("kmax", ep.KMax))
	return ep, nil
}
