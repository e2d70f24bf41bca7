// Package config reads problem descriptions from YAML and turns them into a
// formulated problem plus a solver assembler.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/ocp"
	"github.com/njchilds90/autogenu/project"
	"github.com/njchilds90/autogenu/solver"
)

var ErrInvalidConfig = errors.New("config: invalid problem file")

const (
	DefaultSolverType     = "continuation_gmres"
	DefaultTf             = 1.0
	DefaultAlpha          = 1.0
	DefaultN              = 50
	DefaultFDEpsilon      = 1e-8
	DefaultZeta           = 1000.0
	DefaultKMax           = 5
	DefaultTolerance      = 1e-6
	DefaultMaxIterations  = 50
	DefaultDuration       = 10.0
	DefaultSamplingPeriod = 0.001
)

type Config struct {
	Name         string             `yaml:"name"`
	NX           int                `yaml:"nx"`
	NU           int                `yaml:"nu"`
	Scalars      []ScalarConfig     `yaml:"scalars,omitempty"`
	Arrays       []ArrayConfig      `yaml:"arrays,omitempty"`
	Dynamics     []string           `yaml:"dynamics"`
	Equality     []string           `yaml:"equality,omitempty"`
	Inequality   []string           `yaml:"inequality,omitempty"`
	StageCost    string             `yaml:"stage_cost"`
	TerminalCost string             `yaml:"terminal_cost"`
	FBEpsilon    []float64          `yaml:"fb_epsilon,omitempty"`
	Saturations  []SaturationConfig `yaml:"saturations,omitempty"`

	Solver         SolverConfig          `yaml:"solver"`
	Initialization solver.Initialization `yaml:"initialization"`
	Simulation     solver.Simulation     `yaml:"simulation"`
	Output         OutputConfig          `yaml:"output"`
}

type ScalarConfig struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

type ArrayConfig struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

type SaturationConfig struct {
	Index           int     `yaml:"index"`
	Min             float64 `yaml:"min"`
	Max             float64 `yaml:"max"`
	DummyWeight     float64 `yaml:"dummy_weight"`
	QuadraticWeight float64 `yaml:"quadratic_weight"`
}

type SolverConfig struct {
	Type                  string `yaml:"type"`
	solver.Horizon        `yaml:",inline"`
	solver.Discretization `yaml:",inline"`
	solver.Settings       `yaml:",inline"`
}

type OutputConfig struct {
	Simplify        bool     `yaml:"simplify"`
	CSE             bool     `yaml:"cse"`
	Targets         []string `yaml:"targets"`
	project.Options `yaml:",inline"`
}

func DefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Type:           DefaultSolverType,
			Horizon:        solver.Horizon{Tf: DefaultTf, Alpha: DefaultAlpha},
			Discretization: solver.Discretization{N: DefaultN, KMax: DefaultKMax},
			Settings:       solver.Settings{FiniteDifferenceEpsilon: DefaultFDEpsilon, Zeta: DefaultZeta},
		},
		Initialization: solver.Initialization{
			Tolerance:     DefaultTolerance,
			MaxIterations: DefaultMaxIterations,
		},
		Simulation: solver.Simulation{
			Duration:       DefaultDuration,
			SamplingPeriod: DefaultSamplingPeriod,
		},
		Output: OutputConfig{
			CSE:     true,
			Targets: []string{string(emit.TargetCPP)},
		},
	}
}

// Parse decodes a YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Result is a configured problem ready for emission.
type Result struct {
	Problem   *ocp.Problem
	Assembler *solver.Assembler
	Emit      emit.Options
	Targets   []emit.Target
	Project   project.Options
}

func parseAll(what string, srcs []string) ([]expr.Expr, error) {
	out := make([]expr.Expr, len(srcs))
	for i, s := range srcs {
		e, err := expr.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %w", ErrInvalidConfig, what, i, err)
		}
		out[i] = e
	}
	return out, nil
}

func parseOne(what, src string) (expr.Expr, error) {
	if src == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidConfig, what)
	}
	e, err := expr.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, what, err)
	}
	return e, nil
}

// Build declares the problem, sets its functions and fills every solver
// group. An empty initial guess or initial state defaults to zeros.
func (c *Config) Build(logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := ocp.New(c.Name, c.NX, c.NU, ocp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	for _, s := range c.Scalars {
		if _, err := p.DefineScalar(s.Name, s.Value); err != nil {
			return nil, err
		}
	}
	for _, a := range c.Arrays {
		if _, err := p.DefineArray(a.Name, len(a.Values), a.Values); err != nil {
			return nil, err
		}
	}

	f, err := parseAll("dynamics", c.Dynamics)
	if err != nil {
		return nil, err
	}
	eq, err := parseAll("equality", c.Equality)
	if err != nil {
		return nil, err
	}
	ineq, err := parseAll("inequality", c.Inequality)
	if err != nil {
		return nil, err
	}
	stage, err := parseOne("stage_cost", c.StageCost)
	if err != nil {
		return nil, err
	}
	terminal, err := parseOne("terminal_cost", c.TerminalCost)
	if err != nil {
		return nil, err
	}
	if err := p.SetFunctions(ocp.Functions{
		F:            f,
		StageCost:    stage,
		TerminalCost: terminal,
		Equality:     eq,
		Inequality:   ineq,
	}); err != nil {
		return nil, err
	}
	if c.FBEpsilon != nil {
		if err := p.SetFBEpsilon(c.FBEpsilon); err != nil {
			return nil, err
		}
	}
	for _, s := range c.Saturations {
		if err := p.AddInputSaturation(ocp.Saturation(s)); err != nil {
			return nil, err
		}
	}

	typ, err := solver.ParseType(c.Solver.Type)
	if err != nil {
		return nil, err
	}
	a := solver.NewAssembler(solver.WithLogger(logger))
	in := c.Initialization
	if len(in.Guess) == 0 {
		in.Guess = make([]float64, c.NU+len(eq)+len(ineq))
	}
	sim := c.Simulation
	if len(sim.X0) == 0 {
		sim.X0 = make([]float64, c.NX)
	}
	for _, err := range []error{
		a.SetType(typ),
		a.SetHorizon(c.Solver.Horizon),
		a.SetDiscretization(c.Solver.Discretization),
		a.SetSettings(c.Solver.Settings),
		a.SetInitialization(in),
		a.SetSimulation(sim),
	} {
		if err != nil {
			return nil, err
		}
	}

	targets := make([]emit.Target, 0, len(c.Output.Targets))
	for _, t := range c.Output.Targets {
		target := emit.Target(t)
		if target != emit.TargetCPP && target != emit.TargetGo {
			return nil, fmt.Errorf("%w: %q", emit.ErrUnknownTarget, t)
		}
		targets = append(targets, target)
	}

	return &Result{
		Problem:   p,
		Assembler: a,
		Emit: emit.Options{
			Simplify:         c.Output.Simplify,
			CSE:              c.Output.CSE,
			BoundConstraints: typ.BoundConstraints(),
			Logger:           logger,
		},
		Targets: targets,
		Project: c.Output.Options,
	}, nil
}
