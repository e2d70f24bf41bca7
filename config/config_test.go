package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/autogenu/config"
	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/ocp"
	"github.com/njchilds90/autogenu/solver"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const cartpoleYAML = `
name: cartpole
nx: 4
nu: 1
scalars:
  - {name: m_c, value: 2}
  - {name: m_p, value: 0.2}
  - {name: l, value: 0.5}
  - {name: g, value: 9.80665}
arrays:
  - {name: q, values: [2.5, 10, 0.01, 0.01]}
  - {name: x_ref, values: [0, 3.14159, 0, 0]}
dynamics:
  - x[2]
  - x[3]
  - (u[0] + m_p*sin(x[1])*(l*x[1]^2 + g*cos(x[1]))) / (m_c + m_p*sin(x[1])^2)
  - (-u[0]*cos(x[1]) - m_p*l*x[3]^2*cos(x[1])*sin(x[1]) - (m_c + m_p)*g*sin(x[1])) / (l*(m_c + m_p*sin(x[1])^2))
stage_cost: 0.5*(q[0]*(x[0]-x_ref[0])^2 + q[1]*(x[1]-x_ref[1])^2 + q[2]*x[2]^2 + q[3]*x[3]^2) + 0.5*u[0]^2
terminal_cost: 0.5*(q[0]*(x[0]-x_ref[0])^2 + q[1]*(x[1]-x_ref[1])^2)
saturations:
  - {index: 0, min: -15, max: 15, dummy_weight: 0.1, quadratic_weight: 0}
solver:
  type: multiple_shooting_with_input_saturation
  tf: 2
  alpha: 0
  n: 100
  kmax: 5
  finite_difference_epsilon: 1.0e-8
  zeta: 1000
initialization:
  guess: [0.01]
  max_iterations: 50
simulation:
  x0: [0, 0, 0, 0]
  duration: 10
output:
  cse: true
  targets: [cpp, go]
  vectorize: true
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	assert.Equal(t, config.DefaultSolverType, cfg.Solver.Type)
	assert.Equal(t, config.DefaultTf, cfg.Solver.Tf)
	assert.Equal(t, config.DefaultN, cfg.Solver.N)
	assert.Equal(t, config.DefaultTolerance, cfg.Initialization.Tolerance)
	assert.True(t, cfg.Output.CSE)
	assert.Equal(t, []string{"cpp"}, cfg.Output.Targets)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(writeFile(t, cartpoleYAML))
	require.NoError(t, err)

	assert.Equal(t, "cartpole", cfg.Name)
	assert.Len(t, cfg.Scalars, 4)
	assert.Equal(t, "m_c", cfg.Scalars[0].Name)
	assert.Equal(t, []float64{2.5, 10, 0.01, 0.01}, cfg.Arrays[0].Values)
	assert.Equal(t, 2.0, cfg.Solver.Tf)
	assert.Equal(t, 100, cfg.Solver.N)
	assert.Equal(t, 1e-8, cfg.Solver.FiniteDifferenceEpsilon)
	assert.True(t, cfg.Output.Vectorize)
	// Not in the file.
	assert.Equal(t, config.DefaultTolerance, cfg.Initialization.Tolerance)
	assert.Equal(t, config.DefaultSamplingPeriod, cfg.Simulation.SamplingPeriod)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = config.Load(writeFile(t, "nx: [1, 2"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse([]byte(cartpoleYAML))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, config.Save(path, cfg))
	again, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestBuild_Cartpole(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse([]byte(cartpoleYAML))
	require.NoError(t, err)
	res, err := cfg.Build(discard)
	require.NoError(t, err)

	assert.Equal(t, []emit.Target{emit.TargetCPP, emit.TargetGo}, res.Targets)
	assert.True(t, res.Emit.CSE)
	assert.True(t, res.Emit.BoundConstraints)
	assert.True(t, res.Project.Vectorize)
	typ, ok := res.Assembler.Type()
	require.True(t, ok)
	assert.Equal(t, solver.MultipleShootingWithInputSaturation, typ)
	assert.Empty(t, res.Assembler.Missing())

	spec, err := res.Problem.Freeze()
	require.NoError(t, err)
	unit, err := emit.Build(spec, res.Emit)
	require.NoError(t, err)
	assert.Equal(t, 1, unit.Dims.NUB)

	// Upright and at rest: no acceleration without input.
	dx, err := unit.Call(emit.RoutineF, emit.Inputs{X: []float64{0, 0, 0, 0}, U: []float64{0}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0}, dx, 1e-12)

	dx, err = unit.Call(emit.RoutineF, emit.Inputs{X: []float64{0, 0, 0, 0}, U: []float64{1}})
	require.NoError(t, err)
	assert.InDelta(t, 1/2.0, dx[2], 1e-12)
	assert.InDelta(t, -1/(0.5*2.0), dx[3], 1e-12)

	ep, err := res.Assembler.Assemble(unit)
	require.NoError(t, err)
	assert.Equal(t, 1, ep.KMaxInit)
}

func TestBuild_DefaultsVectors(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse([]byte(`
name: box
nx: 2
nu: 1
dynamics:
  - x[1]
  - u[0]
inequality:
  - u[0] - 1
fb_epsilon: [0.01]
stage_cost: u[0]^2
terminal_cost: x[0]^2
`))
	require.NoError(t, err)
	res, err := cfg.Build(discard)
	require.NoError(t, err)
	spec, err := res.Problem.Freeze()
	require.NoError(t, err)
	unit, err := emit.Build(spec, res.Emit)
	require.NoError(t, err)
	ep, err := res.Assembler.Assemble(unit)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, ep.Initialization.Guess)
	assert.Equal(t, []float64{0, 0}, ep.Simulation.X0)
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()
	base := func() *config.Config {
		cfg := config.DefaultConfig()
		cfg.Name = "p"
		cfg.NX, cfg.NU = 1, 1
		cfg.Dynamics = []string{"u[0]"}
		cfg.StageCost = "u[0]^2"
		cfg.TerminalCost = "x[0]^2"
		return cfg
	}
	_, err := base().Build(discard)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"syntax", func(c *config.Config) { c.Dynamics = []string{"u[0] +"} }, expr.ErrSyntax},
		{"undeclared", func(c *config.Config) { c.StageCost = "k*u[0]^2" }, ocp.ErrUndeclaredSymbol},
		{"empty cost", func(c *config.Config) { c.TerminalCost = "" }, config.ErrInvalidConfig},
		{"wrong length", func(c *config.Config) { c.Dynamics = []string{"u[0]", "0"} }, ocp.ErrDimensionMismatch},
		{"reserved", func(c *config.Config) { c.Scalars = []config.ScalarConfig{{Name: "lmd"}} }, ocp.ErrReservedName},
		{"negative eps", func(c *config.Config) { c.FBEpsilon = []float64{-1} }, ocp.ErrNegativeEpsilon},
		{"bad saturation", func(c *config.Config) { c.Saturations = []config.SaturationConfig{{Index: 3, Min: 0, Max: 1}} }, ocp.ErrInvalidSaturation},
		{"solver type", func(c *config.Config) { c.Solver.Type = "newton" }, solver.ErrUnknownType},
		{"solver value", func(c *config.Config) { c.Solver.Zeta = 0 }, solver.ErrInvalidParameter},
		{"target", func(c *config.Config) { c.Output.Targets = []string{"rust"} }, emit.ErrUnknownTarget},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			_, err := cfg.Build(discard)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
