package emit_test

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/ocp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// doubleIntegrator is x0' = x1, x1' = u0/m with quadratic costs and m = 2.
func doubleIntegrator(t *testing.T) *ocp.Problem {
	t.Helper()
	p, err := ocp.New("double_integrator", 2, 1, ocp.WithLogger(discard))
	require.NoError(t, err)
	m, err := p.DefineScalar("m", 2)
	require.NoError(t, err)
	x, u := p.X(), p.U()
	sq := func(e expr.Expr) expr.Expr { return expr.PowOf(e, expr.N(2)) }
	require.NoError(t, p.SetFunctions(ocp.Functions{
		F:            []expr.Expr{x[1], expr.DivOf(u[0], m)},
		StageCost:    expr.AddOf(sq(x[0]), sq(x[1]), sq(u[0])),
		TerminalCost: expr.AddOf(sq(x[0]), sq(x[1])),
	}))
	return p
}

// bounded is x0' = u0 with the inequality u0 - 1 <= 0.
func bounded(t *testing.T) *ocp.Problem {
	t.Helper()
	p, err := ocp.New("bounded", 1, 1, ocp.WithLogger(discard))
	require.NoError(t, err)
	x, u := p.X(), p.U()
	require.NoError(t, p.SetFunctions(ocp.Functions{
		F:            []expr.Expr{u[0]},
		StageCost:    expr.PowOf(u[0], expr.N(2)),
		TerminalCost: expr.PowOf(x[0], expr.N(2)),
		Inequality:   []expr.Expr{expr.SubOf(u[0], expr.N(1))},
	}))
	require.NoError(t, p.SetFBEpsilon([]float64{0.01}))
	return p
}

func build(t *testing.T, p *ocp.Problem, opts emit.Options) *emit.Unit {
	t.Helper()
	spec, err := p.Freeze()
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = discard
	}
	u, err := emit.Build(spec, opts)
	require.NoError(t, err)
	return u
}

func call(t *testing.T, u *emit.Unit, name string, in emit.Inputs) []float64 {
	t.Helper()
	out, err := u.Call(name, in)
	require.NoError(t, err)
	return out
}

// ============================================================
// Build and evaluation
// ============================================================

func TestBuild_DoubleIntegratorValues(t *testing.T) {
	t.Parallel()
	u := build(t, doubleIntegrator(t), emit.Options{Simplify: true, CSE: true})

	assert.Equal(t, emit.Dimensions{NX: 2, NU: 1, NUC: 1}, u.Dims)
	require.Len(t, u.Consts, 1)
	assert.Equal(t, emit.Const{Name: "m", Values: []float64{2}}, u.Consts[0])

	in := emit.Inputs{X: []float64{3, 4}, U: []float64{5}, Lmd: []float64{1, 2}}
	assert.InDeltaSlice(t, []float64{4, 2.5}, call(t, u, emit.RoutineF, in), 1e-12)
	assert.InDeltaSlice(t, []float64{6, 8}, call(t, u, emit.RoutinePhix, in), 1e-12)
	assert.InDeltaSlice(t, []float64{6, 9}, call(t, u, emit.RoutineHx, in), 1e-12)
	assert.InDeltaSlice(t, []float64{11}, call(t, u, emit.RoutineHu, in), 1e-12)
}

func TestBuild_RoutineOrder(t *testing.T) {
	t.Parallel()
	u := build(t, doubleIntegrator(t), emit.Options{})
	var names []string
	for _, r := range u.Routines {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{emit.RoutineF, emit.RoutinePhix, emit.RoutineHx, emit.RoutineHu}, names)
	r, ok := u.Routine(emit.RoutineHu)
	require.True(t, ok)
	assert.Equal(t, "hu", r.Out.Name)
	assert.Equal(t, 1, r.Out.Dim)
}

func TestBuild_FischerBurmeisterRoutine(t *testing.T) {
	t.Parallel()
	u := build(t, bounded(t), emit.Options{Simplify: true, CSE: true})

	assert.Equal(t, emit.Dimensions{NX: 1, NU: 1, NC: 1, NH: 1, NUC: 2}, u.Dims)
	require.Len(t, u.Consts, 1)
	assert.Equal(t, ocp.EpsilonName, u.Consts[0].Name)
	assert.True(t, u.Consts[0].Array)

	// Active constraint, zero multiplier: the residual is sqrt(eps).
	hu := call(t, u, emit.RoutineHu, emit.Inputs{X: []float64{0}, U: []float64{1, 0}, Lmd: []float64{0}})
	assert.InDelta(t, 2, hu[0], 1e-12)
	assert.InDelta(t, 0.1, hu[1], 1e-12)

	hu = call(t, u, emit.RoutineHu, emit.Inputs{X: []float64{0}, U: []float64{3, 2}, Lmd: []float64{1}})
	assert.InDelta(t, 9, hu[0], 1e-12)
	assert.InDelta(t, math.Sqrt(8.01), hu[1], 1e-12)
}

func TestBuild_CSEPreservesValues(t *testing.T) {
	t.Parallel()
	p, err := ocp.New("pendulum", 2, 1, ocp.WithLogger(discard))
	require.NoError(t, err)
	_, err = p.DefineScalar("g", 9.81)
	require.NoError(t, err)
	_, err = p.DefineArray("q", 2, []float64{1, 0.5})
	require.NoError(t, err)
	f := []string{"x[1]", "-g*sin(x[0]) + cos(x[0])*u[0]"}
	fs := make([]expr.Expr, len(f))
	for i, s := range f {
		fs[i] = expr.MustParse(s)
	}
	require.NoError(t, p.SetFunctions(ocp.Functions{
		F:            fs,
		StageCost:    expr.MustParse("q[0]*sin(x[0])^2 + q[1]*x[1]^2 + u[0]^2"),
		TerminalCost: expr.MustParse("q[0]*(1 - cos(x[0])) + q[1]*x[1]^2"),
	}))

	plain := build(t, p, emit.Options{})
	cse := build(t, p, emit.Options{Simplify: true, CSE: true})
	hx, _ := cse.Routine(emit.RoutineHx)
	assert.Positive(t, hx.Temps())

	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		in := emit.Inputs{
			T:   rng.Float64(),
			X:   []float64{rng.NormFloat64(), rng.NormFloat64()},
			U:   []float64{rng.NormFloat64()},
			Lmd: []float64{rng.NormFloat64(), rng.NormFloat64()},
		}
		for _, name := range []string{emit.RoutineF, emit.RoutinePhix, emit.RoutineHx, emit.RoutineHu} {
			assert.InDeltaSlice(t, call(t, plain, name, in), call(t, cse, name, in), 1e-9, name)
		}
	}
}

func TestBuild_TempPrefix(t *testing.T) {
	t.Parallel()
	p, err := ocp.New("rep", 1, 1, ocp.WithLogger(discard))
	require.NoError(t, err)
	require.NoError(t, p.SetFunctions(ocp.Functions{
		F:            []expr.Expr{expr.MustParse("sin(x[0])*u[0] + sin(x[0])")},
		StageCost:    expr.MustParse("u[0]^2"),
		TerminalCost: expr.MustParse("x[0]^2"),
	}))
	u := build(t, p, emit.Options{CSE: true, TempPrefix: "w"})
	f, _ := u.Routine(emit.RoutineF)
	require.Equal(t, 1, f.Temps())
	assert.Equal(t, "w0", f.Stmts[0].Temp)
	assert.Equal(t, "sin(x[0])", f.Stmts[0].Value.String())
}

func TestBuild_ParamsAreSnapshotted(t *testing.T) {
	t.Parallel()
	p := doubleIntegrator(t)
	first := build(t, p, emit.Options{})
	require.NoError(t, p.SetScalar("m", 4))
	second := build(t, p, emit.Options{})

	assert.Equal(t, []float64{2}, first.Consts[0].Values)
	assert.Equal(t, []float64{4}, second.Consts[0].Values)

	in := emit.Inputs{X: []float64{0, 0}, U: []float64{8}}
	assert.InDelta(t, 4, call(t, first, emit.RoutineF, in)[1], 1e-12)
	assert.InDelta(t, 2, call(t, second, emit.RoutineF, in)[1], 1e-12)
}

func TestBuild_Saturation(t *testing.T) {
	t.Parallel()
	p := doubleIntegrator(t)
	require.NoError(t, p.AddInputSaturation(ocp.Saturation{Index: 0, Min: -1, Max: 1, DummyWeight: 0.1, QuadraticWeight: 0.5}))

	ignored := build(t, p, emit.Options{})
	assert.Nil(t, ignored.Bounds)
	assert.Zero(t, ignored.Dims.NUB)
	require.Len(t, ignored.Diagnostics, 1)
	assert.Contains(t, ignored.Diagnostics[0], "u[0]")

	consumed := build(t, p, emit.Options{BoundConstraints: true})
	assert.Empty(t, consumed.Diagnostics)
	assert.Equal(t, 1, consumed.Dims.NUB)
	assert.Equal(t, &emit.Bounds{
		Indices:         []int{0},
		Min:             []float64{-1},
		Max:             []float64{1},
		DummyWeight:     []float64{0.1},
		QuadraticWeight: []float64{0.5},
	}, consumed.Bounds)
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()
	_, err := emit.Build(nil, emit.Options{})
	assert.ErrorIs(t, err, emit.ErrIncompleteSpec)
	_, err = emit.Build(&ocp.Spec{Name: "empty"}, emit.Options{})
	assert.ErrorIs(t, err, emit.ErrIncompleteSpec)

	spec, err := bounded(t).Freeze()
	require.NoError(t, err)
	spec.FBEpsilon = nil
	_, err = emit.Build(spec, emit.Options{Logger: discard})
	assert.ErrorIs(t, err, ocp.ErrMissingEpsilon)

	u := build(t, doubleIntegrator(t), emit.Options{})
	_, err = u.Call(emit.RoutineF, emit.Inputs{X: []float64{1}, U: []float64{1}})
	assert.ErrorIs(t, err, emit.ErrInputSize)
	_, err = u.Call("gu", emit.Inputs{})
	assert.ErrorIs(t, err, emit.ErrUnknownRoutine)
	_, err = emit.Render(u, "rust")
	assert.ErrorIs(t, err, emit.ErrUnknownTarget)
}

// ============================================================
// Printer
// ============================================================

func TestRenderCPP_Expressions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want string
	}{
		{"x[0] - x[1]", "x[0] - x[1]"},
		{"sqrt(x[0])", "sqrt(x[0])"},
		{"x[0]^3", "pow(x[0], 3)"},
		{"1/x[0]", "1.0/x[0]"},
		{"ln(x[0])", "log(x[0])"},
		{"abs(x[0])", "fabs(x[0])"},
		{"pi*x[0]", "M_PI*x[0]"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.src, func(t *testing.T) {
			t.Parallel()
			p, err := ocp.New("expr", 2, 1, ocp.WithLogger(discard))
			require.NoError(t, err)
			require.NoError(t, p.SetFunctions(ocp.Functions{
				F:            []expr.Expr{expr.MustParse(tt.src), expr.N(0)},
				StageCost:    expr.N(0),
				TerminalCost: expr.N(0),
			}))
			src := string(emit.RenderCPP(build(t, p, emit.Options{})))
			assert.Contains(t, src, "dx[0] = "+tt.want+";")
			assert.Contains(t, src, "dx[1] = 0;")
		})
	}
}

// ============================================================
// C++ rendering
// ============================================================

func TestRenderCPP_Layout(t *testing.T) {
	t.Parallel()
	u := build(t, doubleIntegrator(t), emit.Options{Simplify: true, CSE: true})
	src, err := emit.Render(u, emit.TargetCPP)
	require.NoError(t, err)
	text := string(src)

	for _, want := range []string{
		"namespace cgmres {",
		"class OCP_double_integrator {",
		"static constexpr int nx = 2;",
		"static constexpr int nu = 1;",
		"static constexpr int nc = 0;",
		"static constexpr int nh = 0;",
		"static constexpr int nuc = nu + nc;",
		"static constexpr int nub = 0;",
		"double m = 2;",
		"void synchronize() {",
		"void eval_f(const double t, const double* x, const double* u, double* dx) const {",
		"void eval_phix(const double t, const double* x, double* phix) const {",
		"void eval_hx(const double t, const double* x, const double* u, const double* lmd, double* hx) const {",
		"void eval_hu(const double t, const double* x, const double* u, const double* lmd, double* hu) const {",
		"dx[0] = x[1];",
		"#endif // CGMRES__OCP_DOUBLE_INTEGRATOR_HPP_",
	} {
		assert.Contains(t, text, want)
	}
	assert.NotContains(t, text, "ubound_indices")
}

func TestRenderCPP_FischerBurmeisterAndBounds(t *testing.T) {
	t.Parallel()
	p := bounded(t)
	require.NoError(t, p.AddInputSaturation(ocp.Saturation{Index: 0, Min: -2, Max: 2, DummyWeight: 1e-3}))
	text := string(emit.RenderCPP(build(t, p, emit.Options{BoundConstraints: true})))

	assert.Contains(t, text, "std::array<double, 1> fb_eps = {0.01};")
	assert.Contains(t, text, "static constexpr int nc = 1;")
	assert.Contains(t, text, "static constexpr int nh = 1;")
	assert.Contains(t, text, "sqrt(")
	assert.Contains(t, text, "static constexpr std::array<int, nub> ubound_indices = {0};")
	assert.Contains(t, text, "std::array<double, nub> umin = {-2};")
	assert.Contains(t, text, "std::array<double, nub> umax = {2};")
	assert.Contains(t, text, "std::array<double, nub> dummy_weight = {0.001};")
}

func TestRenderCPP_TempsPrecedeOutputs(t *testing.T) {
	t.Parallel()
	p, err := ocp.New("rep", 1, 1, ocp.WithLogger(discard))
	require.NoError(t, err)
	require.NoError(t, p.SetFunctions(ocp.Functions{
		F:            []expr.Expr{expr.MustParse("exp(x[0])*u[0] + exp(x[0])")},
		StageCost:    expr.MustParse("u[0]^2"),
		TerminalCost: expr.MustParse("x[0]^2"),
	}))
	text := string(emit.RenderCPP(build(t, p, emit.Options{CSE: true})))
	decl := strings.Index(text, "const double tmp0 = exp(x[0]);")
	out := strings.Index(text, "dx[0] = ")
	require.NotEqual(t, -1, decl)
	require.NotEqual(t, -1, out)
	assert.Less(t, decl, out)
}

// ============================================================
// Go rendering
// ============================================================

func TestRenderGo_Layout(t *testing.T) {
	t.Parallel()
	u := build(t, doubleIntegrator(t), emit.Options{Simplify: true})
	src, err := emit.Render(u, emit.TargetGo)
	require.NoError(t, err)
	text := string(src)

	assert.True(t, strings.HasPrefix(text, "// Code generated by autogenu. DO NOT EDIT."))
	assert.Contains(t, text, "package doubleintegrator")
	assert.Regexp(t, regexp.MustCompile(`NX\s+= 2`), text)
	assert.Regexp(t, regexp.MustCompile(`NUC\s+= NU \+ NC`), text)
	assert.Regexp(t, regexp.MustCompile(`m\s+float64 = 2`), text)
	assert.Contains(t, text, "func EvalF(t float64, x, u, dx []float64) {")
	assert.Contains(t, text, "func EvalPhix(t float64, x, phix []float64) {")
	assert.Contains(t, text, "func EvalHu(t float64, x, u, lmd, hu []float64) {")
	assert.NotContains(t, text, `import "math"`)
}

func TestRenderGo_ImportsMathWhenUsed(t *testing.T) {
	t.Parallel()
	u := build(t, bounded(t), emit.Options{CSE: true})
	src, err := emit.RenderGo(u)
	require.NoError(t, err)
	text := string(src)
	assert.Contains(t, text, `import "math"`)
	assert.Contains(t, text, "math.Sqrt(")
	assert.Regexp(t, regexp.MustCompile(`fb_eps\s+= \[1\]float64\{0\.01\}`), text)
}

func TestPackageName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "cartpole", emit.PackageName("CartPole"))
	assert.Equal(t, "doubleintegrator", emit.PackageName("double_integrator"))
	assert.Equal(t, "ocp2link", emit.PackageName("2link"))
	assert.Equal(t, "ocptype", emit.PackageName("type"))
}
