package solver

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
)

// DefaultSaveDir is where the simulator writes its logs, relative to the
// build directory of a generated project.
const DefaultSaveDir = "../simulation_result"

// EntryPoint is an assembled solver configuration for one problem. KMaxInit
// and KMax are already clamped to the sizes of their linear systems.
type EntryPoint struct {
	Name           string
	Class          string
	Type           Type
	Horizon        Horizon
	N              int
	KMaxInit       int
	KMax           int
	Settings       Settings
	Initialization Initialization
	Simulation     Simulation
	SaveDir        string
}

func formatNumber(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func joinNumbers(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatNumber(v)
	}
	return strings.Join(parts, ", ")
}

var mainTemplate = template.Must(template.New("main.cpp").Funcs(template.FuncMap{
	"num":  formatNumber,
	"nums": joinNumbers,
}).Parse(`#include "ocp.hpp"
#include "cgmres/zero_horizon_ocp_solver.hpp"
#include "{{.Header}}"
#include "cgmres/simulator/simulator.hpp"
#include <string>

int main() {
  // Define the optimal control problem.
  cgmres::{{.Class}} ocp;

  // Define the horizon.
  const double Tf = {{num .Horizon.Tf}};
  const double alpha = {{num .Horizon.Alpha}};
  cgmres::Horizon horizon(Tf, alpha);

  // Define the solver settings.
  cgmres::SolverSettings settings;
  settings.dt = {{num .Simulation.SamplingPeriod}}; // sampling period
  settings.zeta = {{num .Settings.Zeta}};
  settings.finite_difference_epsilon = {{num .Settings.FiniteDifferenceEpsilon}};
  // For initialization.
  settings.max_iter = {{.Initialization.MaxIterations}};
  settings.opterr_tol = {{num .Initialization.Tolerance}};
  settings.verbose_level = 1;

  // Define the initial time and initial state.
  const double t0 = {{num .Simulation.T0}};
  cgmres::Vector<{{len .Simulation.X0}}> x0;
  x0 << {{nums .Simulation.X0}};

  // Initialize the solution of the C/GMRES method.
  constexpr int kmax_init = {{.KMaxInit}};
  cgmres::ZeroHorizonOCPSolver<cgmres::{{.Class}}, kmax_init> initializer(ocp, settings);
  cgmres::Vector<{{len .Initialization.Guess}}> uc0;
  uc0 << {{nums .Initialization.Guess}};
  initializer.set_uc(uc0);
  initializer.solve(t0, x0);

  // Define the C/GMRES solver.
  constexpr int N = {{.N}};
  constexpr int kmax = {{.KMax}};
  cgmres::{{.SolverClass}}<cgmres::{{.Class}}, N, kmax> mpc(ocp, horizon, settings);
  mpc.set_uc(initializer.ucopt());
{{- if .Type.MultipleShooting}}
  mpc.init_x_lmd(t0, x0);
  mpc.init_dummy_mu();
{{- end}}
{{- with .Initialization.Multipliers}}
  // Initial guess of the multipliers of the condensed input bounds.
  cgmres::Vector<{{len .}}> dummy_mu0;
  dummy_mu0 << {{nums .}};
  mpc.set_dummy_mu(dummy_mu0);
{{- end}}

  // Perform a numerical simulation.
  const double tf = {{num .Simulation.Duration}};
  const double dt = settings.dt;
  const std::string save_dir_name("{{.SaveDir}}");
  cgmres::simulation(ocp, mpc, x0, t0, tf, dt, save_dir_name, "{{.Name}}");

  std::cout << "\n======================= MPC used in this simulation: =======================" << std::endl;
  std::cout << mpc << std::endl;

  return 0;
}
`))

// Header is the solver header included by the entry point.
func (e *EntryPoint) Header() string { return e.Type.header() }

// SolverClass is the finite-horizon solver template instantiated by the
// entry point.
func (e *EntryPoint) SolverClass() string { return e.Type.class() }

// RenderMain renders main.cpp.
func (e *EntryPoint) RenderMain() ([]byte, error) {
	var buf bytes.Buffer
	if err := mainTemplate.Execute(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
