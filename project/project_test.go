package project_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/expr"
	"github.com/njchilds90/autogenu/ocp"
	"github.com/njchilds90/autogenu/project"
	"github.com/njchilds90/autogenu/solver"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func integrator() (*emit.Unit, *solver.EntryPoint) {
	p, err := ocp.New("integrator", 1, 1, ocp.WithLogger(discard))
	Expect(err).NotTo(HaveOccurred())
	x, u := p.X(), p.U()
	Expect(p.SetFunctions(ocp.Functions{
		F:            []expr.Expr{u[0]},
		StageCost:    expr.PowOf(u[0], expr.N(2)),
		TerminalCost: expr.PowOf(x[0], expr.N(2)),
	})).To(Succeed())
	spec, err := p.Freeze()
	Expect(err).NotTo(HaveOccurred())
	unit, err := emit.Build(spec, emit.Options{CSE: true, Logger: discard})
	Expect(err).NotTo(HaveOccurred())

	a := solver.NewAssembler(solver.WithLogger(discard))
	Expect(a.SetType(solver.ContinuationGMRES)).To(Succeed())
	Expect(a.SetSolverParameters(1, 1, 50, 1e-8, 1000, 5)).To(Succeed())
	Expect(a.SetInitialization(solver.Initialization{Guess: []float64{0}, Tolerance: 1e-6, MaxIterations: 20})).To(Succeed())
	Expect(a.SetSimulation(solver.Simulation{X0: []float64{1}, Duration: 5, SamplingPeriod: 0.01})).To(Succeed())
	ep, err := a.Assemble(unit)
	Expect(err).NotTo(HaveOccurred())
	return unit, ep
}

var _ = Describe("Layout", func() {
	It("places each problem under models/<name>", func() {
		Expect(project.Dir("cartpole")).To(Equal("models/cartpole"))
	})

	It("names the simulation logs after the problem", func() {
		Expect(project.LogFiles("cartpole")).To(Equal([]string{
			"simulation_result/cartpole_x.log",
			"simulation_result/cartpole_u.log",
			"simulation_result/cartpole_opterr.log",
		}))
	})
})

var _ = Describe("Render", func() {
	var (
		unit *emit.Unit
		ep   *solver.EntryPoint
	)

	BeforeEach(func() {
		unit, ep = integrator()
	})

	It("renders every file of both targets", func() {
		a, err := project.Render(unit, ep, emit.Targets(), project.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Paths()).To(Equal([]string{
			"models/integrator/CMakeLists.txt",
			"models/integrator/go/ocp.go",
			"models/integrator/main.cpp",
			"models/integrator/ocp.hpp",
		}))
		header, ok := a.Lookup("models/integrator/ocp.hpp")
		Expect(ok).To(BeTrue())
		Expect(string(header)).To(ContainSubstring("class OCP_integrator {"))
	})

	It("skips the entry point without a solver configuration", func() {
		a, err := project.Render(unit, nil, []emit.Target{emit.TargetCPP}, project.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Paths()).To(ConsistOf("models/integrator/ocp.hpp"))
	})

	It("requires a target", func() {
		_, err := project.Render(unit, ep, nil, project.Options{})
		Expect(err).To(MatchError(project.ErrNoTargets))
	})

	It("rejects unknown targets before producing anything", func() {
		a, err := project.Render(unit, ep, []emit.Target{emit.TargetCPP, "fortran"}, project.Options{})
		Expect(err).To(MatchError(emit.ErrUnknownTarget))
		Expect(a).To(BeNil())
	})
})

var _ = Describe("CMake", func() {
	It("exports the build switches", func() {
		text := string(project.RenderCMake("integrator", project.Options{Vectorize: true}))
		Expect(text).To(ContainSubstring("project(integrator CXX)"))
		Expect(text).To(ContainSubstring("set(CMAKE_CXX_STANDARD 17)"))
		Expect(text).To(ContainSubstring(`option(VECTORIZE "Enable -march=native" ON)`))
		Expect(text).To(ContainSubstring(`option(BUILD_PYTHON_INTERFACE "Build Python interface" OFF)`))
		Expect(text).To(ContainSubstring("${PROJECT_SOURCE_DIR}/../../include"))
	})

	It("only adds the python bindings when they exist", func() {
		text := string(project.RenderCMake("integrator", project.Options{Python: true}))
		Expect(text).To(ContainSubstring(`option(BUILD_PYTHON_INTERFACE "Build Python interface" ON)`))
		guard := strings.Index(text, "if (EXISTS ${PROJECT_SOURCE_DIR}/python/${PROJECT_NAME}/CMakeLists.txt)")
		add := strings.Index(text, "add_subdirectory(python/${PROJECT_NAME})")
		Expect(guard).To(BeNumerically(">=", 0))
		Expect(add).To(BeNumerically(">", guard))
	})
})

var _ = Describe("Materializers", func() {
	var a *project.Artifacts

	BeforeEach(func() {
		unit, ep := integrator()
		var err error
		a, err = project.Render(unit, ep, emit.Targets(), project.Options{})
		Expect(err).NotTo(HaveOccurred())
	})

	Context("in memory", func() {
		It("stores copies of every file", func() {
			m := project.NewMemMaterializer()
			Expect(m.Materialize(context.Background(), a)).To(Succeed())
			Expect(m.Paths()).To(Equal(a.Paths()))

			data, ok := m.File("models/integrator/main.cpp")
			Expect(ok).To(BeTrue())
			Expect(string(data)).To(ContainSubstring(`cgmres::simulation(ocp, mpc, x0, t0, tf, dt, save_dir_name, "integrator");`))
			data[0] = 'X'
			again, _ := m.File("models/integrator/main.cpp")
			Expect(again[0]).To(Equal(byte('#')))
		})

		It("refuses paths outside the root", func() {
			m := project.NewMemMaterializer()
			bad := &project.Artifacts{Files: []project.File{{Path: "../escape.txt"}}}
			Expect(m.Materialize(context.Background(), bad)).To(MatchError(project.ErrBadPath))
			Expect(m.Paths()).To(BeEmpty())
		})
	})

	Context("on disk", func() {
		var root string

		BeforeEach(func() {
			root = GinkgoT().TempDir()
		})

		It("creates the layout and overwrites on a second run", func() {
			d := &project.DirMaterializer{Root: root, Logger: discard}
			Expect(d.Materialize(context.Background(), a)).To(Succeed())
			Expect(d.Materialize(context.Background(), a)).To(Succeed())

			for _, p := range a.Paths() {
				want, _ := a.Lookup(p)
				got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			}
		})

		It("stops when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			d := &project.DirMaterializer{Root: root, Logger: discard}
			Expect(d.Materialize(ctx, a)).To(MatchError(context.Canceled))
			_, err := os.Stat(filepath.Join(root, project.ModelsDir))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})
})
