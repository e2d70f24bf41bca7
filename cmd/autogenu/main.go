package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/njchilds90/autogenu/config"
	"github.com/njchilds90/autogenu/emit"
	"github.com/njchilds90/autogenu/project"
	"github.com/njchilds90/autogenu/solver"
	"github.com/njchilds90/autogenu/tool"
)

var (
	logLevel string
	outDir   string
	targets  []string
	cse      bool
	simplify bool
	noMain   bool
	routine  string
	evalT    float64
	evalX    []float64
	evalU    []float64
	evalLmd  []float64
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	tempStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "autogenu",
		Short:         "generate C/GMRES solver sources from optimal control problems",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid log level %q", logLevel)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	generateCmd := &cobra.Command{
		Use:   "generate [problem.yaml]",
		Short: "write the model directory for a problem",
		Args:  cobra.ExactArgs(1),
		RunE:  generate,
	}
	generateCmd.Flags().StringVarP(&outDir, "out", "o", ".", "root of the generated tree")
	generateCmd.Flags().StringSliceVar(&targets, "target", nil, "targets to render (cpp, go); overrides the problem file")
	generateCmd.Flags().BoolVar(&cse, "cse", true, "factor common subexpressions")
	generateCmd.Flags().BoolVar(&simplify, "simplify", false, "normalise expressions before emission")
	generateCmd.Flags().BoolVar(&noMain, "no-main", false, "skip main.cpp and CMakeLists.txt")

	inspectCmd := &cobra.Command{
		Use:   "inspect [problem.yaml]",
		Short: "show the derived routines of a problem",
		Args:  cobra.ExactArgs(1),
		RunE:  inspect,
	}
	inspectCmd.Flags().BoolVar(&cse, "cse", true, "factor common subexpressions")
	inspectCmd.Flags().BoolVar(&simplify, "simplify", false, "normalise expressions before emission")

	evalCmd := &cobra.Command{
		Use:   "eval [problem.yaml]",
		Short: "evaluate one derived routine at a point",
		Args:  cobra.ExactArgs(1),
		RunE:  eval,
	}
	evalCmd.Flags().StringVar(&routine, "routine", emit.RoutineHu, "routine (f, phix, hx, hu)")
	evalCmd.Flags().Float64Var(&evalT, "t", 0, "time")
	evalCmd.Flags().Float64SliceVar(&evalX, "x", nil, "state")
	evalCmd.Flags().Float64SliceVar(&evalU, "u", nil, "inputs followed by multipliers")
	evalCmd.Flags().Float64SliceVar(&evalLmd, "lmd", nil, "costate")

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "print the JSON tool schema",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(tool.ToolSpec())
		},
	}

	rootCmd.AddCommand(generateCmd, inspectCmd, evalCmd, toolsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load reads a problem file and lowers it, applying the cse and simplify
// flags when they were given.
func load(cmd *cobra.Command, path string) (*config.Result, *emit.Unit, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load problem: %w", err)
	}
	res, err := cfg.Build(slog.Default())
	if err != nil {
		return nil, nil, err
	}
	spec, err := res.Problem.Freeze()
	if err != nil {
		return nil, nil, err
	}
	if f := cmd.Flags().Lookup("cse"); f != nil && f.Changed {
		res.Emit.CSE = cse
	}
	if f := cmd.Flags().Lookup("simplify"); f != nil && f.Changed {
		res.Emit.Simplify = simplify
	}
	unit, err := emit.Build(spec, res.Emit)
	if err != nil {
		return nil, nil, err
	}
	return res, unit, nil
}

func generate(cmd *cobra.Command, args []string) error {
	res, unit, err := load(cmd, args[0])
	if err != nil {
		return err
	}
	selected := res.Targets
	if cmd.Flags().Changed("target") {
		selected = nil
		for _, t := range targets {
			selected = append(selected, emit.Target(strings.TrimSpace(t)))
		}
	}

	var ep *solver.EntryPoint
	if !noMain {
		if ep, err = res.Assembler.Assemble(unit); err != nil {
			return err
		}
	}
	artifacts, err := project.Render(unit, ep, selected, res.Project)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	m := &project.DirMaterializer{Root: outDir, Logger: slog.Default()}
	if err := m.Materialize(ctx, artifacts); err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("generated " + unit.Name))
	for _, p := range artifacts.Paths() {
		fmt.Println("  " + valueStyle.Render(p))
	}
	for _, d := range unit.Diagnostics {
		fmt.Println(warnStyle.Render("warning: " + d))
	}
	return nil
}

func inspect(cmd *cobra.Command, args []string) error {
	_, unit, err := load(cmd, args[0])
	if err != nil {
		return err
	}
	d := unit.Dims

	var b strings.Builder
	b.WriteString(titleStyle.Render(emit.ClassName(unit.Name)) + "\n")
	for _, row := range []struct {
		label string
		value int
	}{{"nx", d.NX}, {"nu", d.NU}, {"nc", d.NC}, {"nh", d.NH}, {"nuc", d.NUC}, {"nub", d.NUB}} {
		b.WriteString(labelStyle.Render(row.label) + valueStyle.Render(fmt.Sprint(row.value)) + "\n")
	}
	for _, c := range unit.Consts {
		b.WriteString(labelStyle.Render(c.Name) + valueStyle.Render(fmt.Sprint(c.Values)) + "\n")
	}
	fmt.Println(panelStyle.Render(strings.TrimRight(b.String(), "\n")))

	for _, r := range unit.Routines {
		b.Reset()
		b.WriteString(titleStyle.Render(r.Name) + "  " + tempStyle.Render(r.Doc) + "\n")
		for _, s := range r.Stmts {
			if s.Temp != "" {
				b.WriteString(tempStyle.Render(s.Temp+" = "+s.Value.String()) + "\n")
				continue
			}
			b.WriteString(valueStyle.Render(fmt.Sprintf("%s[%d] = %s", r.Out.Name, s.Index, s.Value)) + "\n")
		}
		fmt.Println(panelStyle.Render(strings.TrimRight(b.String(), "\n")))
	}
	for _, d := range unit.Diagnostics {
		fmt.Println(warnStyle.Render("warning: " + d))
	}
	return nil
}

func eval(cmd *cobra.Command, args []string) error {
	_, unit, err := load(cmd, args[0])
	if err != nil {
		return err
	}
	out, err := unit.Call(routine, emit.Inputs{T: evalT, X: evalX, U: evalU, Lmd: evalLmd})
	if err != nil {
		return err
	}
	for i, v := range out {
		fmt.Printf("%s[%d] = %.10g\n", routine, i, v)
	}
	return nil
}
