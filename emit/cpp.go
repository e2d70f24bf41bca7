package emit

import (
	"fmt"
	"strconv"
	"strings"
)

// writer accumulates indented source lines.
type writer struct {
	b      strings.Builder
	indent int
}

func (w *writer) line(format string, args ...any) {
	if format == "" {
		w.b.WriteByte('\n')
		return
	}
	w.b.WriteString(strings.Repeat("  ", w.indent))
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

func (w *writer) in()  { w.indent++ }
func (w *writer) out() { w.indent-- }

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ", ")
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// ClassName is the C++ class generated for a problem.
func ClassName(problem string) string { return "OCP_" + problem }

var cppSignature = map[string]string{
	RoutineF:    "void eval_f(const double t, const double* x, const double* u, double* dx) const",
	RoutinePhix: "void eval_phix(const double t, const double* x, double* phix) const",
	RoutineHx:   "void eval_hx(const double t, const double* x, const double* u, const double* lmd, double* hx) const",
	RoutineHu:   "void eval_hu(const double t, const double* x, const double* u, const double* lmd, double* hu) const",
}

// RenderCPP renders the unit as the header ocp.hpp consumed by the cgmres
// solvers.
func RenderCPP(u *Unit) []byte {
	w := &writer{}
	class := ClassName(u.Name)
	guard := "CGMRES__OCP_" + strings.ToUpper(u.Name) + "_HPP_"
	d := u.Dims

	w.line("// This file was automatically generated by autogenu. Do not edit.")
	w.line("")
	w.line("#ifndef %s", guard)
	w.line("#define %s", guard)
	w.line("")
	w.line("#define _USE_MATH_DEFINES")
	w.line("")
	w.line("#include <cmath>")
	w.line("#include <array>")
	w.line("#include <iostream>")
	w.line("")
	w.line(`#include "cgmres/types.hpp"`)
	w.line(`#include "cgmres/detail/macros.hpp"`)
	w.line("")
	w.line("namespace cgmres {")
	w.line("")
	w.line("///")
	w.line("/// @class %s", class)
	w.line("/// @brief Definition of the optimal control problem (OCP) of %s.", u.Name)
	w.line("///")
	w.line("class %s {", class)
	w.line("public:")
	w.in()
	for _, c := range []struct {
		name, doc string
		value     string
	}{
		{"nx", "Dimension of the state.", strconv.Itoa(d.NX)},
		{"nu", "Dimension of the control input.", strconv.Itoa(d.NU)},
		{"nc", "Dimension of the equality constraints.", strconv.Itoa(d.NC)},
		{"nh", "Dimension of the Fischer-Burmeister function (already counted in nc).", strconv.Itoa(d.NH)},
		{"nuc", "Dimension of the concatenation of the control input and equality constraints.", "nu + nc"},
		{"nub", "Dimension of the bound constraints on the control input.", strconv.Itoa(d.NUB)},
	} {
		w.line("///")
		w.line("/// @brief %s", c.doc)
		w.line("///")
		w.line("static constexpr int %s = %s;", c.name, c.value)
		w.line("")
	}

	for _, c := range u.Consts {
		if c.Array {
			w.line("std::array<double, %d> %s = {%s};", len(c.Values), c.Name, joinFloats(c.Values))
		} else {
			w.line("double %s = %s;", c.Name, formatFloat(c.Values[0]))
		}
	}
	if b := u.Bounds; b != nil {
		w.line("")
		w.line("static constexpr std::array<int, nub> ubound_indices = {%s};", joinInts(b.Indices))
		w.line("std::array<double, nub> umin = {%s};", joinFloats(b.Min))
		w.line("std::array<double, nub> umax = {%s};", joinFloats(b.Max))
		w.line("std::array<double, nub> dummy_weight = {%s};", joinFloats(b.DummyWeight))
		w.line("std::array<double, nub> quadratic_weight = {%s};", joinFloats(b.QuadraticWeight))
	}
	w.line("")

	w.line("void disp(std::ostream& os) const {")
	w.in()
	w.line(`os << "%s:" << std::endl;`, class)
	for _, name := range []string{"nx", "nu", "nc", "nh", "nuc", "nub"} {
		w.line(`os << "  %s: " << %s << std::endl;`, name, name)
	}
	for _, c := range u.Consts {
		if !c.Array {
			w.line(`os << "  %s: " << %s << std::endl;`, c.Name, c.Name)
		}
	}
	w.out()
	w.line("}")
	w.line("")
	w.line("friend std::ostream& operator<<(std::ostream& os, const %s& ocp) {", class)
	w.in()
	w.line("ocp.disp(os);")
	w.line("return os;")
	w.out()
	w.line("}")
	w.line("")
	w.line("///")
	w.line("/// @brief Synchronizes the internal parameters with external references.")
	w.line("/// Called at the beginning of each MPC update.")
	w.line("///")
	w.line("void synchronize() {")
	w.line("}")

	p := &printer{d: cppDialect}
	for _, r := range u.Routines {
		w.line("")
		w.line("///")
		w.line("/// @brief Computes the %s.", r.Doc)
		w.line("///")
		w.line("%s {", cppSignature[r.Name])
		w.in()
		for _, s := range r.Stmts {
			if s.Temp != "" {
				w.line("const double %s = %s;", s.Temp, p.String(s.Value))
				continue
			}
			w.line("%s[%d] = %s;", r.Out.Name, s.Index, p.String(s.Value))
		}
		w.out()
		w.line("}")
	}
	w.out()
	w.line("};")
	w.line("")
	w.line("} // namespace cgmres")
	w.line("")
	w.line("#endif // %s", guard)
	return []byte(w.b.String())
}
