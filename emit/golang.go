package emit

import (
	"fmt"
	"go/format"
	"go/token"
	"strings"
	"unicode"
)

// Target selects an output language.
type Target string

const (
	TargetCPP Target = "cpp"
	TargetGo  Target = "go"
)

// Targets lists every supported target.
func Targets() []Target { return []Target{TargetCPP, TargetGo} }

// Render dispatches to the renderer of target.
func Render(u *Unit, target Target) ([]byte, error) {
	switch target {
	case TargetCPP:
		return RenderCPP(u), nil
	case TargetGo:
		return RenderGo(u)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
}

// PackageName derives a Go package name from a problem name.
func PackageName(problem string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(problem) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) || token.IsKeyword(name) {
		name = "ocp" + name
	}
	return name
}

var goFuncName = map[string]string{
	RoutineF:    "EvalF",
	RoutinePhix: "EvalPhix",
	RoutineHx:   "EvalHx",
	RoutineHu:   "EvalHu",
}

// goSignature joins the slice arguments of r, keeping t as the lone scalar.
func goSignature(r *Routine) string {
	var slices []string
	for _, a := range r.Args {
		if a.Dim > 0 {
			slices = append(slices, a.Name)
		}
	}
	slices = append(slices, r.Out.Name)
	return fmt.Sprintf("func %s(%s float64, %s []float64)", goFuncName[r.Name], "t", strings.Join(slices, ", "))
}

// RenderGo renders the unit as a gofmt-formatted Go source file. The file
// imports math only when a routine needs it.
func RenderGo(u *Unit) ([]byte, error) {
	p := &printer{d: goDialect}
	body := &writer{}
	for i := range u.Routines {
		r := &u.Routines[i]
		body.line("")
		body.line("// %s computes the %s.", goFuncName[r.Name], r.Doc)
		body.line("%s {", goSignature(r))
		body.in()
		for _, s := range r.Stmts {
			if s.Temp != "" {
				body.line("%s := %s", s.Temp, p.String(s.Value))
				continue
			}
			body.line("%s[%d] = %s", r.Out.Name, s.Index, p.String(s.Value))
		}
		body.out()
		body.line("}")
	}

	w := &writer{}
	d := u.Dims
	w.line("// Code generated by autogenu. DO NOT EDIT.")
	w.line("")
	w.line("// Package %s evaluates the optimal control problem %s.", PackageName(u.Name), u.Name)
	w.line("package %s", PackageName(u.Name))
	if p.usedMath {
		w.line("")
		w.line(`import "math"`)
	}
	w.line("")
	w.line("const (")
	w.line("NX = %d", d.NX)
	w.line("NU = %d", d.NU)
	w.line("NC = %d", d.NC)
	w.line("NH = %d", d.NH)
	w.line("NUC = NU + NC")
	if u.Bounds != nil {
		w.line("NUB = %d", d.NUB)
	}
	w.line(")")
	if len(u.Consts) > 0 {
		w.line("")
		w.line("var (")
		for _, c := range u.Consts {
			if c.Array {
				w.line("%s = [%d]float64{%s}", c.Name, len(c.Values), joinFloats(c.Values))
			} else {
				w.line("%s float64 = %s", c.Name, formatFloat(c.Values[0]))
			}
		}
		w.line(")")
	}
	if b := u.Bounds; b != nil {
		w.line("")
		w.line("var (")
		w.line("ubound_indices = [NUB]int{%s}", joinInts(b.Indices))
		w.line("umin = [NUB]float64{%s}", joinFloats(b.Min))
		w.line("umax = [NUB]float64{%s}", joinFloats(b.Max))
		w.line("dummy_weight = [NUB]float64{%s}", joinFloats(b.DummyWeight))
		w.line("quadratic_weight = [NUB]float64{%s}", joinFloats(b.QuadraticWeight))
		w.line(")")
	}
	w.b.WriteString(body.b.String())

	src := []byte(w.b.String())
	out, err := format.Source(src)
	if err != nil {
		return src, fmt.Errorf("emit: format go source: %w", err)
	}
	return out, nil
}
