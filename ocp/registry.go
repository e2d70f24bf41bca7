package ocp

import (
	"fmt"
	"math"
	"regexp"

	"github.com/njchilds90/autogenu/expr"
)

// Kind distinguishes scalar from array parameters.
type Kind int

const (
	Scalar Kind = iota
	Array
)

func (k Kind) String() string {
	if k == Array {
		return "array"
	}
	return "scalar"
}

// Param is one registered parameter: its symbols and current values. A scalar
// has exactly one symbol and one value.
type Param struct {
	Name    string
	Kind    Kind
	Symbols []expr.Expr
	Values  []float64
}

// Symbol returns the symbol of a scalar parameter.
func (p Param) Symbol() expr.Expr { return p.Symbols[0] }

// Value returns the value of a scalar parameter.
func (p Param) Value() float64 { return p.Values[0] }

// Dim is the number of elements, 1 for scalars.
func (p Param) Dim() int { return len(p.Values) }

func (p Param) clone() Param {
	p.Symbols = append([]expr.Expr(nil), p.Symbols...)
	p.Values = append([]float64(nil), p.Values...)
	return p
}

// Registry is an ordered map from parameter name to its symbols and values.
// Symbol identity is fixed at first declaration; values may be updated until
// the registry is snapshotted.
type Registry struct {
	order  []string
	params map[string]*Param
}

func NewRegistry() *Registry {
	return &Registry{params: map[string]*Param{}}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved holds the names taken by the formulation and the emitted sources:
// the problem symbols, the dimension constants, routine names and the
// keywords of the target languages.
var reserved = map[string]bool{
	"t": true, "x": true, "u": true, "lmd": true, "fb_eps": true, "pi": true,
	"nx": true, "nu": true, "nc": true, "nh": true, "nuc": true, "nub": true,
	"dx": true, "phix": true, "hx": true, "hu": true, "sqrt": true, "pow": true,
	"fabs": true, "log": true, "math": true, "std": true, "M_PI": true,
	"NX": true, "NU": true, "NC": true, "NH": true, "NUC": true, "NUB": true,
	"ubound_indices": true, "umin": true, "umax": true, "dummy_weight": true, "quadratic_weight": true,
	// generated members and functions
	"eval_f": true, "eval_phix": true, "eval_hx": true, "eval_hu": true, "disp": true, "synchronize": true,
	"EvalF": true, "EvalPhix": true, "EvalHx": true, "EvalHu": true, "init": true, "_": true,
	// C++
	"auto": true, "bool": true, "break": true, "case": true, "char": true, "class": true,
	"const": true, "constexpr": true, "continue": true, "default": true, "delete": true,
	"do": true, "double": true, "else": true, "enum": true, "extern": true, "false": true,
	"float": true, "for": true, "goto": true, "if": true, "inline": true, "int": true,
	"long": true, "namespace": true, "new": true, "operator": true, "private": true,
	"protected": true, "public": true, "return": true, "short": true, "signed": true,
	"sizeof": true, "static": true, "struct": true, "switch": true, "template": true,
	"this": true, "true": true, "typedef": true, "union": true, "unsigned": true,
	"using": true, "virtual": true, "void": true, "volatile": true, "while": true,
	// Go
	"chan": true, "defer": true, "fallthrough": true, "func": true, "go": true,
	"import": true, "interface": true, "map": true, "package": true, "range": true,
	"select": true, "type": true, "var": true, "nil": true, "iota": true,
	"float64": true, "string": true, "error": true, "len": true, "cap": true,
	"append": true, "make": true, "copy": true,
}

func init() {
	for _, name := range expr.FuncNames() {
		reserved[name] = true
	}
}

// ValidateName reports whether name can be used for a parameter.
func ValidateName(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if reserved[name] {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

func checkFinite(name string, values ...float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] = %v", ErrInvalidValue, name, i, v)
		}
	}
	return nil
}

// DefineScalar registers a scalar parameter and returns its symbol.
// Declaring an existing scalar again keeps its symbol and overwrites its value.
func (r *Registry) DefineScalar(name string, value float64) (expr.Expr, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := checkFinite(name, value); err != nil {
		return nil, err
	}
	if p, ok := r.params[name]; ok {
		if p.Kind != Scalar {
			return nil, fmt.Errorf("%w: %q is declared as %s", ErrDuplicateName, name, p.Kind)
		}
		p.Values[0] = value
		return p.Symbols[0], nil
	}
	sym := expr.S(name)
	r.add(&Param{Name: name, Kind: Scalar, Symbols: []expr.Expr{sym}, Values: []float64{value}})
	return sym, nil
}

// DefineScalars registers several scalars with value zero.
func (r *Registry) DefineScalars(names ...string) ([]expr.Expr, error) {
	for _, name := range names {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		if p, ok := r.params[name]; ok && p.Kind != Scalar {
			return nil, fmt.Errorf("%w: %q is declared as %s", ErrDuplicateName, name, p.Kind)
		}
	}
	syms := make([]expr.Expr, len(names))
	for i, name := range names {
		if p, ok := r.params[name]; ok {
			syms[i] = p.Symbols[0]
			continue
		}
		syms[i], _ = r.DefineScalar(name, 0)
	}
	return syms, nil
}

// DefineArray registers an array parameter of length dim. A nil values slice
// means all zeros; otherwise its length must equal dim.
func (r *Registry) DefineArray(name string, dim int, values []float64) ([]expr.Expr, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: array %q has dim %d", ErrInvalidDimension, name, dim)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if values == nil {
		values = make([]float64, dim)
	}
	if len(values) != dim {
		return nil, fmt.Errorf("%w: array %q has dim %d, got %d values", ErrDimensionMismatch, name, dim, len(values))
	}
	if err := checkFinite(name, values...); err != nil {
		return nil, err
	}
	if p, ok := r.params[name]; ok {
		if p.Kind != Array || len(p.Values) != dim {
			return nil, fmt.Errorf("%w: %q is a %s of dim %d", ErrDuplicateName, name, p.Kind, len(p.Values))
		}
		copy(p.Values, values)
		return append([]expr.Expr(nil), p.Symbols...), nil
	}
	syms := expr.Indexed(name, dim)
	r.add(&Param{Name: name, Kind: Array, Symbols: syms, Values: append([]float64(nil), values...)})
	return append([]expr.Expr(nil), syms...), nil
}

func (r *Registry) add(p *Param) {
	r.order = append(r.order, p.Name)
	r.params[p.Name] = p
}

// SetScalar updates the value of a declared scalar.
func (r *Registry) SetScalar(name string, value float64) error {
	p, ok := r.params[name]
	if !ok || p.Kind != Scalar {
		return fmt.Errorf("%w: scalar %q", ErrUnknownParameter, name)
	}
	if err := checkFinite(name, value); err != nil {
		return err
	}
	p.Values[0] = value
	return nil
}

// SetScalars updates several scalars. Either every update applies or none.
func (r *Registry) SetScalars(values map[string]float64) error {
	for name, v := range values {
		p, ok := r.params[name]
		if !ok || p.Kind != Scalar {
			return fmt.Errorf("%w: scalar %q", ErrUnknownParameter, name)
		}
		if err := checkFinite(name, v); err != nil {
			return err
		}
	}
	for name, v := range values {
		r.params[name].Values[0] = v
	}
	return nil
}

// SetArray replaces the values of a declared array. A slice of the wrong
// length is rejected and the stored values are left unchanged.
func (r *Registry) SetArray(name string, values []float64) error {
	p, ok := r.params[name]
	if !ok || p.Kind != Array {
		return fmt.Errorf("%w: array %q", ErrUnknownParameter, name)
	}
	if len(values) != len(p.Values) {
		return fmt.Errorf("%w: array %q has dim %d, got %d values", ErrDimensionMismatch, name, len(p.Values), len(values))
	}
	if err := checkFinite(name, values...); err != nil {
		return err
	}
	copy(p.Values, values)
	return nil
}

// Lookup returns a copy of the named parameter.
func (r *Registry) Lookup(name string) (Param, bool) {
	p, ok := r.params[name]
	if !ok {
		return Param{}, false
	}
	return p.clone(), true
}

// Len is the number of registered parameters.
func (r *Registry) Len() int { return len(r.order) }

// Params returns copies of every parameter in declaration order.
func (r *Registry) Params() []Param {
	out := make([]Param, len(r.order))
	for i, name := range r.order {
		out[i] = r.params[name].clone()
	}
	return out
}

// symbolNames returns the names of every parameter symbol.
func (r *Registry) symbolNames(into map[string]struct{}) {
	for _, p := range r.params {
		for _, s := range p.Symbols {
			into[s.String()] = struct{}{}
		}
	}
}
