package expr

import "strconv"

// ============================================================
// Common-subexpression elimination
// ============================================================

// Replacement is one temporary introduced by CSE: Name = Value.
type Replacement struct {
	Name  string
	Value Expr
}

// CSE factors every compound subexpression occurring more than once across es
// into a temporary named prefix0, prefix1, ... and rewrites es in terms of
// them. Temporaries are ordered by first occurrence in a post-order walk, so
// each one only references symbols and earlier temporaries. Names already
// used by a symbol in es are skipped.
//
// The rewritten trees are built without re-canonicalisation: every operation
// keeps its operand order, so evaluating the temporaries and the reduced
// expressions reproduces the original results up to rounding.
func CSE(es []Expr, prefix string) ([]Replacement, []Expr) {
	seen := map[string]bool{}
	repeated := map[string]bool{}
	var find func(e Expr)
	find = func(e Expr) {
		if isCheap(e) {
			return
		}
		key := e.String()
		if seen[key] {
			repeated[key] = true
			return
		}
		seen[key] = true
		for _, c := range children(e) {
			find(c)
		}
	}
	taken := map[string]struct{}{}
	for _, e := range es {
		find(e)
		collectSymbols(e, taken)
	}

	var repl []Replacement
	names := map[string]string{}
	counter := 0
	nextName := func() string {
		for {
			name := prefix + strconv.Itoa(counter)
			counter++
			if _, used := taken[name]; !used {
				return name
			}
		}
	}
	var rebuild func(e Expr) Expr
	rebuild = func(e Expr) Expr {
		if isCheap(e) {
			return e
		}
		key := e.String()
		if name, ok := names[key]; ok {
			return S(name)
		}
		rebuilt := withChildren(e, rebuildAll(children(e), rebuild))
		if !repeated[key] {
			return rebuilt
		}
		name := nextName()
		repl = append(repl, Replacement{Name: name, Value: rebuilt})
		names[key] = name
		return S(name)
	}
	reduced := make([]Expr, len(es))
	for i, e := range es {
		reduced[i] = rebuild(e)
	}
	return repl, reduced
}

func rebuildAll(es []Expr, f func(Expr) Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = f(e)
	}
	return out
}

// isCheap reports leaves and plain negations of leaves, which are never worth
// a temporary.
func isCheap(e Expr) bool {
	switch v := e.(type) {
	case *Num, *Sym:
		return true
	case *Mul:
		if len(v.factors) == 2 {
			if n, ok := v.factors[0].(*Num); ok && n.IsNegOne() {
				return isCheap(v.factors[1])
			}
		}
	}
	return false
}

func children(e Expr) []Expr {
	switch v := e.(type) {
	case *Add:
		return v.terms
	case *Mul:
		return v.factors
	case *Pow:
		return []Expr{v.base, v.exp}
	case *Func:
		return []Expr{v.arg}
	}
	return nil
}

func withChildren(e Expr, cs []Expr) Expr {
	switch v := e.(type) {
	case *Add:
		return &Add{terms: cs}
	case *Mul:
		return &Mul{factors: cs}
	case *Pow:
		return &Pow{base: cs[0], exp: cs[1]}
	case *Func:
		return &Func{name: v.name, arg: cs[0]}
	}
	return e
}
