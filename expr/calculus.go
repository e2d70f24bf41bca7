package expr

// ============================================================
// Top-level convenience functions
// ============================================================

func Simplify(e Expr) Expr { return e.Simplify() }
func String(e Expr) string { return e.String() }

func Sub(expr Expr, varName string, value Expr) Expr {
	return expr.Sub(varName, value).Simplify()
}

func Diff(expr Expr, varName string) Expr {
	return expr.Diff(varName).Simplify()
}

// ============================================================
// Partial derivatives over symbol vectors
// ============================================================

// Gradient returns ∂expr/∂v for each symbol v of vars, in order.
// Non-symbol entries of vars yield a zero component.
func Gradient(expr Expr, vars []Expr) []Expr {
	result := make([]Expr, len(vars))
	for i, v := range vars {
		s, ok := v.(*Sym)
		if !ok {
			result[i] = N(0)
			continue
		}
		result[i] = Diff(expr, s.name)
	}
	return result
}

// Dot returns Σ a[i]*b[i]. The shorter length wins.
func Dot(a, b []Expr) Expr {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	terms := make([]Expr, n)
	for i := 0; i < n; i++ {
		terms[i] = MulOf(a[i], b[i])
	}
	return AddOf(terms...)
}
