package expr

// ============================================================
// Deep normalisation
// ============================================================

// maxNormalizePasses bounds the fixpoint loop in Normalize.
const maxNormalizePasses = 10

// Normalize applies like-term collection, power merging and the trig
// identities repeatedly until the printed form stops changing. It is much
// more expensive than the canonicalisation done by the constructors.
func Normalize(e Expr) Expr {
	prev := ""
	curr := e.Simplify()
	for i := 0; i < maxNormalizePasses; i++ {
		str := curr.String()
		if str == prev {
			break
		}
		prev = str
		curr = TrigSimplify(normalizeExpr(curr)).Simplify()
	}
	return curr
}

// NormalizeAll normalises every component of es into a new slice.
func NormalizeAll(es []Expr) []Expr {
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = Normalize(e)
	}
	return out
}

func normalizeExpr(e Expr) Expr {
	switch v := e.(type) {
	case *Add:
		terms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			terms[i] = normalizeExpr(t)
		}
		return collectTerms(AddOf(terms...))
	case *Mul:
		factors := make([]Expr, len(v.factors))
		for i, f := range v.factors {
			factors[i] = normalizeExpr(f)
		}
		return mergePowers(MulOf(factors...))
	case *Pow:
		return PowOf(normalizeExpr(v.base), normalizeExpr(v.exp))
	case *Func:
		return funcOf(v.name, normalizeExpr(v.arg)).Simplify()
	}
	return e
}

// collectTerms merges terms that differ only by their numeric coefficient:
// 2*a*b + 3*a*b → 5*a*b.
func collectTerms(e Expr) Expr {
	add, ok := e.(*Add)
	if !ok {
		return e
	}
	coeffs := map[string]*Num{}
	rests := map[string]Expr{}
	order := []string{}
	for _, t := range add.terms {
		coeff, rest := extractCoefficient(t)
		key := rest.String()
		if _, seen := coeffs[key]; !seen {
			order = append(order, key)
			coeffs[key] = N(0)
			rests[key] = rest
		}
		coeffs[key] = numAdd(coeffs[key], coeff)
	}
	if len(order) == len(add.terms) {
		return e
	}
	terms := make([]Expr, 0, len(order))
	for _, key := range order {
		if coeffs[key].IsZero() {
			continue
		}
		terms = append(terms, MulOf(coeffs[key], rests[key]))
	}
	return AddOf(terms...)
}

// mergePowers folds repeated bases inside a product: x*x^2 → x^3.
func mergePowers(e Expr) Expr {
	mul, ok := e.(*Mul)
	if !ok {
		return e
	}
	exps := map[string]Expr{}
	bases := map[string]Expr{}
	order := []string{}
	for _, f := range mul.factors {
		base, exp := f, Expr(N(1))
		if p, ok := f.(*Pow); ok {
			base, exp = p.base, p.exp
		}
		key := base.String()
		if _, seen := exps[key]; !seen {
			order = append(order, key)
			exps[key] = N(0)
			bases[key] = base
		}
		exps[key] = AddOf(exps[key], exp)
	}
	if len(order) == len(mul.factors) {
		return e
	}
	factors := make([]Expr, len(order))
	for i, key := range order {
		factors[i] = PowOf(bases[key], exps[key])
	}
	return MulOf(factors...)
}

func extractCoefficient(e Expr) (*Num, Expr) {
	if n, ok := e.(*Num); ok {
		return n, N(1)
	}
	if m, ok := e.(*Mul); ok && len(m.factors) >= 2 {
		if coeff, ok2 := m.factors[0].(*Num); ok2 {
			rest := m.factors[1:]
			if len(rest) == 1 {
				return coeff, rest[0]
			}
			return coeff, &Mul{factors: rest}
		}
	}
	return N(1), e
}

// ============================================================
// Trig identities
// ============================================================

// TrigSimplify applies c*sin²(a) + c*cos²(a) = c along with the exp/ln
// inverses already handled by the constructors.
func TrigSimplify(e Expr) Expr {
	return trigSimplifyExpr(e.Simplify()).Simplify()
}

func trigSimplifyExpr(e Expr) Expr {
	switch v := e.(type) {
	case *Add:
		newTerms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			newTerms[i] = trigSimplifyExpr(t)
		}
		return trigFindPythagorean(AddOf(newTerms...))
	case *Mul:
		newFactors := make([]Expr, len(v.factors))
		for i, f := range v.factors {
			newFactors[i] = trigSimplifyExpr(f)
		}
		return MulOf(newFactors...)
	case *Pow:
		return PowOf(trigSimplifyExpr(v.base), v.exp)
	case *Func:
		return funcOf(v.name, trigSimplifyExpr(v.arg)).Simplify()
	}
	return e
}

func trigFindPythagorean(e Expr) Expr {
	add, ok := e.(*Add)
	if !ok {
		return e
	}
	type trigTerm struct {
		funcName string
		argStr   string
		coeff    *Num
		idx      int
	}
	var trigTerms []trigTerm
	for idx, t := range add.terms {
		coeff, inner := extractCoefficient(t)
		p, ok := inner.(*Pow)
		if !ok {
			continue
		}
		fn, ok := p.base.(*Func)
		if !ok || (fn.name != "sin" && fn.name != "cos") {
			continue
		}
		if en, ok := p.exp.(*Num); ok && en.Equal(N(2)) {
			trigTerms = append(trigTerms, trigTerm{fn.name, fn.arg.String(), coeff, idx})
		}
	}
	for i := 0; i < len(trigTerms); i++ {
		for j := i + 1; j < len(trigTerms); j++ {
			ti, tj := trigTerms[i], trigTerms[j]
			if ti.argStr != tj.argStr || ti.funcName == tj.funcName || !ti.coeff.Equal(tj.coeff) {
				continue
			}
			newTerms := []Expr{}
			for idx, t := range add.terms {
				if idx != ti.idx && idx != tj.idx {
					newTerms = append(newTerms, t)
				}
			}
			newTerms = append(newTerms, ti.coeff)
			return AddOf(newTerms...)
		}
	}
	return e
}
