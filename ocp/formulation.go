package ocp

import (
	"fmt"
	"log/slog"

	"github.com/njchilds90/autogenu/expr"
)

// Model holds the derived conditions. Inputs are augmented: u[nu..nu+nc)
// are the equality multipliers and u[nu+nc..nuc) the complementarity
// variables of the inequality constraints.
type Model struct {
	NX, NU, NC, NH int

	Hamiltonian expr.Expr
	F           []expr.Expr // dx, length nx
	Phix        []expr.Expr // ∂φ/∂x, length nx
	Hx          []expr.Expr // ∂H/∂x, length nx
	Hu          []expr.Expr // ∂H/∂u, length nuc; FB residuals last
}

// NUC is the augmented input size nu + nc + nh.
func (m *Model) NUC() int { return m.NU + m.NC + m.NH }

// Normalize returns a copy with every expression vector deep-simplified.
func (m *Model) Normalize() *Model {
	out := *m
	out.Hamiltonian = expr.Normalize(m.Hamiltonian)
	out.F = expr.NormalizeAll(m.F)
	out.Phix = expr.NormalizeAll(m.Phix)
	out.Hx = expr.NormalizeAll(m.Hx)
	out.Hu = expr.NormalizeAll(m.Hu)
	return &out
}

// FischerBurmeister returns sqrt(a^2 + b^2 + eps) - (a - b), whose zero set
// approaches 0 <= a ⟂ -b >= 0 as eps goes to zero.
func FischerBurmeister(a, b, eps expr.Expr) expr.Expr {
	two := expr.N(2)
	root := expr.SqrtOf(expr.AddOf(expr.PowOf(a, two), expr.PowOf(b, two), eps))
	return expr.SubOf(root, expr.SubOf(a, b))
}

// Formulate derives the Hamiltonian and its gradients from the stored
// functions.
//
//	H = L + lmd·f + u[nu:nu+nc]·C + u[nu+nc:]·h
//
// The last nh components of hu are replaced by the Fischer-Burmeister
// residuals of (u[nu+nc+i], h[i]).
func (p *Problem) Formulate() (*Model, error) {
	if p.functions == nil {
		return nil, ErrFunctionsNotSet
	}
	fn := p.functions
	nc, nh := len(fn.Equality), len(fn.Inequality)
	if nh > 0 && p.fbEps == nil {
		return nil, fmt.Errorf("%w: nh=%d", ErrMissingEpsilon, nh)
	}
	if p.fbEps != nil && len(p.fbEps) != nh {
		return nil, fmt.Errorf("%w: fb_eps has %d entries, nh=%d", ErrDimensionMismatch, len(p.fbEps), nh)
	}

	nuc := p.nu + nc + nh
	uc := expr.Indexed(InputName, nuc)
	lmd := expr.Indexed(CostateName, p.nx)
	eps := expr.Indexed(EpsilonName, nh)
	mult := uc[p.nu : p.nu+nc]
	comp := uc[p.nu+nc:]

	hamiltonian := expr.AddOf(
		fn.StageCost,
		expr.Dot(lmd, fn.F),
		expr.Dot(mult, fn.Equality),
		expr.Dot(comp, fn.Inequality),
	)
	hu := expr.Gradient(hamiltonian, uc)
	for i := 0; i < nh; i++ {
		hu[p.nu+nc+i] = FischerBurmeister(comp[i], fn.Inequality[i], eps[i])
	}

	m := &Model{
		NX:          p.nx,
		NU:          p.nu,
		NC:          nc,
		NH:          nh,
		Hamiltonian: hamiltonian,
		F:           append([]expr.Expr(nil), fn.F...),
		Phix:        expr.Gradient(fn.TerminalCost, p.x),
		Hx:          expr.Gradient(hamiltonian, p.x),
		Hu:          hu,
	}
	p.logger.Info("problem formulated",
		slog.Int("nx", m.NX), slog.Int("nu", m.NU),
		slog.Int("nc", nc), slog.Int("nh", nh), slog.Int("nuc", nuc))
	return m, nil
}
