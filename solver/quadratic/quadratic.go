// Package quadratic solves single-variable degree-two equations in closed form and
// explains the derivation step by step.
package quadratic

import (
	"log/slog"
	"math/big"
	"math/cmplx"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/cas"
	"github.com/hrygo/eyemath/solver/normalize"
	"github.com/hrygo/eyemath/solver/notation"
)

var (
	// ErrNoVariable means the equation has no free variable.
	ErrNoVariable = errors.New("no variables found in the equation")
	// ErrMultipleVariables means the equation has more than one free variable.
	ErrMultipleVariables = errors.New("equation must contain exactly one variable")
	// ErrNotQuadratic means the equation is not of degree two in its variable.
	ErrNotQuadratic = errors.New("equation is not quadratic")
)

// Classification sentences keyed by the sign of the discriminant.
const (
	ComplexRoots = "D < 0: Complex roots"
	OneRealRoot  = "D = 0: One real root"
	TwoRealRoots = "D > 0: Two real roots"
)

// Degraded output returned when the equation cannot be solved here.
const (
	DegradedResult = "None"
	DegradedStep   = "Error solving quadratic equation"
)

// Derivation holds the intermediate values of a solved quadratic.
type Derivation struct {
	Variable       string
	StandardForm   string
	A, B, C        *big.Rat
	Discriminant   *big.Rat
	Classification string
	Roots          [2]complex128
}

// Result is the outcome of Solve.
type Result struct {
	Results      []string
	SolvingSteps []string
	Derivation   *Derivation
}

// Degraded reports whether r is the fail-soft placeholder.
func (r Result) Degraded() bool {
	return r.Derivation == nil
}

// Solve solves an equation in internal notation. It never fails: any error yields
// the degraded result.
func Solve(equation string) Result {
	d, err := Analyze(equation)
	if err != nil {
		slog.Warn("Error solving quadratic equation", "equation", equation, "error", err)
		return Result{
			Results:      []string{DegradedResult},
			SolvingSteps: []string{DegradedStep},
		}
	}

	return Result{
		Results: []string{
			normalize.FormatRoot(real(d.Roots[0]), imag(d.Roots[0])),
			normalize.FormatRoot(real(d.Roots[1]), imag(d.Roots[1])),
		},
		SolvingSteps: []string{
			"Original equation: " + notation.ToMarkup(equation),
			"Standard form: " + notation.ToMarkup(d.StandardForm+" = 0"),
			"Coefficients: a = " + cas.FormatRat(d.A) + ", b = " + cas.FormatRat(d.B) + ", c = " + cas.FormatRat(d.C),
			"Discriminant: D = b² - 4ac = (" + cas.FormatRat(d.B) + ")² - 4⋅" + cas.FormatRat(d.A) + "⋅" +
				cas.FormatRat(d.C) + " = " + cas.FormatRat(d.Discriminant),
			d.Classification,
		},
		Derivation: d,
	}
}

// IsQuadratic reports whether equation is degree two in exactly one variable.
func IsQuadratic(equation string) bool {
	_, err := Analyze(equation)
	return err == nil
}

// Analyze extracts the variable and coefficients of equation and computes its roots.
func Analyze(equation string) (*Derivation, error) {
	eq, err := cas.ParseEquation(equation)
	if err != nil {
		return nil, errors.Wrap(err, "parse equation")
	}
	residual := eq.Residual()

	syms := cas.FreeSymbols(residual)
	switch len(syms) {
	case 0:
		return nil, ErrNoVariable
	case 1:
	default:
		return nil, errors.Wrapf(ErrMultipleVariables, "found %v", syms)
	}
	v := syms[0]

	p, err := cas.ToPoly(residual)
	if err != nil {
		return nil, err
	}
	coeffs, ok := p.Univariate(v)
	if !ok || len(coeffs) != 3 || coeffs[2].Sign() == 0 {
		return nil, errors.Wrapf(ErrNotQuadratic, "%s = 0", p)
	}

	a, b, c := coeffs[2], coeffs[1], coeffs[0]
	disc := new(big.Rat).Mul(b, b)
	disc.Sub(disc, new(big.Rat).Mul(big.NewRat(4, 1), new(big.Rat).Mul(a, c)))

	d := &Derivation{
		Variable:       v,
		StandardForm:   p.String(),
		A:              a,
		B:              b,
		C:              c,
		Discriminant:   disc,
		Classification: classify(disc),
		Roots:          roots(a, b, disc),
	}
	return d, nil
}

func classify(disc *big.Rat) string {
	switch disc.Sign() {
	case -1:
		return ComplexRoots
	case 0:
		return OneRealRoot
	default:
		return TwoRealRoots
	}
}

// roots computes (-b ± √D)/(2a) in complex arithmetic, so D < 0 needs no special case.
func roots(a, b, disc *big.Rat) [2]complex128 {
	fa, _ := a.Float64()
	fb, _ := b.Float64()
	fd, _ := disc.Float64()
	sqrtD := cmplx.Sqrt(complex(fd, 0))
	twoA := complex(2*fa, 0)
	return [2]complex128{
		(complex(-fb, 0) + sqrtD) / twoA,
		(complex(-fb, 0) - sqrtD) / twoA,
	}
}
