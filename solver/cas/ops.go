package cas

import (
	"context"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/normalize"
)

// ErrNoSolution is returned for equations without a solution in the variable.
var ErrNoSolution = errors.New("equation has no solution")

// Result is the outcome of one engine operation.
type Result struct {
	Results []string
	Steps   []string
}

// Simplify collects like terms. Equations are simplified side by side.
func Simplify(src string) (Result, error) {
	if strings.Contains(src, "=") {
		eq, err := ParseEquation(src)
		if err != nil {
			return Result{}, err
		}
		l, err := ToPoly(eq.LHS)
		if err != nil {
			return Result{}, err
		}
		r, err := ToPoly(eq.RHS)
		if err != nil {
			return Result{}, err
		}
		out := l.String() + " = " + r.String()
		return Result{
			Results: []string{out},
			Steps:   []string{"Equation: " + eq.String(), "Simplified: " + out},
		}, nil
	}

	n, err := Parse(src)
	if err != nil {
		return Result{}, err
	}
	p, err := ToPoly(n)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Results: []string{p.String()},
		Steps:   []string{"Expression: " + n.String(), "Simplified: " + p.String()},
	}, nil
}

// Solve isolates v. Linear equations may carry other symbols; higher degrees
// need rational coefficients.
func Solve(ctx context.Context, src, v string) (Result, error) {
	eq, res, err := standardForm(src)
	if err != nil {
		return Result{}, err
	}
	steps := []string{"Equation: " + eq.String(), "Standard form: " + res.String() + " = 0"}

	byDeg, ok := res.CoeffsIn(v)
	if !ok {
		return Result{}, errors.Wrapf(ErrUnsupported, "%s is not polynomial in %s", res, v)
	}
	switch deg := res.Degree(v); {
	case res.IsZero():
		return Result{}, errors.Wrapf(ErrNoSolution, "identity holds for every %s", v)
	case deg == 0:
		return Result{}, errors.Wrapf(ErrNoSolution, "%s = 0 does not involve %s", res, v)
	case deg == 1:
		b, ok := byDeg[0]
		if !ok {
			b = newPoly()
		}
		sol, err := divide(b.Neg(), byDeg[1])
		if err != nil {
			return Result{}, err
		}
		out := v + " = " + sol.String()
		steps = append(steps, "Isolate "+v+": "+out)
		return Result{Results: []string{out}, Steps: steps}, nil
	}

	coeffs, ok := res.Univariate(v)
	if !ok {
		return Result{}, errors.Wrapf(ErrUnsupported, "symbolic coefficients in degree %d", res.Degree(v))
	}
	roots, rem, err := Roots(ctx, coeffs)
	if err != nil {
		return Result{}, err
	}
	if len(roots) == 0 {
		return Result{}, errors.Wrapf(ErrUnsupported, "no closed-form roots for degree %d", len(rem)-1)
	}
	results := make([]string, len(roots))
	for i, r := range roots {
		results[i] = v + " = " + r.String()
	}
	steps = append(steps, "Solutions: "+strings.Join(results, ", "))
	return Result{Results: results, Steps: steps}, nil
}

// FindRoots solves a polynomial equation in v and reports the roots in factored
// form, or as a list when some roots are complex.
func FindRoots(ctx context.Context, src, v string) (Result, error) {
	eq, res, err := standardForm(src)
	if err != nil {
		return Result{}, err
	}
	coeffs, ok := res.Univariate(v)
	if !ok {
		return Result{}, errors.Wrapf(ErrUnsupported, "%s is not a polynomial in %s", res, v)
	}
	if len(trimCoeffs(coeffs)) < 2 {
		return Result{}, errors.Wrapf(ErrNoSolution, "%s = 0 has no roots in %s", res, v)
	}
	roots, rem, err := Roots(ctx, coeffs)
	if err != nil {
		return Result{}, err
	}
	if len(roots) == 0 {
		return Result{}, errors.Wrapf(ErrUnsupported, "no closed-form roots for degree %d", len(rem)-1)
	}

	out := factoredForm(v, roots, rem)
	return Result{
		Results: []string{out},
		Steps: []string{
			"Equation: " + eq.String(),
			"Standard form: " + res.String() + " = 0",
			"Factored form: " + out,
		},
	}, nil
}

func standardForm(src string) (*Equation, Poly, error) {
	eq, err := ParseEquation(src)
	if err != nil {
		return nil, Poly{}, err
	}
	res, err := ToPoly(eq.Residual())
	if err != nil {
		return nil, Poly{}, err
	}
	return eq, res, nil
}

func factoredForm(v string, roots []Root, rem []*big.Rat) string {
	for _, r := range roots {
		if !r.IsReal() {
			list := make([]string, len(roots))
			for i, r := range roots {
				list[i] = v + " = " + r.String()
			}
			return strings.Join(list, ", ")
		}
	}
	parts := make([]string, 0, len(roots)+1)
	for _, r := range roots {
		parts = append(parts, linearFactor(v, r.Re, r.Multiplicity))
	}
	if len(rem) > 1 {
		parts = append(parts, "("+polyFromCoeffs(rem, v).String()+")")
	}
	return strings.Join(parts, " * ") + " = 0"
}

func linearFactor(v string, root float64, mult int) string {
	var f string
	if root < 0 {
		f = "(" + v + " + " + normalize.FormatNumber(-root) + ")"
	} else {
		f = "(" + v + " - " + normalize.FormatNumber(root) + ")"
	}
	if mult > 1 {
		f += "^(" + strconv.Itoa(mult) + ")"
	}
	return f
}

// Factorize factors a univariate polynomial over the rationals. Anything else
// has its terms collected instead.
func Factorize(ctx context.Context, src string) (Result, error) {
	var (
		n      Node
		suffix string
		err    error
	)
	if strings.Contains(src, "=") {
		var eq *Equation
		if eq, err = ParseEquation(src); err != nil {
			return Result{}, err
		}
		n, suffix = eq.Residual(), " = 0"
	} else if n, err = Parse(src); err != nil {
		return Result{}, err
	}
	p, err := ToPoly(n)
	if err != nil {
		return Result{}, err
	}
	steps := []string{"Expression: " + n.String()}

	syms := p.Symbols()
	var coeffs []*big.Rat
	ok := len(syms) == 1 && !p.hasAtoms()
	if ok {
		coeffs, ok = p.Univariate(syms[0])
	}
	if !ok {
		out := p.String() + suffix
		steps = append(steps, "Collected terms: "+out)
		return Result{Results: []string{out}, Steps: steps}, nil
	}

	out, factorSteps, err := factorUnivariate(ctx, syms[0], coeffs)
	if err != nil {
		return Result{}, err
	}
	out += suffix
	steps = append(steps, factorSteps...)
	steps = append(steps, "Factored form: "+out)
	return Result{Results: []string{out}, Steps: steps}, nil
}

func factorUnivariate(ctx context.Context, v string, coeffs []*big.Rat) (string, []string, error) {
	c := trimCoeffs(coeffs)
	content, prim := primitivePart(c)
	var steps []string
	if content.Cmp(big.NewRat(1, 1)) != 0 {
		steps = append(steps, "Common factor: "+FormatRat(content))
	}

	found, rem, err := rationalRoots(ctx, prim)
	if err != nil {
		return "", nil, err
	}
	var parts []string
	count := 0
	scale := big.NewRat(1, 1)
	for _, rr := range found {
		parts = append(parts, integerLinearFactor(v, rr.r, rr.mult))
		count += rr.mult
		q := new(big.Rat).SetInt(rr.r.Denom())
		scale.Mul(scale, ratPow(q, rr.mult))
	}
	if len(found) > 0 {
		roots := make([]string, len(found))
		for i, rr := range found {
			roots[i] = FormatRat(rr.r)
		}
		steps = append(steps, "Rational roots: "+strings.Join(roots, ", "))
	}
	if len(rem) > 1 {
		r := polyFromCoeffs(rem, v).Scale(new(big.Rat).Inv(scale))
		parts = append(parts, "("+r.String()+")")
		count++
	}

	if count <= 1 && content.Cmp(big.NewRat(1, 1)) == 0 {
		return polyFromCoeffs(c, v).String(), append(steps, "Irreducible over the rationals"), nil
	}
	out := strings.Join(parts, " * ")
	switch {
	case content.Cmp(big.NewRat(1, 1)) == 0:
	case content.Cmp(big.NewRat(-1, 1)) == 0:
		out = "-" + out
	default:
		out = FormatRat(content) + " * " + out
	}
	return out, steps, nil
}

// primitivePart splits c into a rational content and an integer polynomial with
// positive leading coefficient and coprime coefficients.
func primitivePart(c []*big.Rat) (*big.Rat, []*big.Rat) {
	ints := integerCoeffs(c)
	g := new(big.Int)
	for _, n := range ints {
		g.GCD(nil, nil, g, new(big.Int).Abs(n))
	}
	if g.Sign() == 0 {
		g.SetInt64(1)
	}
	if ints[len(ints)-1].Sign() < 0 {
		g.Neg(g)
	}
	prim := make([]*big.Rat, len(ints))
	for i, n := range ints {
		prim[i] = new(big.Rat).SetFrac(n, g)
	}
	// c = content * prim
	content := new(big.Rat).Quo(c[len(c)-1], prim[len(prim)-1])
	return content, prim
}

// integerLinearFactor renders (q*v - p)^mult for the root p/q.
func integerLinearFactor(v string, r *big.Rat, mult int) string {
	var f string
	switch {
	case r.Sign() == 0:
		f = v
	default:
		q := ""
		if !r.IsInt() {
			q = r.Denom().String()
		}
		p := new(big.Int).Abs(r.Num()).String()
		if r.Sign() > 0 {
			f = "(" + q + v + " - " + p + ")"
		} else {
			f = "(" + q + v + " + " + p + ")"
		}
	}
	if mult > 1 {
		f += "^" + strconv.Itoa(mult)
	}
	return f
}

// Differentiate returns d/dv of src.
func Differentiate(src, v string) (Result, error) {
	n, err := Parse(src)
	if err != nil {
		return Result{}, err
	}
	d, err := Diff(n, v)
	if err != nil {
		return Result{}, err
	}
	p, err := ToPoly(d)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Results: []string{p.String()},
		Steps: []string{
			"Expression: " + n.String(),
			"Differentiate with respect to " + v,
			"Derivative: " + p.String(),
		},
	}, nil
}

var differential = regexp.MustCompile(`^(.*?)\s*d([A-Za-z])$`)
var boundRun = regexp.MustCompile(`^-?(?:[0-9]+(?:\.[0-9]+)?|[A-Za-z]+)`)

type integral struct {
	integrand    string
	variable     string
	lower, upper string
	definite     bool
}

// parseIntegral reads "∫_a^b f dv", "∫ f dv" or a bare integrand.
func parseIntegral(src, v string) (integral, error) {
	s := strings.TrimSpace(src)
	out := integral{variable: v}
	if strings.HasPrefix(s, "∫") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "∫"))
		if strings.HasPrefix(s, "_") {
			lo, rest, err := takeBound(s[1:])
			if err != nil {
				return integral{}, err
			}
			if !strings.HasPrefix(rest, "^") {
				return integral{}, errors.Wrap(ErrSyntax, "definite integral needs an upper bound")
			}
			hi, rest, err := takeBound(rest[1:])
			if err != nil {
				return integral{}, err
			}
			out.lower, out.upper, out.definite = lo, hi, true
			s = rest
		}
		if m := differential.FindStringSubmatch(s); m != nil {
			s, out.variable = m[1], m[2]
		}
	}
	out.integrand = strings.TrimSpace(s)
	if out.integrand == "" {
		return integral{}, errors.Wrap(ErrSyntax, "empty integrand")
	}
	return out, nil
}

func takeBound(s string) (string, string, error) {
	if strings.HasPrefix(s, "(") {
		depth := 0
		for i, r := range s {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return s[1:i], strings.TrimSpace(s[i+1:]), nil
				}
			}
		}
		return "", "", errors.Wrap(ErrSyntax, "unbalanced integral bound")
	}
	b := boundRun.FindString(s)
	if b == "" {
		return "", "", errors.Wrapf(ErrSyntax, "bad integral bound in %q", s)
	}
	return b, strings.TrimSpace(s[len(b):]), nil
}

// Integrate finds an antiderivative, or the value of a definite integral.
func Integrate(ctx context.Context, src, v string) (Result, error) {
	in, err := parseIntegral(src, v)
	if err != nil {
		return Result{}, err
	}
	n, err := Parse(in.integrand)
	if err != nil {
		return Result{}, err
	}
	p, err := ToPoly(n)
	if err != nil {
		return Result{}, err
	}
	f, err := Antiderivative(p, in.variable)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, errors.Wrap(err, "integrate")
	}

	if !in.definite {
		out := f.String() + " + C"
		return Result{
			Results: []string{out},
			Steps: []string{
				"Integrand: " + p.String(),
				"Integrate with respect to " + in.variable,
				"Antiderivative: " + out,
			},
		}, nil
	}

	value, err := definiteValue(f, in)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Results: []string{value},
		Steps: []string{
			"Step 1: Find indefinite integral ∫ " + in.integrand + " d" + in.variable,
			"Step 2: Indefinite integral = " + f.String(),
			"Step 3: Apply fundamental theorem: F(" + in.upper + ") - F(" + in.lower + ")",
			"Step 4: Substitute limits into indefinite integral = " + value,
		},
	}, nil
}

func definiteValue(f Poly, in integral) (string, error) {
	lo, err := boundPoly(in.lower)
	if err != nil {
		return "", err
	}
	hi, err := boundPoly(in.upper)
	if err != nil {
		return "", err
	}
	if a, ok := lo.Constant(); ok {
		if b, ok := hi.Constant(); ok {
			fa, okA := SubstituteExact(f, in.variable, a)
			fb, okB := SubstituteExact(f, in.variable, b)
			if okA && okB {
				return FormatRat(new(big.Rat).Sub(fb, fa)), nil
			}
		}
	}

	a, err := Eval(lo.Node(), nil)
	if err != nil {
		return "", err
	}
	b, err := Eval(hi.Node(), nil)
	if err != nil {
		return "", err
	}
	antiderivative := f.Node()
	fa, err := Eval(antiderivative, map[string]float64{in.variable: a})
	if err != nil {
		return "", err
	}
	fb, err := Eval(antiderivative, map[string]float64{in.variable: b})
	if err != nil {
		return "", err
	}
	v := fb - fa
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", errors.Wrapf(ErrUnsupported, "integral from %s to %s diverges", in.lower, in.upper)
	}
	return normalize.FormatNumber(v), nil
}

func boundPoly(s string) (Poly, error) {
	n, err := Parse(s)
	if err != nil {
		return Poly{}, err
	}
	return ToPoly(n)
}
